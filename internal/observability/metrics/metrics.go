// Package metrics exposes OTel instruments for gateway decisions and charges.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	gatewayDecisions metric.Int64Counter
	creditCharges    metric.Int64Counter
	creditRefunds    metric.Int64Counter
	creditGrants     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "quotagate"
	}
	meter := provider.Meter(name)

	gatewayDecisions, err := meter.Int64Counter("quotagate_gateway_decisions_total")
	if err != nil {
		return nil, err
	}
	creditCharges, err := meter.Int64Counter("quotagate_credit_charges_total")
	if err != nil {
		return nil, err
	}
	creditRefunds, err := meter.Int64Counter("quotagate_credit_refunds_total")
	if err != nil {
		return nil, err
	}
	creditGrants, err := meter.Int64Counter("quotagate_credit_grants_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatewayDecisions: gatewayDecisions,
		creditCharges:    creditCharges,
		creditRefunds:    creditRefunds,
		creditGrants:     creditGrants,
	}, nil
}

// RecordGatewayDecision increments per-feature terminal-state counts.
func (m *Metrics) RecordGatewayDecision(ctx context.Context, featureKey, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature_key", strings.TrimSpace(featureKey)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.gatewayDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditCharge increments successful charge counts.
func (m *Metrics) RecordCreditCharge(ctx context.Context, featureKey string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature_key", strings.TrimSpace(featureKey)))
	m.creditCharges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditRefund increments refund counts.
func (m *Metrics) RecordCreditRefund(ctx context.Context, featureKey string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature_key", strings.TrimSpace(featureKey)))
	m.creditRefunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditGrant increments grant counts.
func (m *Metrics) RecordCreditGrant(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.creditGrants.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"feature_key": {},
	"outcome":     {},
	"source":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
