package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/quotagate/internal/upstream"
)

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not configured sentinel", upstream.ErrNotConfigured, KindServiceNotConfigured},
		{"wrapped not configured", fmt.Errorf("calling upstream: %w", upstream.ErrNotConfigured), KindServiceNotConfigured},
		{"empty result sentinel", upstream.ErrEmptyResult, KindEmptyResult},
		{"context canceled", context.Canceled, KindTransientUpstreamFailure},
		{"deadline exceeded", context.DeadlineExceeded, KindTransientUpstreamFailure},
		{"provider 401", &upstream.ProviderError{StatusCode: http.StatusUnauthorized, Message: "bad key"}, KindInvalidCredential},
		{"provider 403", &upstream.ProviderError{StatusCode: http.StatusForbidden, Message: "nope"}, KindPermissionDenied},
		{"provider 429", &upstream.ProviderError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, KindUpstreamQuotaExceeded},
		{"provider 404", &upstream.ProviderError{StatusCode: http.StatusNotFound, Message: "gone"}, KindTransientUpstreamFailure},
		{"provider 502", &upstream.ProviderError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}, KindTransientUpstreamFailure},
		{"provider 503", &upstream.ProviderError{StatusCode: http.StatusServiceUnavailable, Message: "down"}, KindTransientUpstreamFailure},
		{"provider unknown status with coded message", &upstream.ProviderError{StatusCode: http.StatusBadRequest, Code: "RESOURCE_EXHAUSTED", Message: "quota"}, KindUpstreamQuotaExceeded},
		{"missing api key text", errors.New("missing api key for provider"), KindServiceNotConfigured},
		{"invalid api key text", errors.New("invalid api key supplied"), KindInvalidCredential},
		{"rate limit text", errors.New("rate limit reached for requests"), KindUpstreamQuotaExceeded},
		{"permission text", errors.New("PERMISSION_DENIED: api has not been enabled"), KindPermissionDenied},
		{"overloaded text", errors.New("the model is overloaded, try again"), KindTransientUpstreamFailure},
		{"empty response text", errors.New("provider returned empty response"), KindEmptyResult},
		{"opaque error", errors.New("something exploded"), KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got.Kind, tc.want)
			}
			if got.Message == "" || got.RemediationHint == "" {
				t.Fatalf("kind %s is missing remediation text", got.Kind)
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("classified error must wrap its cause")
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	first := Classify(errors.New("rate limit"))
	second := Classify(fmt.Errorf("retrying: %w", first))
	if second != first {
		t.Fatal("classifying a classified error must return it unchanged")
	}
}

func TestNewUnknownKindFallsBack(t *testing.T) {
	got := New(Kind("made_up"), errors.New("boom"))
	if got.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", got.Kind)
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindQuotaExceeded, nil))
	if !IsKind(err, KindQuotaExceeded) {
		t.Fatal("expected quota_exceeded")
	}
	if IsKind(err, KindFeatureDisabled) {
		t.Fatal("unexpected feature_disabled")
	}
	if IsKind(errors.New("plain"), KindUnknown) {
		t.Fatal("plain errors are not classified")
	}
}

func TestAdminActionable(t *testing.T) {
	actionable := []Kind{KindServiceNotConfigured, KindInvalidCredential, KindPermissionDenied}
	for _, kind := range actionable {
		if !AdminActionable(kind) {
			t.Fatalf("%s should be admin actionable", kind)
		}
	}
	for _, kind := range []Kind{KindQuotaExceeded, KindFeatureDisabled, KindTransientUpstreamFailure, KindEmptyResult, KindUnknown} {
		if AdminActionable(kind) {
			t.Fatalf("%s should not be admin actionable", kind)
		}
	}
}
