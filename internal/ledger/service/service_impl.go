package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/quotagate/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/quotagate/pkg/db"
	"github.com/smallbiznis/quotagate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 25
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       ledgerdomain.Repository
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		repo:       p.Repo,
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

// TryCharge runs the compare-and-decrement and the usage-record append in
// one transaction so a charged record exists iff a credit was consumed.
func (s *Service) TryCharge(ctx context.Context, userID, featureKey string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ledgerdomain.ErrInvalidUser
	}
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return false, ledgerdomain.ErrInvalidFeatureKey
	}

	charged := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.DecrementBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		charged = true

		now := time.Now().UTC()
		return s.repo.AppendUsageRecord(ctx, tx, &ledgerdomain.UsageRecord{
			ID:         s.genID.Generate(),
			UserID:     userID,
			FeatureKey: featureKey,
			Outcome:    ledgerdomain.UsageOutcomeCharged,
			OccurredAt: now,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return false, err
	}

	if charged && s.obsMetrics != nil {
		s.obsMetrics.RecordCreditCharge(ctx, featureKey)
	}
	return charged, nil
}

func (s *Service) Refund(ctx context.Context, userID, featureKey string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return ledgerdomain.ErrInvalidFeatureKey
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.IncrementBalance(ctx, tx, s.genID.Generate(), userID, 1); err != nil {
			return err
		}

		now := time.Now().UTC()
		return s.repo.AppendUsageRecord(ctx, tx, &ledgerdomain.UsageRecord{
			ID:         s.genID.Generate(),
			UserID:     userID,
			FeatureKey: featureKey,
			Outcome:    ledgerdomain.UsageOutcomeRefunded,
			OccurredAt: now,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditRefund(ctx, featureKey)
	}
	return nil
}

func (s *Service) RecordFailure(ctx context.Context, userID, featureKey, reason string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return ledgerdomain.ErrInvalidFeatureKey
	}

	now := time.Now().UTC()
	record := &ledgerdomain.UsageRecord{
		ID:         s.genID.Generate(),
		UserID:     userID,
		FeatureKey: featureKey,
		Outcome:    ledgerdomain.UsageOutcomeFailedNotCharged,
		OccurredAt: now,
		CreatedAt:  now,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		record.Metadata = datatypes.JSONMap{"reason": reason}
	}

	return s.repo.AppendUsageRecord(ctx, s.db, record)
}

func (s *Service) Grant(ctx context.Context, req ledgerdomain.GrantRequest) (*ledgerdomain.GrantResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, ledgerdomain.ErrInvalidSource
	}

	var idempotencyKey *string
	if req.IdempotencyKey != nil {
		key := strings.TrimSpace(*req.IdempotencyKey)
		if key != "" {
			idempotencyKey = &key
		}
	}

	grant := &ledgerdomain.CreditGrant{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Amount:         req.Amount,
		Source:         source,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertGrant(ctx, tx, grant); err != nil {
			return err
		}
		return s.repo.IncrementBalance(ctx, tx, s.genID.Generate(), userID, req.Amount)
	})
	if err != nil {
		// Replayed grant: the unique idempotency key aborted the whole
		// transaction, so the balance was not bumped a second time.
		if idempotencyKey != nil && pkgdb.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindGrantByIdempotencyKey(ctx, s.db, *idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return s.toGrantResponse(ctx, existing, true)
			}
		}
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditGrant(ctx, source)
	}
	return s.toGrantResponse(ctx, grant, false)
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}
	return s.repo.FindBalance(ctx, s.db, userID)
}

func (s *Service) ListUsage(ctx context.Context, req ledgerdomain.ListUsageRequest) (*ledgerdomain.ListUsageResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	req.UserID = userID
	req.FeatureKey = strings.TrimSpace(req.FeatureKey)

	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var afterID int64
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			parsed, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return nil, err
			}
			afterID = parsed
		}
	}

	items, err := s.repo.ListUsageRecords(ctx, s.db, req, afterID, limit+1)
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.BuildPageInfo(items, limit, func(record ledgerdomain.UsageRecord) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(int64(record.ID), 10)}
	})
	if err != nil {
		return nil, err
	}

	records := make([]ledgerdomain.UsageRecordResponse, 0, len(items))
	for _, item := range items {
		records = append(records, toUsageRecordResponse(item))
	}

	return &ledgerdomain.ListUsageResponse{
		PageInfo:     *pageInfo,
		UsageRecords: records,
	}, nil
}

func (s *Service) toGrantResponse(ctx context.Context, grant *ledgerdomain.CreditGrant, replayed bool) (*ledgerdomain.GrantResponse, error) {
	balance, err := s.repo.FindBalance(ctx, s.db, grant.UserID)
	if err != nil {
		return nil, err
	}
	return &ledgerdomain.GrantResponse{
		ID:        grant.ID.String(),
		UserID:    grant.UserID,
		Amount:    grant.Amount,
		Source:    grant.Source,
		Balance:   balance,
		Replayed:  replayed,
		CreatedAt: grant.CreatedAt,
	}, nil
}

func toUsageRecordResponse(record ledgerdomain.UsageRecord) ledgerdomain.UsageRecordResponse {
	resp := ledgerdomain.UsageRecordResponse{
		ID:         record.ID.String(),
		UserID:     record.UserID,
		FeatureKey: record.FeatureKey,
		Outcome:    record.Outcome,
		OccurredAt: record.OccurredAt,
	}
	if len(record.Metadata) > 0 {
		resp.Metadata = map[string]any(record.Metadata)
	}
	return resp
}
