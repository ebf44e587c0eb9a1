package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotagate/internal/clock"
	"github.com/smallbiznis/quotagate/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) ActiveForUser(ctx context.Context, userID string, at time.Time) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, domain.ErrInvalidUser
	}
	if at.IsZero() {
		at = s.clock.Now()
	}

	items, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ActiveAt(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	status := domain.SubscriptionStatusActive
	if req.Status != nil {
		normalized, err := normalizeStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		status = normalized
	}

	now := s.clock.Now()
	startAt := now
	if req.StartAt != nil && !req.StartAt.IsZero() {
		startAt = req.StartAt.UTC()
	}

	record := &domain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Status:    status,
		StartAt:   startAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.IsZero() {
		expiresAt := req.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	resp := s.toResponse(record)
	return &resp, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Response, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	item.Status = domain.SubscriptionStatusCanceled
	item.CanceledAt = &now
	item.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := s.toResponse(item)
	return &resp, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(&item))
	}
	return resp, nil
}

func (s *Service) toResponse(sub *domain.Subscription) domain.Response {
	resp := domain.Response{
		ID:         sub.ID.String(),
		UserID:     sub.UserID,
		Status:     string(sub.Status),
		StartAt:    sub.StartAt,
		ExpiresAt:  sub.ExpiresAt,
		CanceledAt: sub.CanceledAt,
		CreatedAt:  sub.CreatedAt,
	}
	if len(sub.Metadata) > 0 {
		resp.Metadata = map[string]any(sub.Metadata)
	}
	return resp
}

func normalizeStatus(value string) (domain.SubscriptionStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(domain.SubscriptionStatusActive):
		return domain.SubscriptionStatusActive, nil
	case string(domain.SubscriptionStatusTrialing):
		return domain.SubscriptionStatusTrialing, nil
	case string(domain.SubscriptionStatusCanceled):
		return domain.SubscriptionStatusCanceled, nil
	case string(domain.SubscriptionStatusExpired):
		return domain.SubscriptionStatusExpired, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}
