package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotagate/internal/cache"
	"github.com/smallbiznis/quotagate/internal/feature/domain"
	pkgdb "github.com/smallbiznis/quotagate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Registry cache.RegistryCache
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	registry cache.RegistryCache
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("feature.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		registry: p.Registry,
	}
}

// normalizeKey folds a caller-supplied key to the stored form. Every lookup
// and mutation goes through this so mixed-case admin input finds the row
// Create wrote.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsEnabled resolves unknown keys and lookup failures to false. A disabled
// feature rejects invocation before entitlement is consulted, so failing
// closed here is the safe direction.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	resp, err := s.Describe(ctx, key)
	if err != nil {
		if err != domain.ErrNotFound {
			s.log.Warn("feature lookup failed", zap.String("feature_key", key), zap.Error(err))
		}
		return false
	}
	return resp.Enabled
}

func (s *Service) Describe(ctx context.Context, key string) (*domain.Response, error) {
	key = normalizeKey(key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}

	if s.registry != nil {
		if cached, ok := s.registry.GetFeature(key); ok {
			return cached, nil
		}
	}

	item, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := s.toResponse(item)
	if s.registry != nil {
		s.registry.SetFeature(key, &resp)
	}
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListRequest{
		Domain:  strings.TrimSpace(req.Domain),
		Enabled: req.Enabled,
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, s.toResponse(&item))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	key := normalizeKey(req.Key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}
	featureDomain := strings.TrimSpace(req.Domain)
	if featureDomain == "" {
		return nil, domain.ErrInvalidDomain
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	var comingSoon *string
	if req.ComingSoon != nil {
		msg := strings.TrimSpace(*req.ComingSoon)
		if msg != "" {
			comingSoon = &msg
			// A feature announced as coming soon is not yet invocable.
			enabled = false
		}
	}

	now := time.Now().UTC()
	record := &domain.Feature{
		ID:         s.genID.Generate(),
		Key:        key,
		Domain:     featureDomain,
		Name:       name,
		Enabled:    enabled,
		ComingSoon: comingSoon,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Create(ctx, s.db, record); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}

	resp := s.toResponse(record)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	key := normalizeKey(req.Key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}

	item, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Domain != nil {
		featureDomain := strings.TrimSpace(*req.Domain)
		if featureDomain == "" {
			return nil, domain.ErrInvalidDomain
		}
		item.Domain = featureDomain
	}
	if req.Enabled != nil {
		item.Enabled = *req.Enabled
	}
	if req.ComingSoon != nil {
		msg := strings.TrimSpace(*req.ComingSoon)
		if msg == "" {
			item.ComingSoon = nil
		} else {
			item.ComingSoon = &msg
		}
	}
	if req.Metadata != nil {
		item.Metadata = datatypes.JSONMap(req.Metadata)
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	if s.registry != nil {
		s.registry.InvalidateFeature(key)
	}

	resp := s.toResponse(item)
	return &resp, nil
}

func (s *Service) Archive(ctx context.Context, key string) (*domain.Response, error) {
	key = normalizeKey(key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}

	item, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	item.Enabled = false
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	if s.registry != nil {
		s.registry.InvalidateFeature(key)
	}

	resp := s.toResponse(item)
	return &resp, nil
}

func (s *Service) toResponse(f *domain.Feature) domain.Response {
	resp := domain.Response{
		ID:         f.ID.String(),
		Key:        f.Key,
		Domain:     f.Domain,
		Name:       f.Name,
		Enabled:    f.Enabled,
		ComingSoon: f.ComingSoon,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
	if len(f.Metadata) > 0 {
		resp.Metadata = map[string]any(f.Metadata)
	}
	return resp
}
