package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// IsEnabled reports whether the feature may be invoked at all. Unknown
	// keys resolve to false.
	IsEnabled(ctx context.Context, key string) bool
	Describe(ctx context.Context, key string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Archive(ctx context.Context, key string) (*Response, error)
}

type ListRequest struct {
	Domain  string
	Enabled *bool
}

type CreateRequest struct {
	Key        string         `json:"key"`
	Domain     string         `json:"domain"`
	Name       string         `json:"name"`
	Enabled    *bool          `json:"enabled"`
	ComingSoon *string        `json:"coming_soon"`
	Metadata   map[string]any `json:"metadata"`
}

type UpdateRequest struct {
	Key        string         `json:"key"`
	Name       *string        `json:"name,omitempty"`
	Domain     *string        `json:"domain,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	ComingSoon *string        `json:"coming_soon,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	ID         string         `json:"id"`
	Key        string         `json:"key"`
	Domain     string         `json:"domain"`
	Name       string         `json:"name"`
	Enabled    bool           `json:"enabled"`
	ComingSoon *string        `json:"coming_soon,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

var (
	ErrInvalidKey    = errors.New("invalid_feature_key")
	ErrInvalidDomain = errors.New("invalid_feature_domain")
	ErrInvalidName   = errors.New("invalid_feature_name")
	ErrDuplicateKey  = errors.New("duplicate_feature_key")
	ErrNotFound      = errors.New("feature_not_found")
)
