package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// ActiveForUser reports whether the user holds a live premium
	// subscription at the given instant.
	ActiveForUser(ctx context.Context, userID string, at time.Time) (bool, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Cancel(ctx context.Context, id string) (*Response, error)
	ListForUser(ctx context.Context, userID string) ([]Response, error)
}

type CreateRequest struct {
	UserID    string         `json:"user_id"`
	Status    *string        `json:"status,omitempty"`
	StartAt   *time.Time     `json:"start_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Status     string         `json:"status"`
	StartAt    time.Time      `json:"start_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	CanceledAt *time.Time     `json:"canceled_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidStatus = errors.New("invalid_subscription_status")
	ErrInvalidID     = errors.New("invalid_subscription_id")
	ErrNotFound      = errors.New("subscription_not_found")
)
