package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/quotagate/pkg/db/pagination"
)

type Service interface {
	// TryCharge atomically decrements the user's balance by one and appends
	// a charged usage record. It returns (false, nil) when the balance is
	// already zero. Concurrent calls for the same user serialize; at most
	// one can win the last credit.
	TryCharge(ctx context.Context, userID, featureKey string) (bool, error)

	// Refund reverses a charge: balance += 1 plus a corrective record. The
	// original charged record is preserved.
	Refund(ctx context.Context, userID, featureKey string) error

	// RecordFailure appends a failed_not_charged record. The balance is
	// untouched.
	RecordFailure(ctx context.Context, userID, featureKey string, reason string) error

	// Grant adds credits to the user's balance. A repeated idempotency key
	// is a no-op returning the previously applied grant.
	Grant(ctx context.Context, req GrantRequest) (*GrantResponse, error)

	// Balance returns the current credit balance; users without a balance
	// row have zero credits.
	Balance(ctx context.Context, userID string) (int64, error)

	ListUsage(ctx context.Context, req ListUsageRequest) (*ListUsageResponse, error)
}

type GrantRequest struct {
	UserID         string  `json:"user_id"`
	Amount         int64   `json:"amount"`
	Source         string  `json:"source"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

type GrantResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Source    string    `json:"source"`
	Balance   int64     `json:"balance"`
	Replayed  bool      `json:"replayed"`
	CreatedAt time.Time `json:"created_at"`
}

type ListUsageRequest struct {
	UserID     string `json:"user_id"`
	FeatureKey string `json:"feature_key"`
	PageToken  string `json:"page_token"`
	PageSize   int    `json:"page_size"`
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageRecords []UsageRecordResponse `json:"usage_records"`
}

type UsageRecordResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	FeatureKey string         `json:"feature_key"`
	Outcome    UsageOutcome   `json:"outcome"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidFeatureKey = errors.New("invalid_feature_key")
	ErrInvalidAmount     = errors.New("invalid_grant_amount")
	ErrInvalidSource     = errors.New("invalid_grant_source")
)
