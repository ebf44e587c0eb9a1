// Package upstream talks to the generation backends the gateway protects.
// The gateway itself is agnostic to what an operation does; this package
// only shapes upstream failures so the classifier can act on them.
package upstream

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network call when the upstream
// dependency is missing required configuration.
var ErrNotConfigured = errors.New("upstream_not_configured")

// ErrEmptyResult marks an operation that completed without error but
// produced no usable output.
var ErrEmptyResult = errors.New("upstream_empty_result")

// ProviderError carries the upstream provider's own failure signal.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream provider error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream provider error (%d): %s", e.StatusCode, e.Message)
}
