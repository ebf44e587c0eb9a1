// Package classify maps heterogeneous upstream failures into a closed
// taxonomy with user-facing remediation text.
package classify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/quotagate/internal/upstream"
)

// Kind is the closed set of caller-visible failure categories.
type Kind string

const (
	KindFeatureDisabled          Kind = "feature_disabled"
	KindQuotaExceeded            Kind = "quota_exceeded"
	KindServiceNotConfigured     Kind = "service_not_configured"
	KindUpstreamQuotaExceeded    Kind = "upstream_quota_exceeded"
	KindInvalidCredential        Kind = "invalid_credential"
	KindTransientUpstreamFailure Kind = "transient_upstream_failure"
	KindPermissionDenied         Kind = "permission_denied"
	KindEmptyResult              Kind = "empty_result"
	KindUnknown                  Kind = "unknown"
)

var remediation = map[Kind]struct {
	message string
	hint    string
}{
	KindFeatureDisabled: {
		message: "this feature is currently disabled",
		hint:    "the feature was turned off by the operator; check back later",
	},
	KindQuotaExceeded: {
		message: "you have no credits remaining",
		hint:    "upgrade your plan or purchase additional credits to continue",
	},
	KindServiceNotConfigured: {
		message: "the service is missing required configuration",
		hint:    "contact an administrator to finish setting up the integration",
	},
	KindUpstreamQuotaExceeded: {
		message: "the upstream provider's quota was exhausted",
		hint:    "wait a short while and retry",
	},
	KindInvalidCredential: {
		message: "the configured upstream credentials were rejected",
		hint:    "contact an administrator to rotate the API credentials",
	},
	KindTransientUpstreamFailure: {
		message: "the upstream service is temporarily unavailable",
		hint:    "retry the request",
	},
	KindPermissionDenied: {
		message: "the upstream account is not authorized for this API",
		hint:    "contact an administrator to enable the API on the account",
	},
	KindEmptyResult: {
		message: "the request completed but produced no output",
		hint:    "rephrase the input and try again",
	},
	KindUnknown: {
		message: "an unexpected error occurred",
		hint:    "retry, and contact support if the problem persists",
	},
}

// Classified wraps the raw error with its Kind and remediation text.
type Classified struct {
	Kind            Kind
	Message         string
	RemediationHint string
	Cause           error
}

func (c *Classified) Error() string {
	if c.Cause != nil {
		return string(c.Kind) + ": " + c.Cause.Error()
	}
	return string(c.Kind) + ": " + c.Message
}

func (c *Classified) Unwrap() error { return c.Cause }

// New builds a Classified with the canonical message for kind.
func New(kind Kind, cause error) *Classified {
	text, ok := remediation[kind]
	if !ok {
		kind = KindUnknown
		text = remediation[KindUnknown]
	}
	return &Classified{
		Kind:            kind,
		Message:         text.message,
		RemediationHint: text.hint,
		Cause:           cause,
	}
}

// Classify maps any error from an operation or the ledger into the
// taxonomy. It is total and pure: the same error always yields the same
// Kind, and unknown errors keep their cause attached.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	var classified *Classified
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		return New(KindServiceNotConfigured, err)
	case errors.Is(err, upstream.ErrEmptyResult):
		return New(KindEmptyResult, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return New(KindTransientUpstreamFailure, err)
	}

	var providerErr *upstream.ProviderError
	if errors.As(err, &providerErr) {
		return New(classifyProvider(providerErr), err)
	}

	if kind, ok := classifyMessage(err.Error()); ok {
		return New(kind, err)
	}

	return New(KindUnknown, err)
}

// IsKind reports whether err classifies to kind.
func IsKind(err error, kind Kind) bool {
	var classified *Classified
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Kind == kind
}

// AdminActionable reports whether the kind requires administrator action.
// These failures must never consume user credits.
func AdminActionable(kind Kind) bool {
	switch kind {
	case KindServiceNotConfigured, KindInvalidCredential, KindPermissionDenied:
		return true
	default:
		return false
	}
}

func classifyProvider(err *upstream.ProviderError) Kind {
	switch err.StatusCode {
	case http.StatusUnauthorized:
		return KindInvalidCredential
	case http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusTooManyRequests:
		return KindUpstreamQuotaExceeded
	case http.StatusNotFound:
		// Providers report retired or missing models as 404.
		return KindTransientUpstreamFailure
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return KindTransientUpstreamFailure
	}
	if kind, ok := classifyMessage(err.Code + " " + err.Message); ok {
		return kind
	}
	return KindUnknown
}

// classifyMessage covers providers that signal failures only through
// free-form message text.
func classifyMessage(message string) (Kind, bool) {
	message = strings.ToLower(message)
	switch {
	case strings.Contains(message, "api key not configured"),
		strings.Contains(message, "missing api key"),
		strings.Contains(message, "no api key"):
		return KindServiceNotConfigured, true
	case strings.Contains(message, "invalid api key"),
		strings.Contains(message, "api key expired"),
		strings.Contains(message, "api_key_invalid"):
		return KindInvalidCredential, true
	case strings.Contains(message, "resource_exhausted"),
		strings.Contains(message, "resource exhausted"),
		strings.Contains(message, "rate limit"),
		strings.Contains(message, "quota exceeded"):
		return KindUpstreamQuotaExceeded, true
	case strings.Contains(message, "permission_denied"),
		strings.Contains(message, "permission denied"),
		strings.Contains(message, "api has not been enabled"),
		strings.Contains(message, "api not enabled"):
		return KindPermissionDenied, true
	case strings.Contains(message, "model not found"),
		strings.Contains(message, "model is overloaded"),
		strings.Contains(message, "service unavailable"),
		strings.Contains(message, "temporarily unavailable"):
		return KindTransientUpstreamFailure, true
	case strings.Contains(message, "empty response"),
		strings.Contains(message, "no candidates"):
		return KindEmptyResult, true
	}
	return KindUnknown, false
}
