package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smallbiznis/quotagate/internal/classify"
	"github.com/smallbiznis/quotagate/internal/entitlement"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
)

type errorPayload struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	RemediationHint string `json:"remediation_hint,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// retryAfterSeconds is advisory backoff for retryable upstream failures.
const retryAfterSeconds = "30"

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if retryableStatus(status, payload.Type) {
			c.Header("Retry-After", retryAfterSeconds)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var classified *classify.Classified
	if errors.As(err, &classified) {
		return mapClassified(classified)
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, featuredomain.ErrDuplicateKey):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a feature with this key already exists",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, entitlement.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "entitlement state is temporarily unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// mapClassified maps the failure taxonomy onto HTTP statuses. Payment
// Required marks "buy more credits", Forbidden marks "operator turned it
// off", Bad Gateway marks failures only an administrator can fix.
func mapClassified(err *classify.Classified) (int, errorPayload) {
	payload := errorPayload{
		Type:            string(err.Kind),
		Message:         err.Message,
		RemediationHint: err.RemediationHint,
	}

	switch err.Kind {
	case classify.KindQuotaExceeded:
		return http.StatusPaymentRequired, payload
	case classify.KindFeatureDisabled:
		return http.StatusForbidden, payload
	case classify.KindServiceNotConfigured, classify.KindInvalidCredential, classify.KindPermissionDenied:
		return http.StatusBadGateway, payload
	case classify.KindUpstreamQuotaExceeded, classify.KindTransientUpstreamFailure:
		return http.StatusServiceUnavailable, payload
	case classify.KindEmptyResult:
		return http.StatusUnprocessableEntity, payload
	default:
		return http.StatusInternalServerError, payload
	}
}

func retryableStatus(status int, errType string) bool {
	return status == http.StatusServiceUnavailable &&
		(errType == string(classify.KindUpstreamQuotaExceeded) ||
			errType == string(classify.KindTransientUpstreamFailure))
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, featuredomain.ErrInvalidKey),
		errors.Is(err, featuredomain.ErrInvalidDomain),
		errors.Is(err, featuredomain.ErrInvalidName),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidFeatureKey),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidSource),
		errors.Is(err, subscriptiondomain.ErrInvalidUser),
		errors.Is(err, subscriptiondomain.ErrInvalidStatus),
		errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, entitlement.ErrInvalidUser):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, featuredomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields without leaking internals into the response path.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var classified *classify.Classified
	if errors.As(err, &classified) {
		return "operation", string(classified.Kind)
	}
	if isValidationError(err) {
		return "validation", err.Error()
	}
	if errors.Is(err, ErrUnauthorized) {
		return "auth", "unauthorized"
	}
	return "internal", "internal_error"
}
