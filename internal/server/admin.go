package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
)

type grantCreditsRequest struct {
	UserID         string  `json:"user_id"`
	Amount         int64   `json:"amount"`
	Source         string  `json:"source"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// GrantCredits adds credits to a user's balance. Webhook callers pass an
// idempotency key so delivery retries apply once.
func (s *Server) GrantCredits(c *gin.Context) {
	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.ledgerSvc.Grant(c.Request.Context(), ledgerdomain.GrantRequest{
		UserID:         strings.TrimSpace(req.UserID),
		Amount:         req.Amount,
		Source:         strings.TrimSpace(req.Source),
		IdempotencyKey: trimOptional(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.resolver.Invalidate(c.Request.Context(), resp.UserID)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type refundCreditRequest struct {
	FeatureKey string `json:"feature_key"`
}

// RefundCredit reverses one charge for a user. Operator-only correction.
func (s *Server) RefundCredit(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	var req refundCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.ledgerSvc.Refund(c.Request.Context(), userID, strings.TrimSpace(req.FeatureKey)); err != nil {
		AbortWithError(c, err)
		return
	}

	s.resolver.Invalidate(c.Request.Context(), userID)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "refunded": true}})
}

type createSubscriptionRequest struct {
	UserID    string         `json:"user_id"`
	Status    *string        `json:"status,omitempty"`
	StartAt   *time.Time     `json:"start_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateRequest{
		UserID:    strings.TrimSpace(req.UserID),
		Status:    trimOptional(req.Status),
		StartAt:   req.StartAt,
		ExpiresAt: req.ExpiresAt,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.resolver.Invalidate(c.Request.Context(), resp.UserID)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.resolver.Invalidate(c.Request.Context(), resp.UserID)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUserSubscriptions(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	resp, err := s.subscriptionSvc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
