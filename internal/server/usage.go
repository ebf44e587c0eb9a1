package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
)

type listUsageQuery struct {
	FeatureKey string `form:"feature_key"`
	PageToken  string `form:"page_token"`
	PageSize   string `form:"page_size"`
}

// ListUsage returns the caller's own usage history, newest first.
func (s *Server) ListUsage(c *gin.Context) {
	s.listUsageFor(c, s.userID(c))
}

// AdminListUsage returns any user's usage history.
func (s *Server) AdminListUsage(c *gin.Context) {
	s.listUsageFor(c, strings.TrimSpace(c.Param("id")))
}

func (s *Server) listUsageFor(c *gin.Context, userID string) {
	var query listUsageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pageSize := 0
	if raw := strings.TrimSpace(query.PageSize); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		pageSize = parsed
	}

	resp, err := s.ledgerSvc.ListUsage(c.Request.Context(), ledgerdomain.ListUsageRequest{
		UserID:     userID,
		FeatureKey: strings.TrimSpace(query.FeatureKey),
		PageToken:  strings.TrimSpace(query.PageToken),
		PageSize:   pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetUserBalance returns a user's current credit balance.
func (s *Server) GetUserBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	balance, err := s.ledgerSvc.Balance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id": userID,
		"balance": balance,
	}})
}
