package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/quotagate/internal/usercontext"
)

// HeaderUser carries the caller identity resolved by the edge proxy.
// Authentication itself happens upstream of this service.
const HeaderUser = "X-User-ID"

func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUser))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", userID)
		c.Next()
	}
}

func (s *Server) userID(c *gin.Context) string {
	userID, _ := usercontext.UserIDFromContext(c.Request.Context())
	return userID
}

// GenerateRateLimit throttles generation attempts before the gate runs, so
// bursts never reach the upstream or touch the ledger.
func (s *Server) GenerateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.generateLimiter.Allow(c.Request.Context(), s.userID(c))
		if err != nil || res == nil || res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(res.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"type":    "rate_limited",
				"message": "too many generation requests, slow down",
			},
		})
	}
}
