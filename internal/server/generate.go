package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/quotagate/internal/gateway"
	"github.com/smallbiznis/quotagate/internal/upstream"
)

type generateRequest struct {
	Prompt string         `json:"prompt"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Generate runs a gated generation. The gate decides admission, runs the
// upstream call and settles the charge; this handler only shapes HTTP.
func (s *Server) Generate(c *gin.Context) {
	featureKey := strings.TrimSpace(c.Param("feature"))
	c.Set("feature_key", featureKey)
	userID := s.userID(c)

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	// The snapshot cache goes stale the moment the gate settles, win or
	// lose, so clients always re-read authoritative state.
	defer s.resolver.Invalidate(ctx, userID)

	resp, err := gateway.Invoke(ctx, s.gateway, userID, featureKey, func(ctx context.Context) (*upstream.GenerateResponse, error) {
		return s.upstreamClient.Generate(ctx, upstream.GenerateRequest{
			Feature: featureKey,
			Prompt:  req.Prompt,
			Inputs:  req.Inputs,
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
