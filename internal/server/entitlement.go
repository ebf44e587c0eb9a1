package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEntitlements returns the caller's advisory entitlement snapshot.
// Served through the cache; gated invocations never read this path.
func (s *Server) GetEntitlements(c *gin.Context) {
	snapshot, err := s.resolver.ResolveCached(c.Request.Context(), s.userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}
