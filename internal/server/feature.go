package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
)

type createFeatureRequest struct {
	Key        string         `json:"key"`
	Domain     string         `json:"domain"`
	Name       string         `json:"name"`
	Enabled    *bool          `json:"enabled"`
	ComingSoon *string        `json:"coming_soon"`
	Metadata   map[string]any `json:"metadata"`
}

type updateFeatureRequest struct {
	Name       *string        `json:"name,omitempty"`
	Domain     *string        `json:"domain,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	ComingSoon *string        `json:"coming_soon,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ListFeatures returns the catalog as end users see it.
func (s *Server) ListFeatures(c *gin.Context) {
	s.listFeatures(c)
}

// AdminListFeatures returns the catalog with operator filters.
func (s *Server) AdminListFeatures(c *gin.Context) {
	s.listFeatures(c)
}

func (s *Server) listFeatures(c *gin.Context) {
	var query struct {
		Domain  string `form:"domain"`
		Enabled string `form:"enabled"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var enabled *bool
	switch strings.ToLower(strings.TrimSpace(query.Enabled)) {
	case "":
	case "true", "1":
		v := true
		enabled = &v
	case "false", "0":
		v := false
		enabled = &v
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.featureSvc.List(c.Request.Context(), featuredomain.ListRequest{
		Domain:  strings.TrimSpace(query.Domain),
		Enabled: enabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateFeature(c *gin.Context) {
	var req createFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.featureSvc.Create(c.Request.Context(), featuredomain.CreateRequest{
		Key:        strings.TrimSpace(req.Key),
		Domain:     strings.TrimSpace(req.Domain),
		Name:       strings.TrimSpace(req.Name),
		Enabled:    req.Enabled,
		ComingSoon: trimOptional(req.ComingSoon),
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateFeature(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))

	var req updateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.featureSvc.Update(c.Request.Context(), featuredomain.UpdateRequest{
		Key:        key,
		Name:       trimOptional(req.Name),
		Domain:     trimOptional(req.Domain),
		Enabled:    req.Enabled,
		ComingSoon: trimOptional(req.ComingSoon),
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ArchiveFeature(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	resp, err := s.featureSvc.Archive(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
