package cache

import (
	"strings"
	"time"

	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
)

const defaultFeatureTTL = 30 * time.Second

// RegistryCache stores hot-path feature registry lookups.
type RegistryCache interface {
	GetFeature(key string) (*featuredomain.Response, bool)
	SetFeature(key string, feature *featuredomain.Response)
	InvalidateFeature(key string)
}

type registryCache struct {
	features   Cache[string, *featuredomain.Response]
	featureTTL time.Duration
}

// NewRegistryCache returns an in-memory cache tuned for IsEnabled checks.
func NewRegistryCache() RegistryCache {
	return &registryCache{
		features:   NewTTLCache[string, *featuredomain.Response](),
		featureTTL: defaultFeatureTTL,
	}
}

func (c *registryCache) GetFeature(key string) (*featuredomain.Response, bool) {
	return c.features.Get(normalizeKey(key))
}

func (c *registryCache) SetFeature(key string, feature *featuredomain.Response) {
	if feature == nil {
		return
	}
	c.features.Set(normalizeKey(key), feature, c.featureTTL)
}

func (c *registryCache) InvalidateFeature(key string) {
	c.features.Delete(normalizeKey(key))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
