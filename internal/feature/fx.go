package feature

import (
	"github.com/smallbiznis/quotagate/internal/cache"
	"github.com/smallbiznis/quotagate/internal/feature/repository"
	"github.com/smallbiznis/quotagate/internal/feature/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feature.service",
	fx.Provide(cache.NewRegistryCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
