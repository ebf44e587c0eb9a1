package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/quotagate/internal/clock"
	"github.com/smallbiznis/quotagate/internal/config"
	"github.com/smallbiznis/quotagate/internal/migration"
	"github.com/smallbiznis/quotagate/internal/observability"
	"github.com/smallbiznis/quotagate/internal/scheduler"
	"github.com/smallbiznis/quotagate/internal/server"
	"github.com/smallbiznis/quotagate/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
