package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/migration"
	"github.com/smallbiznis/tradeboard/internal/observability"
	"github.com/smallbiznis/tradeboard/internal/scheduler"
	"github.com/smallbiznis/tradeboard/internal/server"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
)

// The monolith serves the HTTP API and runs the scheduler in one process.
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
