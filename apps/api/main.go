package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/observability"
	"github.com/smallbiznis/tradeboard/internal/server"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// No scheduler; run apps/scheduler alongside.
		server.Module,
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
