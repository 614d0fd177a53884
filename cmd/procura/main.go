package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/migration"
	"github.com/smallbiznis/procura/internal/observability"
	"github.com/smallbiznis/procura/internal/server"
	"github.com/smallbiznis/procura/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains and HTTP API
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
