package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/shiplet/shiplet/internal/logger"
	"github.com/shiplet/shiplet/internal/migration"
	"github.com/shiplet/shiplet/internal/observability"
	"github.com/shiplet/shiplet/internal/scheduler"
	"github.com/shiplet/shiplet/internal/server"
	"github.com/shiplet/shiplet/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema
		migration.Module,

		// HTTP surface and all functional domains it composes
		server.Module,

		// Background housekeeping
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
