package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/migration"
	"github.com/smallbiznis/banca/internal/observability"
	"github.com/smallbiznis/banca/internal/server"
	"github.com/smallbiznis/banca/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
