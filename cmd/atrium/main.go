package main

import (
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/migration"
	"github.com/atriumhq/atrium/internal/observability"
	"github.com/atriumhq/atrium/internal/server"
	"github.com/atriumhq/atrium/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// appOptions is the full application graph. Config is provided once
// here; feature modules must not re-provide it.
func appOptions() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
}

func main() {
	fx.New(appOptions()).Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
