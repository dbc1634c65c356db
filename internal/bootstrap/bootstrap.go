// Package bootstrap composes the fx graphs of the printfleet processes.
package bootstrap

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/clock"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector"
	"github.com/smallbiznis/printfleet/internal/integration"
	"github.com/smallbiznis/printfleet/internal/migration"
	"github.com/smallbiznis/printfleet/internal/observability"
	"github.com/smallbiznis/printfleet/internal/printer"
	"github.com/smallbiznis/printfleet/internal/ratelimit"
	"github.com/smallbiznis/printfleet/internal/scheduler"
	"github.com/smallbiznis/printfleet/internal/server"
	"github.com/smallbiznis/printfleet/pkg/db"
	"go.uber.org/fx"
)

// Core is the infrastructure shared by every process.
func Core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// API serves the HTTP API and migrates the schema on start. Its scheduler
// follows SCHEDULER_AUTOSTART.
func API() fx.Option {
	return fx.Options(
		Core(),
		migration.Module,
		server.Module,
		fx.Invoke(server.RunHTTP),
	)
}

// Poller runs only the polling scheduler. It always starts the scheduler and
// exposes /health and /metrics on the poller port.
func Poller() fx.Option {
	return fx.Options(
		Core(),
		connector.Module,
		integration.Module,
		printer.Module,
		ratelimit.Module,
		scheduler.Module,
		fx.Decorate(pollerConfig),
		fx.Decorate(pollerSchedulerConfig),
		fx.Provide(server.NewEngine),
		fx.Invoke(server.RunHTTP),
	)
}

func pollerConfig(cfg config.Config) config.Config {
	cfg.HTTPPort = cfg.PollerHTTPPort
	return cfg
}

func pollerSchedulerConfig(cfg scheduler.Config) scheduler.Config {
	cfg.Autostart = true
	return cfg
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
