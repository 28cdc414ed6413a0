package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/internal/server"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// ServeCommand returns a command that runs the operational HTTP server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the health, metrics and cache admin server",
		Action: serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	c.cfg.LogConfig(c.log)

	srv, err := server.New(server.Config{
		Port:               c.cfg.Monitoring.HTTPPort,
		MetricsEnabled:     c.cfg.Monitoring.MetricsEnabled,
		MetricsPort:        c.cfg.Monitoring.MetricsPort,
		HealthCheckTimeout: c.cfg.Monitoring.HealthCheckTimeout,
		InvalidateTargets:  c.cfg.Cache.InvalidateTargets,
		InvalidateInterval: c.cfg.Cache.InvalidateInterval,
	}, server.Deps{
		Cache:             c.cache,
		Store:             c.store,
		CacheFiles:        c.cacheFiles,
		ConversationFiles: c.convFiles,
		Metrics:           c.metrics,
		Log:               c.log,
	})
	if err != nil {
		c.log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(runCtx); err != nil {
		c.log.Error("Fatal server error occurred", logger.ErrorField(err))
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
