package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/internal/cache"
	"github.com/lewisedginton/financial_qa/internal/config"
	"github.com/lewisedginton/financial_qa/internal/conversation"
	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/logger"
	"github.com/lewisedginton/financial_qa/pkg/metrics"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "finqa",
	})
}

func loadConfig(ctx *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(ctx.String("config-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// components are the long-lived objects built from configuration.
type components struct {
	cfg        *config.AppConfig
	log        logger.Logger
	metrics    *metrics.Metrics
	cacheFiles storage.FileProvider
	convFiles  storage.FileProvider
	cache      *cache.Manager
	store      *conversation.Store
}

// loadComponents builds storage, cache and store. Cache construction runs the
// startup sweep unless it is disabled.
func loadComponents(ctx *cli.Context) (*components, error) {
	log := getLogger(ctx)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	backend, err := storage.NewBackend(ctx.Context, cfg.Storage.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	c := &components{
		cfg:        cfg,
		log:        log,
		metrics:    metrics.NewMetrics(log),
		cacheFiles: backend.Provider(cfg.Cache.Dir, "cache"),
		convFiles:  backend.Provider(cfg.Conversations.Dir, "conversations"),
	}

	opts := []cache.Option{
		cache.WithProvider(c.cacheFiles),
		cache.WithMaxAge(cfg.Cache.MaxAge()),
		cache.WithMemcacheSize(cfg.Cache.MemcacheSize),
		cache.WithLogger(log),
		cache.WithRecorder(c.metrics),
	}
	if !cfg.Cache.SweepOnStart {
		opts = append(opts, cache.WithoutStartupSweep())
	}
	if c.cache, err = cache.New(opts...); err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	c.store, err = conversation.NewStore(c.convFiles,
		conversation.WithLogger(log),
		conversation.WithRecorder(c.metrics),
		conversation.WithExportDir(cfg.Conversations.ResolvedExportDir()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	return c, nil
}
