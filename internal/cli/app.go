// Package cli implements the finqa command line: configuration checks, cache
// and conversation administration, one-shot questions and the ops server.
package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// NewApp returns the finqa application with every command registered.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "finqa",
		Usage:   "Financial Q&A cache and conversation tooling",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  ctx.String("log-format"),
				Service: "finqa",
				Output:  ctx.App.ErrWriter,
			})
			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}
			return nil
		},
		Commands: []*cli.Command{
			ConfigCommand(),
			CacheCommand(),
			ConversationsCommand(),
			AskCommand(),
			ServeCommand(),
		},
	}
}
