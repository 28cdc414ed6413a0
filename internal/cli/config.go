package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)
	log.Info("Validating configuration")

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return err
	}
	cfg.LogConfig(log)
	fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}
