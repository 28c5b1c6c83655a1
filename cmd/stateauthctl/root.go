package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth/config"
	"github.com/MrEthical07/stateauth/internal/logging"
)

// cliApp carries what PersistentPreRunE resolved to the subcommands.
type cliApp struct {
	configFile string
	settings   *config.Settings
	logger     *slog.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stateauthctl",
		Short:         "Operate a stateauth deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(config.Options{File: app.configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			app.settings = settings
			app.logger = logging.Setup("stateauthctl", version, settings.LogFormat,
				logging.ParseLevel(settings.LogLevel), cmd.ErrOrStderr())
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configFile, "config", "", "config file path (.env or yaml)")
	flags.String("redis-addr", "", "redis address")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-format", "", "log format: json or text")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("jwt-secret", "", "HS256 signing secret")

	cmd.AddCommand(NewMigrateCmd(app))
	cmd.AddCommand(NewHashPasswordCmd(app))
	cmd.AddCommand(NewTokenCmd(app))
	cmd.AddCommand(NewTOTPCmd(app))
	cmd.AddCommand(NewLoadtestCmd(app))
	cmd.AddCommand(NewSessionsCmd(app))

	return cmd
}
