// Command eventweb serves the event-sourced todo API.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/eventweb/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "eventweb",
		Short:        "Event-sourced HTTP API",
		SilenceUsage: true,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	serve := newServeCmd()
	cmd.AddCommand(serve, newMigrateCmd())
	// Running the binary without a subcommand serves.
	cmd.RunE = serve.RunE
	return cmd
}

// loadConfig resolves defaults < YAML < ENV < CLI for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, string, config.CLIFlags, error) {
	flags := config.FlagsFrom(cmd.Flags())
	cfg, path, err := config.LoadWithCLI(flags)
	return cfg, path, flags, err
}
