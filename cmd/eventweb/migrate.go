package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/eventweb/internal/adapter/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL event store schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, _, err := loadConfig(cmd)
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
					return err
				}
				return printVersion(cmd, cfg.Postgres.DSN)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid steps %q", args[0])
					}
					steps = n
				}
				cfg, _, _, err := loadConfig(cmd)
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, steps); err != nil {
					return err
				}
				return printVersion(cmd, cfg.Postgres.DSN)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, _, err := loadConfig(cmd)
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				return printVersion(cmd, cfg.Postgres.DSN)
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, dsn string) error {
	v, err := postgres.MigrationVersion(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
	return err
}
