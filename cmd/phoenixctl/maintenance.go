package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"solana-phoenix-scanner/internal/app"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded PostgreSQL migrations and, when storage.clickhouse_dsn
is set, the ClickHouse migrations. Migrations are idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Storage.UseMemory {
				fmt.Fprintln(c.out, "memory storage: nothing to migrate")
				return nil
			}
			if err := app.Migrate(cmd.Context(), c.cfg.Storage); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		},
	}
}

func (c *cli) pruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old score history and delivered alerts",
		Long: `Delete scores older than --days, keeping each token's latest score, and
delivered alerts older than --days. Undelivered alerts are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return errors.New("--days must be at least 1")
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				scores, alerts, err := a.Orchestrator.Prune(cmd.Context(), time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "pruned %d scores and %d alerts\n", scores, alerts)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Retention in days")
	return cmd
}
