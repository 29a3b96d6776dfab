package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/internal/database"
)

func newDBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database",
		Long:  "Commands that create tables from the schema and check the connection.",
	}
	cmd.AddCommand(newDBPushCommand(a), newDBPingCommand(a))
	return cmd
}

func newDBPushCommand(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Create missing tables for every entity",
		Long: `Create a table for every entity that does not have one yet, with primary keys,
unique constraints and foreign keys. Existing tables are left untouched: this is a
bootstrap step, not a migration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			return runDBPush(ctx, a, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statements instead of executing them")
	return cmd
}

func runDBPush(ctx context.Context, a *app, dryRun bool) error {
	reg, path, err := a.registry()
	if err != nil {
		return err
	}
	provider := a.cfg.Provider
	if provider == "" {
		provider = reg.Provider()
	}

	if dryRun {
		stmts, err := database.CreateTables(reg, provider)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			fmt.Fprintf(a.ui.Out, "%s;\n\n", stmt)
		}
		return nil
	}

	a.ui.Step(1, 2, "connecting")
	pool, err := a.open(ctx, reg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a.ui.Step(2, 2, fmt.Sprintf("creating tables from %s", path))
	if err := database.Push(ctx, pool.DB(), reg, pool.Provider()); err != nil {
		return err
	}
	a.ui.Success("Database is in sync with %s (%d tables)", path, len(reg.ModelNames()))
	return nil
}

func newDBPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := a.registry()
			if err != nil {
				return err
			}
			start := time.Now()
			pool, err := a.open(cmd.Context(), reg)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := pool.HealthCheck(cmd.Context()); err != nil {
				return err
			}

			stats := pool.Stats()
			a.ui.Success("Connected to %s in %s", pool.Provider(), time.Since(start).Round(time.Millisecond))
			return a.ui.Table([]string{"open", "in use", "idle", "wait count"}, [][]string{{
				strconv.Itoa(stats.OpenConnections),
				strconv.Itoa(stats.InUse),
				strconv.Itoa(stats.Idle),
				strconv.FormatInt(stats.WaitCount, 10),
			}})
		},
	}
}
