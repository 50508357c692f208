package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/testbridge/internal/artifacts"
	"github.com/lucasnoah/testbridge/internal/config"
	"github.com/lucasnoah/testbridge/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openConfiguredDB(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to drop all run history without --yes")
		}

		d, err := openConfiguredDB(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

func openConfiguredDB(ctx context.Context) (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openDB(ctx, cfg)
}

func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.History.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured (set history.database_url or %s)", config.DatabaseURLEnv)
	}
	return db.Open(ctx, cfg.History.DatabaseURL)
}

// recordHistory stores a saved run in the configured database.
func recordHistory(ctx context.Context, cfg *config.Config, run *artifacts.Run) error {
	d, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return d.RecordRun(ctx, db.RunRecord{
		ID:        run.ID,
		Framework: run.Framework,
		WorkDir:   run.WorkDir,
		Success:   run.Success,
		ExitCode:  run.ExitCode,
		TimedOut:  run.TimedOut,
		Error:     run.Error,
		StartedAt: run.StartedAt,
		Duration:  run.Duration(),
		Summary:   run.Summary,
	}, run.Results)
}

func init() {
	dbResetCmd.Flags().Bool("yes", false, "confirm dropping all tables")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
