package commands

import (
	"fmt"

	"github.com/cloo-solutions/knowtext/internal/config"
	"github.com/cloo-solutions/knowtext/internal/database"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply, roll back or inspect database migrations",
	}

	cmd.PersistentFlags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, func(url, source string) (*database.MigrationStatus, error) {
				return database.MigrateUp(url, source)
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration(cmd, func(url, source string) (*database.MigrationStatus, error) {
				return database.MigrateDown(url, source, steps)
			})
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, database.MigrationVersion)
		},
	})

	return cmd
}

func runMigration(cmd *cobra.Command, fn func(url, source string) (*database.MigrationStatus, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	source, _ := cmd.Flags().GetString("migrations")

	status, err := fn(cfg.DatabaseURL, source)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatMigrationStatus(status))
	return nil
}

func formatMigrationStatus(s *database.MigrationStatus) string {
	switch {
	case s.Version == 0 && !s.Changed:
		return "no migrations applied"
	case !s.Changed:
		return fmt.Sprintf("database is up to date (version %d)", s.Version)
	default:
		return fmt.Sprintf("migrated to version %d", s.Version)
	}
}
