package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/glrules/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the tables and indexes
needed to store rules, applications and corrections.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("Starting database migration",
		"database", cfg.Database.Path,
		"status_only", status)

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	before, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", store.Path())
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (latest %d)\n", before, storage.ExpectedSchemaVersion)
		if before < storage.ExpectedSchemaVersion {
			fmt.Fprintln(cmd.OutOrStdout(), "Pending migrations: run 'glrules migrate'")
		}
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if before == storage.ExpectedSchemaVersion {
		fmt.Fprintf(cmd.OutOrStdout(), "Database already at schema version %d\n", before)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated database from schema version %d to %d\n", before, storage.ExpectedSchemaVersion)
	return nil
}
