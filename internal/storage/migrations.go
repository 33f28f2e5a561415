package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "GL coding rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS gl_rules (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT UNIQUE NOT NULL,
					owner_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					conditions TEXT NOT NULL,
					action TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_gl_rules_owner_active ON gl_rules(owner_id, is_active)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Rule application audit trail",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS gl_rule_applications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id TEXT NOT NULL,
					rule_id TEXT,
					document_id TEXT NOT NULL DEFAULT '',
					line_item_index INTEGER NOT NULL DEFAULT 0,
					applied_gl_code TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL CHECK (source IN ('rule', 'ai', 'manual')),
					confidence_score REAL NOT NULL DEFAULT 0,
					was_overridden BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_gl_rule_applications_owner ON gl_rule_applications(owner_id, created_at)`,
				`CREATE INDEX idx_gl_rule_applications_rule ON gl_rule_applications(rule_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "GL code corrections",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS gl_corrections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id TEXT NOT NULL,
					application_id INTEGER REFERENCES gl_rule_applications(id) ON DELETE SET NULL,
					rule_id TEXT,
					vendor_name TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					original_gl_code TEXT NOT NULL DEFAULT '',
					corrected_gl_code TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_gl_corrections_owner_vendor ON gl_corrections(owner_id, vendor_name)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
