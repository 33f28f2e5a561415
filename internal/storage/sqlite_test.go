package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/glrules/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err, "failed to create storage")

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func floatPtr(f float64) *float64 { return &f }

func testRule(owner, name string) *model.Rule {
	return &model.Rule{
		OwnerID:  owner,
		Name:     name,
		IsActive: true,
		Conditions: model.Conditions{
			VendorPatterns: []string{"acme"},
			AmountRange:    &model.AmountRange{Min: floatPtr(10), Max: floatPtr(500)},
		},
		Action: model.Action{GLCode: "6000-100", AutoAssign: true, ConfidenceThreshold: 0.5},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	require.ErrorIs(t, err, ErrEmptyString)

	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "rules.db")
	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Equal(t, dbPath, store.Path())
	assert.NoError(t, store.Ping(context.Background()))
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"gl_rules", "gl_rule_applications", "gl_corrections"} {
		var count int
		err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestMigrate_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := parseTimestamp("2024-03-05 10:11:12.5+00:00")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, 500000000, ts.Nanosecond())

	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}
