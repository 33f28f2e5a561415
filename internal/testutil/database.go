// Package testutil provides test helpers for seeding rule databases.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/storage"
)

// TestDB is a migrated in-memory database with the rules it was seeded with.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Rules   []model.Rule
}

// SetupTestDB creates a new in-memory test database seeded with rules.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewRule("owner-1").WithVendor("Acme").WithGLCode("6000").Build(),
//	)
func SetupTestDB(t *testing.T, rules ...model.Rule) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	seeded := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		if err := store.CreateRule(ctx, &rule); err != nil {
			t.Fatalf("failed to seed rule %q: %v", rule.Name, err)
		}
		seeded = append(seeded, rule)
	}

	return &TestDB{
		Storage: store,
		Rules:   seeded,
		t:       t,
	}
}

// MustFindRule returns the seeded rule with the given name or fails the test.
func (db *TestDB) MustFindRule(name string) model.Rule {
	db.t.Helper()
	for _, r := range db.Rules {
		if r.Name == name {
			return r
		}
	}
	db.t.Fatalf("rule %q was not seeded", name)
	return model.Rule{}
}
