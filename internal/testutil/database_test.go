package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB_SeedsRules(t *testing.T) {
	db := SetupTestDB(t,
		NewRule("owner-1").Named("acme").WithVendor("Acme").AutoAssign(0.2).Build(),
		NewRule("owner-1").Named("off").WithKeywords("x").Inactive().Build(),
	)

	acme := db.MustFindRule("acme")
	assert.NotEmpty(t, acme.ID)
	assert.Positive(t, acme.Seq)

	active, err := db.Storage.GetActiveRules(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, acme.ID, active[0].ID)
}

func TestRuleBuilder_BuildCopies(t *testing.T) {
	b := NewRule("owner-1").WithVendor("Acme")
	first := b.Build()
	second := b.WithVendor("Globex").Build()

	assert.Equal(t, []string{"Acme"}, first.Conditions.VendorPatterns)
	assert.Equal(t, []string{"Acme", "Globex"}, second.Conditions.VendorPatterns)
}
