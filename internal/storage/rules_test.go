package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

func TestCreateRule(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("owner-1", "Acme supplies")
	require.NoError(t, store.CreateRule(ctx, rule))

	assert.NotEmpty(t, rule.ID)
	assert.Positive(t, rule.Seq)
	assert.False(t, rule.CreatedAt.IsZero())

	got, err := store.GetRule(ctx, "owner-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Seq, got.Seq)
	assert.Equal(t, rule.Conditions, got.Conditions)
	assert.Equal(t, rule.Action, got.Action)
	assert.True(t, got.IsActive)
}

func TestCreateRule_KeepsCallerID(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("owner-1", "fixed id")
	rule.ID = "rule-fixed"
	require.NoError(t, store.CreateRule(ctx, rule))
	assert.Equal(t, "rule-fixed", rule.ID)

	dup := testRule("owner-1", "again")
	dup.ID = "rule-fixed"
	assert.ErrorIs(t, store.CreateRule(ctx, dup), common.ErrDuplicateEntry)
}

func TestCreateRule_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.Rule)
	}{
		{name: "missing owner", mutate: func(r *model.Rule) { r.OwnerID = "" }},
		{name: "missing GL code", mutate: func(r *model.Rule) { r.Action.GLCode = " " }},
		{name: "threshold above one", mutate: func(r *model.Rule) { r.Action.ConfidenceThreshold = 1.5 }},
		{name: "inverted amount range", mutate: func(r *model.Rule) {
			r.Conditions.AmountRange = &model.AmountRange{Min: floatPtr(100), Max: floatPtr(1)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule("owner-1", tt.name)
			tt.mutate(rule)
			assert.ErrorIs(t, store.CreateRule(ctx, rule), model.ErrInvalidRule)
		})
	}

	assert.ErrorIs(t, store.CreateRule(ctx, nil), ErrNilParameter)
}

func TestListRules_OwnerScopedAndOrdered(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := testRule("owner-1", "first")
	second := testRule("owner-1", "second")
	second.IsActive = false
	third := testRule("owner-1", "third")
	other := testRule("owner-2", "other")
	for _, r := range []*model.Rule{first, second, third, other} {
		require.NoError(t, store.CreateRule(ctx, r))
	}

	all, err := store.ListRules(ctx, "owner-1", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{all[0].Name, all[1].Name, all[2].Name})

	active, err := store.GetActiveRules(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].Name)
	assert.Equal(t, "third", active[1].Name)
	assert.Less(t, active[0].Seq, active[1].Seq)

	none, err := store.GetActiveRules(ctx, "owner-3")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = store.GetRule(ctx, "owner-2", first.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateRule(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("owner-1", "before")
	require.NoError(t, store.CreateRule(ctx, rule))

	rule.Name = "after"
	rule.Priority = 7
	rule.Conditions = model.Conditions{Keywords: []string{"license"}}
	rule.Action.OverrideAI = true
	require.NoError(t, store.UpdateRule(ctx, rule))

	got, err := store.GetRule(ctx, "owner-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, 7, got.Priority)
	assert.Equal(t, []string{"license"}, got.Conditions.Keywords)
	assert.Nil(t, got.Conditions.AmountRange)
	assert.True(t, got.Action.OverrideAI)
	assert.Equal(t, rule.Seq, got.Seq, "updates keep the creation sequence")

	foreign := *rule
	foreign.OwnerID = "owner-2"
	assert.ErrorIs(t, store.UpdateRule(ctx, &foreign), common.ErrNotFound)

	missing := testRule("owner-1", "missing")
	missing.ID = "nope"
	assert.ErrorIs(t, store.UpdateRule(ctx, missing), common.ErrNotFound)
}

func TestSetRuleActiveAndDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("owner-1", "toggle")
	require.NoError(t, store.CreateRule(ctx, rule))

	require.NoError(t, store.SetRuleActive(ctx, "owner-1", rule.ID, false))
	active, err := store.GetActiveRules(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, store.SetRuleActive(ctx, "owner-1", rule.ID, true))
	active, err = store.GetActiveRules(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	assert.ErrorIs(t, store.DeleteRule(ctx, "owner-2", rule.ID), common.ErrNotFound)
	require.NoError(t, store.DeleteRule(ctx, "owner-1", rule.ID))
	assert.ErrorIs(t, store.DeleteRule(ctx, "owner-1", rule.ID), common.ErrNotFound)
	assert.ErrorIs(t, store.SetRuleActive(ctx, "owner-1", rule.ID, true), common.ErrNotFound)
}

func TestGetRule_RejectsUnknownStoredFields(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("owner-1", "tampered")
	require.NoError(t, store.CreateRule(ctx, rule))

	_, err := store.db.Exec(`UPDATE gl_rules SET conditions = '{"regex_everything": true}' WHERE id = ?`, rule.ID)
	require.NoError(t, err)

	_, err = store.GetRule(ctx, "owner-1", rule.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid conditions")
}

func TestRuleQueries_RequireOwner(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetActiveRules(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = store.GetRule(ctx, "owner-1", "")
	assert.ErrorIs(t, err, ErrEmptyString)

	//nolint:staticcheck // testing nil context handling
	_, err = store.ListRules(nil, "owner-1", false)
	assert.ErrorIs(t, err, ErrNilContext)
}
