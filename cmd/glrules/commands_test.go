package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/rules"
	"github.com/Veraticus/glrules/internal/testutil"
)

const testOwner = "owner-1"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDecodeFile_Batch(t *testing.T) {
	yamlPath := writeFile(t, "items.yaml", `
- description: printer paper
  vendor_name: Staples
  amount: 42.5
  date: 2024-03-05
  document_id: inv-1
- description: cloud hosting
  line_item_index: 7
  ai_suggestion:
    gl_code: "6400"
    confidence: 0.9
`)
	jsonPath := writeFile(t, "items.json", `[{"description":"printer paper","vendor_name":"Staples","amount":42.5,"date":"2024-03-05"}]`)

	var fromYAML []batchItem
	require.NoError(t, decodeFile(yamlPath, &fromYAML))
	require.Len(t, fromYAML, 2)
	assert.Equal(t, "printer paper", fromYAML[0].Description)
	require.NotNil(t, fromYAML[0].VendorName)
	assert.Equal(t, "Staples", *fromYAML[0].VendorName)
	require.NotNil(t, fromYAML[0].Date)
	assert.Equal(t, "2024-03-05", fromYAML[0].Date.String())
	assert.Equal(t, "inv-1", fromYAML[0].DocumentID)
	require.NotNil(t, fromYAML[1].LineItemIndex)
	assert.Equal(t, 7, *fromYAML[1].LineItemIndex)
	require.NotNil(t, fromYAML[1].AISuggestion)
	assert.Equal(t, "6400", fromYAML[1].AISuggestion.GLCode)

	var fromJSON []batchItem
	require.NoError(t, decodeFile(jsonPath, &fromJSON))
	require.Len(t, fromJSON, 1)
	assert.Equal(t, fromYAML[0].LineItem, fromJSON[0].LineItem)

	assert.Error(t, decodeFile(filepath.Join(t.TempDir(), "missing.yaml"), &fromJSON))
}

func TestRunBatch(t *testing.T) {
	db := testutil.SetupTestDB(t,
		testutil.NewRule(testOwner).Named("Staples").WithVendor("staples").WithKeywords("paper").
			WithGLCode("6100").AutoAssign(0.5).Build(),
	)
	evaluator := rules.NewEvaluator(db.Storage)
	vendor := "Staples"
	index := 4

	items := []batchItem{
		{LineItem: model.LineItem{VendorName: &vendor, Description: "printer paper"}, DocumentID: "inv-1"},
		{LineItem: model.LineItem{Description: "   "}},
		{LineItem: model.LineItem{Description: "hosting"}, LineItemIndex: &index,
			AISuggestion: &model.AISuggestion{GLCode: "6400", Confidence: 0.7}},
		{LineItem: model.LineItem{Description: "mystery"}},
	}

	calls := 0
	results, summary, err := runBatch(context.Background(), evaluator, db.Storage, testOwner, items, true, func() { calls++ })
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 4, calls)

	assert.Equal(t, "6100", results[0].Result.FinalSuggestion.GLCode)
	assert.NotZero(t, results[0].ApplicationID)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Result)
	assert.Equal(t, 4, results[2].Index)
	assert.Equal(t, model.SourceAI, results[2].Result.FinalSuggestion.Source)

	assert.Equal(t, batchSummary{
		Total:       4,
		Rule:        1,
		AI:          1,
		Manual:      1,
		AutoApplied: 1,
		Failed:      1,
		Recorded:    3,
	}, summary)
	assert.Contains(t, summary.String(), "Failed: 1")

	apps, err := db.Storage.ListApplications(context.Background(), testOwner, 0)
	require.NoError(t, err)
	assert.Len(t, apps, 3)
}

func TestRunBatch_Cancelled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := runBatch(ctx, rules.NewEvaluator(db.Storage), db.Storage, testOwner,
		[]batchItem{{LineItem: model.LineItem{Description: "x"}}}, false, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportRules(t *testing.T) {
	db := testutil.SetupTestDB(t,
		testutil.NewRule(testOwner).Named("existing").WithVendor("acme").Build(),
	)
	existing := db.MustFindRule("existing")
	ctx := context.Background()

	path := writeFile(t, "rules.yaml", `
- id: `+existing.ID+`
  name: existing renamed
  is_active: true
  conditions:
    vendor_patterns: [acme, "acme corp"]
  action:
    gl_code: "6200"
- name: new rule
  owner_id: someone-else
  is_active: true
  conditions:
    keywords: [license]
    amount_range:
      max: 1000
  action:
    gl_code: "6300"
    auto_assign: true
    confidence_threshold: 0.8
`)
	var list []model.Rule
	require.NoError(t, decodeFile(path, &list))

	created, updated, err := importRules(ctx, db.Storage, testOwner, list)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)

	stored, err := db.Storage.ListRules(ctx, testOwner, false)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "existing renamed", stored[0].Name)
	assert.Equal(t, "6200", stored[0].Action.GLCode)
	assert.Equal(t, "new rule", stored[1].Name)
	assert.Equal(t, testOwner, stored[1].OwnerID)
	require.NotNil(t, stored[1].Conditions.AmountRange)
	assert.InDelta(t, 1000, *stored[1].Conditions.AmountRange.Max, 1e-9)

	_, _, err = importRules(ctx, db.Storage, testOwner, []model.Rule{{Name: "no code", IsActive: true}})
	assert.ErrorIs(t, err, model.ErrInvalidRule)
}

func TestDecodeRules_DefaultsToActive(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "rules.yaml",
			content: `
- name: implicit
  action: {gl_code: "6100"}
- name: disabled
  is_active: false
  action: {gl_code: "6200"}
- name: enabled
  is_active: true
  action: {gl_code: "6300"}
`,
		},
		{
			name: "json",
			file: "rules.json",
			content: `[
  {"name": "implicit", "action": {"gl_code": "6100"}},
  {"name": "disabled", "is_active": false, "action": {"gl_code": "6200"}},
  {"name": "enabled", "is_active": true, "action": {"gl_code": "6300"}}
]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := decodeRules(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.True(t, list[0].IsActive)
			assert.False(t, list[1].IsActive)
			assert.True(t, list[2].IsActive)
		})
	}
}

func TestImportRules_OmittedActiveFlag(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	list, err := decodeRules(writeFile(t, "rules.yaml", `
- name: software
  conditions:
    keywords: [license]
  action:
    gl_code: "6300"
`))
	require.NoError(t, err)

	created, _, err := importRules(ctx, db.Storage, testOwner, list)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	active, err := db.Storage.GetActiveRules(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "software", active[0].Name)
}

func TestRuleFlags(t *testing.T) {
	var flags ruleFlags
	cmd := &cobra.Command{Use: "create"}
	flags.register(cmd)

	require.NoError(t, cmd.ParseFlags([]string{
		"--name", "Office",
		"--gl-code", "6100",
		"--vendor", "staples|office depot",
		"--vendor", "acme, inc",
		"--max-amount", "500",
		"--start-date", "2024-01-01",
		"--auto-assign",
	}))

	rule, err := flags.rule(cmd, testOwner)
	require.NoError(t, err)
	assert.Equal(t, []string{"staples|office depot", "acme, inc"}, rule.Conditions.VendorPatterns)
	require.NotNil(t, rule.Conditions.AmountRange)
	assert.Nil(t, rule.Conditions.AmountRange.Min)
	assert.InDelta(t, 500, *rule.Conditions.AmountRange.Max, 1e-9)
	require.NotNil(t, rule.Conditions.DateRange)
	assert.Equal(t, "2024-01-01", rule.Conditions.DateRange.Start.String())
	assert.Nil(t, rule.Conditions.DateRange.End)
	assert.True(t, rule.IsActive)
	assert.True(t, rule.Action.AutoAssign)
	assert.InDelta(t, 0.8, rule.Action.ConfidenceThreshold, 1e-9)

	var bad ruleFlags
	cmd = &cobra.Command{Use: "create"}
	bad.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--name", "x", "--gl-code", "1", "--end-date", "soon"}))
	_, err = bad.rule(cmd, testOwner)
	assert.Error(t, err)
}

func TestLineItemFlags(t *testing.T) {
	var flags lineItemFlags
	cmd := &cobra.Command{Use: "evaluate"}
	flags.register(cmd)

	require.NoError(t, cmd.ParseFlags([]string{"--description", "paper", "--amount", "0"}))
	item, err := flags.lineItem(cmd)
	require.NoError(t, err)
	assert.Nil(t, item.VendorName)
	require.NotNil(t, item.Amount, "an explicit zero amount is kept")
	assert.Zero(t, *item.Amount)

	var blank lineItemFlags
	cmd = &cobra.Command{Use: "evaluate"}
	blank.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--description", " "}))
	_, err = blank.lineItem(cmd)
	assert.ErrorIs(t, err, model.ErrInvalidLineItem)
}

func TestTestRule_IgnoresActiveFlag(t *testing.T) {
	rule := testutil.NewRule(testOwner).WithVendor("acme").WithAmountRange(10, 100).Inactive().Build()
	vendor := "ACME"
	amount := 50.0

	match := testRule(rule, model.LineItem{VendorName: &vendor, Amount: &amount, Description: "x"}, rules.DefaultThresholds())
	assert.Equal(t, 50, match.Score)
	assert.Equal(t, []model.Clause{model.ClauseVendorPatterns, model.ClauseAmountRange}, match.MatchedConditions)
}
