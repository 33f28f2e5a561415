package rules

import (
	"testing"

	"github.com/Veraticus/glrules/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(id string, score, priority int, seq int64) model.RuleMatch {
	return model.RuleMatch{
		Rule: model.Rule{
			ID:       id,
			Priority: priority,
			Seq:      seq,
			IsActive: true,
			Action:   model.Action{GLCode: "gl-" + id},
		},
		Score:      score,
		Confidence: float64(score) / 100,
	}
}

func ids(matches []model.RuleMatch) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Rule.ID
	}
	return out
}

func TestRank(t *testing.T) {
	tests := []struct {
		name    string
		matches []model.RuleMatch
		want    []string
	}{
		{
			name:    "orders by score",
			matches: []model.RuleMatch{match("low", 20, 0, 1), match("high", 65, 0, 2), match("mid", 30, 0, 3)},
			want:    []string{"high", "mid", "low"},
		},
		{
			name:    "drops zero scores",
			matches: []model.RuleMatch{match("zero", 0, 100, 1), match("one", 10, 0, 2)},
			want:    []string{"one"},
		},
		{
			name:    "priority breaks score ties",
			matches: []model.RuleMatch{match("p1", 30, 1, 1), match("p5", 30, 5, 2)},
			want:    []string{"p5", "p1"},
		},
		{
			name:    "creation sequence breaks priority ties",
			matches: []model.RuleMatch{match("newer", 30, 1, 9), match("older", 30, 1, 4)},
			want:    []string{"older", "newer"},
		},
		{
			name:    "input order breaks full ties",
			matches: []model.RuleMatch{match("first", 30, 1, 0), match("second", 30, 1, 0)},
			want:    []string{"first", "second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Rank(tt.matches)))
		})
	}
}

func TestSelect_RuleWithoutAI(t *testing.T) {
	m := match("r1", 30, 0, 1)
	m.ShouldAutoApply = true

	result := Select([]model.RuleMatch{m}, nil, DefaultThresholds())

	require.NotNil(t, result.BestMatch)
	assert.Equal(t, "r1", result.BestMatch.Rule.ID)
	assert.Equal(t, model.SourceRule, result.FinalSuggestion.Source)
	assert.Equal(t, "gl-r1", result.FinalSuggestion.GLCode)
	assert.InDelta(t, 0.30, result.FinalSuggestion.Confidence, 1e-9)
	assert.True(t, result.FinalSuggestion.AutoApplied)
	require.NotNil(t, result.FinalSuggestion.RuleID)
	assert.Equal(t, "r1", *result.FinalSuggestion.RuleID)
}

func TestSelect_AIWhenNoRuleMatches(t *testing.T) {
	ai := &model.AISuggestion{GLCode: "9999", Confidence: 0.6}

	result := Select([]model.RuleMatch{match("r1", 0, 0, 1)}, ai, DefaultThresholds())

	assert.Nil(t, result.BestMatch)
	assert.Empty(t, result.Matches)
	assert.Equal(t, model.FinalSuggestion{GLCode: "9999", Source: model.SourceAI, Confidence: 0.6}, result.FinalSuggestion)
	assert.False(t, result.FinalSuggestion.AutoApplied)
}

func TestSelect_ConfidentRuleBeatsAI(t *testing.T) {
	ai := &model.AISuggestion{GLCode: "9999", Confidence: 0.95}

	result := Select([]model.RuleMatch{match("r1", 85, 0, 1)}, ai, DefaultThresholds())

	assert.Equal(t, model.SourceRule, result.FinalSuggestion.Source)
	assert.Equal(t, "gl-r1", result.FinalSuggestion.GLCode)
	assert.InDelta(t, 0.85, result.FinalSuggestion.Confidence, 1e-9)
	assert.Equal(t, ai, result.AISuggestion)
}

func TestSelect_WeakRuleLosesToAI(t *testing.T) {
	ai := &model.AISuggestion{GLCode: "9999", Confidence: 0.4}
	m := match("r1", 65, 0, 1)
	m.ShouldAutoApply = true

	result := Select([]model.RuleMatch{m}, ai, DefaultThresholds())

	require.NotNil(t, result.BestMatch)
	assert.Equal(t, model.SourceAI, result.FinalSuggestion.Source)
	assert.Equal(t, "9999", result.FinalSuggestion.GLCode)
	assert.False(t, result.FinalSuggestion.AutoApplied)
	assert.Nil(t, result.FinalSuggestion.RuleID)
}

func TestSelect_OverrideAI(t *testing.T) {
	m := match("r1", 30, 0, 1)
	m.Rule.Action.OverrideAI = true

	result := Select([]model.RuleMatch{m}, &model.AISuggestion{GLCode: "9999", Confidence: 0.99}, DefaultThresholds())

	assert.Equal(t, model.SourceRule, result.FinalSuggestion.Source)
	assert.Equal(t, "gl-r1", result.FinalSuggestion.GLCode)
}

func TestSelect_ThresholdBoundary(t *testing.T) {
	ai := &model.AISuggestion{GLCode: "9999", Confidence: 0.9}

	at := Select([]model.RuleMatch{match("r1", 80, 0, 1)}, ai, DefaultThresholds())
	assert.Equal(t, model.SourceRule, at.FinalSuggestion.Source)

	below := Select([]model.RuleMatch{match("r1", 79, 0, 1)}, ai, DefaultThresholds())
	assert.Equal(t, model.SourceAI, below.FinalSuggestion.Source)
}

func TestSelect_Manual(t *testing.T) {
	result := Select(nil, nil, DefaultThresholds())

	assert.NotNil(t, result.Matches)
	assert.Empty(t, result.Matches)
	assert.Nil(t, result.BestMatch)
	assert.Equal(t, model.FinalSuggestion{Source: model.SourceManual}, result.FinalSuggestion)
}

func TestSelect_NormalizesAISuggestion(t *testing.T) {
	blank := Select(nil, &model.AISuggestion{GLCode: "  ", Confidence: 0.9}, DefaultThresholds())
	assert.Nil(t, blank.AISuggestion)
	assert.Equal(t, model.SourceManual, blank.FinalSuggestion.Source)

	high := Select(nil, &model.AISuggestion{GLCode: " 7000 ", Confidence: 3}, DefaultThresholds())
	assert.Equal(t, "7000", high.FinalSuggestion.GLCode)
	assert.Equal(t, 1.0, high.FinalSuggestion.Confidence)

	low := Select(nil, &model.AISuggestion{GLCode: "7000", Confidence: -0.5}, DefaultThresholds())
	assert.Zero(t, low.FinalSuggestion.Confidence)
}
