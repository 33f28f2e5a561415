// Package rules scores document line items against user-defined GL rules and
// selects the GL code to suggest.
package rules

import (
	"context"
	"time"

	"github.com/Veraticus/glrules/internal/model"
)

// RuleSource supplies the rule snapshot for an owner.
type RuleSource interface {
	// GetActiveRules returns the owner's active rules in creation order.
	GetActiveRules(ctx context.Context, ownerID string) ([]model.Rule, error)
}

// AISuggester proposes a GL code when no rule is confident enough.
type AISuggester interface {
	Suggest(ctx context.Context, item model.LineItem) (*model.AISuggestion, error)
}

// Recorder receives evaluation telemetry.
type Recorder interface {
	RecordEvaluation(source model.SuggestionSource, matches int, elapsed time.Duration)
	RecordMalformedPattern(ownerID string)
	RecordSuggesterError()
}

// Thresholds gate approval and the rule-over-AI decision.
type Thresholds struct {
	// SuggestMinConfidence is the confidence below which a match requires approval.
	SuggestMinConfidence float64
	// AutoApplyMinConfidence is the confidence at which a rule beats an AI suggestion.
	AutoApplyMinConfidence float64
}

// Default threshold values.
const (
	DefaultSuggestMinConfidence   = 0.5
	DefaultAutoApplyMinConfidence = 0.8
)

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SuggestMinConfidence:   DefaultSuggestMinConfidence,
		AutoApplyMinConfidence: DefaultAutoApplyMinConfidence,
	}
}
