package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

// EvaluateRules scores one line item against a rule set and selects the final
// suggestion. It performs no I/O and returns the same result for the same input.
func EvaluateRules(rules []model.Rule, item model.LineItem, ai *model.AISuggestion, thresholds Thresholds) (model.EvaluationResult, error) {
	if err := item.Validate(); err != nil {
		return model.EvaluationResult{}, err
	}
	return Select(NewScorer(rules, thresholds).Score(item), ai, thresholds), nil
}

// Evaluator evaluates line items against the rules an owner has stored.
type Evaluator struct {
	source     RuleSource
	suggester  AISuggester
	recorder   Recorder
	cache      *SnapshotCache
	thresholds Thresholds
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithThresholds overrides the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Evaluator) {
		e.thresholds = t
	}
}

// WithSuggester consults s when the caller supplies no AI suggestion and no rule
// is decisive on its own.
func WithSuggester(s AISuggester) Option {
	return func(e *Evaluator) {
		e.suggester = s
	}
}

// WithSnapshotCache reuses compiled rule snapshots across evaluations.
func WithSnapshotCache(c *SnapshotCache) Option {
	return func(e *Evaluator) {
		e.cache = c
	}
}

// WithRecorder reports evaluation telemetry to r.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) {
		e.recorder = r
	}
}

// NewEvaluator creates an evaluator reading rules from source.
func NewEvaluator(source RuleSource, opts ...Option) *Evaluator {
	e := &Evaluator{
		source:     source,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the thresholds in effect.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate scores the item against the owner's active rules. Only an invalid
// line item, a missing owner or a rule store failure produce an error; every
// other condition degrades to a lower-confidence suggestion.
func (e *Evaluator) Evaluate(ctx context.Context, ownerID string, item model.LineItem, ai *model.AISuggestion) (model.EvaluationResult, error) {
	start := time.Now()

	if err := item.Validate(); err != nil {
		return model.EvaluationResult{}, err
	}
	if strings.TrimSpace(ownerID) == "" {
		return model.EvaluationResult{}, common.ErrMissingOwner
	}

	scorer, err := e.scorer(ctx, ownerID)
	if err != nil {
		return model.EvaluationResult{}, err
	}

	matches := scorer.Score(item)
	result := Select(matches, ai, e.thresholds)

	if result.AISuggestion == nil && e.suggester != nil && needsAI(result.BestMatch, e.thresholds) {
		if suggestion := e.suggest(ctx, item); suggestion != nil {
			result = Select(matches, suggestion, e.thresholds)
		}
	}

	if e.recorder != nil {
		e.recorder.RecordEvaluation(result.FinalSuggestion.Source, len(result.Matches), time.Since(start))
	}

	slog.Debug("Evaluated line item",
		"owner_id", ownerID,
		"rules", scorer.Len(),
		"matches", len(result.Matches),
		"source", result.FinalSuggestion.Source,
		"gl_code", result.FinalSuggestion.GLCode,
		"confidence", result.FinalSuggestion.Confidence)

	return result, nil
}

// Invalidate discards any cached snapshot for the owner.
func (e *Evaluator) Invalidate(ownerID string) {
	if e.cache != nil {
		e.cache.Invalidate(ownerID)
	}
}

func (e *Evaluator) scorer(ctx context.Context, ownerID string) (*Scorer, error) {
	var generation uint64
	if e.cache != nil {
		if s, ok := e.cache.Get(ownerID); ok {
			return s, nil
		}
		generation = e.cache.Generation(ownerID)
	}

	rules, err := e.source.GetActiveRules(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for owner %s: %w", ownerID, err)
	}

	s := NewScorer(rules, e.thresholds)
	if e.recorder != nil {
		for range s.Malformed() {
			e.recorder.RecordMalformedPattern(ownerID)
		}
	}
	if e.cache != nil && !e.cache.Set(ownerID, generation, s) {
		slog.Debug("Rules changed while loading, snapshot not cached", "owner_id", ownerID)
	}
	return s, nil
}

func (e *Evaluator) suggest(ctx context.Context, item model.LineItem) *model.AISuggestion {
	suggestion, err := e.suggester.Suggest(ctx, item)
	if err != nil {
		slog.Warn("AI suggestion failed, continuing without it", "error", err)
		if e.recorder != nil {
			e.recorder.RecordSuggesterError()
		}
		return nil
	}
	return suggestion
}
