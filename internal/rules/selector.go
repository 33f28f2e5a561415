package rules

import (
	"math"
	"sort"
	"strings"

	"github.com/Veraticus/glrules/internal/model"
)

// Rank drops zero-score matches and orders the rest by score, then priority,
// then creation sequence. Matches that tie on all three keep their input order.
func Rank(matches []model.RuleMatch) []model.RuleMatch {
	ranked := make([]model.RuleMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score > 0 {
			ranked = append(ranked, m)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Rule.Priority != b.Rule.Priority {
			return a.Rule.Priority > b.Rule.Priority
		}
		return a.Rule.Seq < b.Rule.Seq
	})

	return ranked
}

// Select ranks the matches and chooses the final suggestion.
// The best rule wins when it overrides AI, when no AI suggestion is supplied,
// or when its confidence reaches the auto-apply threshold.
func Select(matches []model.RuleMatch, ai *model.AISuggestion, thresholds Thresholds) model.EvaluationResult {
	ai = normalizeAISuggestion(ai)
	ranked := Rank(matches)

	result := model.EvaluationResult{
		Matches:      ranked,
		AISuggestion: ai,
	}

	var best *model.RuleMatch
	if len(ranked) > 0 {
		b := ranked[0]
		best = &b
		result.BestMatch = best
	}

	switch {
	case best != nil && (ai == nil || !needsAI(best, thresholds)):
		result.FinalSuggestion = model.FinalSuggestion{
			GLCode:      best.Rule.Action.GLCode,
			Source:      model.SourceRule,
			Confidence:  best.Confidence,
			AutoApplied: best.ShouldAutoApply,
		}
		if best.Rule.ID != "" {
			id := best.Rule.ID
			result.FinalSuggestion.RuleID = &id
		}
	case ai != nil:
		result.FinalSuggestion = model.FinalSuggestion{
			GLCode:     ai.GLCode,
			Source:     model.SourceAI,
			Confidence: ai.Confidence,
		}
	default:
		result.FinalSuggestion = model.FinalSuggestion{
			Source: model.SourceManual,
		}
	}

	return result
}

// needsAI reports whether an AI suggestion could displace the best rule match.
func needsAI(best *model.RuleMatch, thresholds Thresholds) bool {
	if best == nil {
		return true
	}
	return !best.Rule.Action.OverrideAI && best.Confidence < thresholds.AutoApplyMinConfidence
}

// normalizeAISuggestion drops suggestions without a GL code and clamps confidence to [0,1].
func normalizeAISuggestion(ai *model.AISuggestion) *model.AISuggestion {
	if ai == nil || strings.TrimSpace(ai.GLCode) == "" {
		return nil
	}

	out := *ai
	out.GLCode = strings.TrimSpace(out.GLCode)
	switch {
	case out.Confidence < 0 || math.IsNaN(out.Confidence):
		out.Confidence = 0
	case out.Confidence > 1:
		out.Confidence = 1
	}
	return &out
}
