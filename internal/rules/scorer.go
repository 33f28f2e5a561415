package rules

import (
	"log/slog"

	"github.com/Veraticus/glrules/internal/model"
)

type compiledRule struct {
	vendor *VendorMatcher
	rule   model.Rule
}

// Scorer scores line items against a read-only snapshot of rules.
// It holds no mutable state after construction and is safe for concurrent use.
type Scorer struct {
	rules      []compiledRule
	malformed  []error
	thresholds Thresholds
}

// NewScorer compiles the active rules of a snapshot. Inactive rules are dropped.
// The caller must not mutate the rules afterwards.
func NewScorer(rules []model.Rule, thresholds Thresholds) *Scorer {
	s := &Scorer{
		rules:      make([]compiledRule, 0, len(rules)),
		thresholds: thresholds,
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		vendor, malformed := CompileVendorPatterns(rule.Conditions.VendorPatterns)
		for _, err := range malformed {
			slog.Warn("Vendor pattern is not a valid regular expression, matching by exact name only",
				"rule_id", rule.ID,
				"owner_id", rule.OwnerID,
				"error", err)
		}
		s.malformed = append(s.malformed, malformed...)

		s.rules = append(s.rules, compiledRule{rule: rule, vendor: vendor})
	}

	return s
}

// Len returns the number of active rules in the snapshot.
func (s *Scorer) Len() int {
	return len(s.rules)
}

// Malformed returns the vendor patterns that failed to compile.
func (s *Scorer) Malformed() []error {
	return s.malformed
}

// Score evaluates every active rule against the item, in snapshot order.
// Zero-score results are included.
func (s *Scorer) Score(item model.LineItem) []model.RuleMatch {
	matches := make([]model.RuleMatch, 0, len(s.rules))
	for _, cr := range s.rules {
		matches = append(matches, s.scoreRule(cr, item))
	}
	return matches
}

func (s *Scorer) scoreRule(cr compiledRule, item model.LineItem) model.RuleMatch {
	match := model.RuleMatch{
		Rule:              cr.rule,
		MatchedConditions: []model.Clause{},
	}
	cond := cr.rule.Conditions

	if cond.HasClauses() && !Excluded(cond.ExcludeKeywords, item) {
		score := 0
		add := func(clause model.Clause, r ClauseResult) {
			if r.Matched {
				score += r.Points
				match.MatchedConditions = append(match.MatchedConditions, clause)
			}
		}

		// An exact description supersedes the keyword clause.
		if exact := MatchExactDescriptions(cond.ExactDescriptions, item); exact.Matched {
			add(model.ClauseExactDescriptions, exact)
		} else {
			add(model.ClauseKeywords, MatchKeywords(cond.Keywords, item))
		}
		add(model.ClauseVendorPatterns, cr.vendor.Match(item))
		add(model.ClauseAmountRange, MatchAmountRange(cond.AmountRange, item))
		add(model.ClauseDateRange, MatchDateRange(cond.DateRange, item))

		match.Score = clampScore(score)
	}

	action := cr.rule.Action
	match.Confidence = float64(match.Score) / MaxScore
	match.ShouldAutoApply = action.AutoAssign && match.Confidence >= action.ConfidenceThreshold
	match.RequiresApproval = action.RequiresApproval || match.Confidence < s.thresholds.SuggestMinConfidence

	return match
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}
