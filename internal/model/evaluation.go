package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLineItem is returned when a line item cannot be evaluated.
var ErrInvalidLineItem = errors.New("invalid line item")

// LineItem is one row of a document being categorized. Only the description is mandatory.
type LineItem struct {
	VendorName  *string  `json:"vendor_name,omitempty" yaml:"vendor_name,omitempty"`
	Amount      *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	Date        *Date    `json:"date,omitempty" yaml:"date,omitempty"`
	Description string   `json:"description" yaml:"description"`
}

// Validate rejects line items without a description.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidLineItem)
	}
	return nil
}

// Clause names a condition clause of a rule.
type Clause string

// Condition clauses in the order they are reported.
const (
	ClauseExactDescriptions Clause = "exact_descriptions"
	ClauseKeywords          Clause = "keywords"
	ClauseVendorPatterns    Clause = "vendor_patterns"
	ClauseAmountRange       Clause = "amount_range"
	ClauseDateRange         Clause = "date_range"
)

// RuleMatch is the outcome of scoring one rule against one line item.
type RuleMatch struct {
	MatchedConditions []Clause `json:"matched_conditions"`
	Rule              Rule     `json:"rule"`
	Confidence        float64  `json:"confidence"`
	Score             int      `json:"score"`
	ShouldAutoApply   bool     `json:"should_auto_apply"`
	RequiresApproval  bool     `json:"requires_approval"`
}

// AISuggestion is a GL code proposed outside the rule engine.
type AISuggestion struct {
	GLCode     string  `json:"gl_code" yaml:"gl_code"`
	Reason     string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// SuggestionSource identifies where a final suggestion came from.
type SuggestionSource string

// Suggestion sources.
const (
	SourceRule   SuggestionSource = "rule"
	SourceAI     SuggestionSource = "ai"
	SourceManual SuggestionSource = "manual"
)

// FinalSuggestion is the GL code the caller should apply or present for review.
type FinalSuggestion struct {
	RuleID      *string          `json:"rule_id,omitempty"`
	GLCode      string           `json:"gl_code"`
	Source      SuggestionSource `json:"source"`
	Confidence  float64          `json:"confidence"`
	AutoApplied bool             `json:"auto_applied"`
}

// EvaluationResult is the ranked outcome of evaluating a line item.
type EvaluationResult struct {
	BestMatch       *RuleMatch      `json:"best_match,omitempty"`
	AISuggestion    *AISuggestion   `json:"ai_suggestion,omitempty"`
	Matches         []RuleMatch     `json:"matches"`
	FinalSuggestion FinalSuggestion `json:"final_suggestion"`
}
