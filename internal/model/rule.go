// Package model defines the core data structures for the glrules application.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRule is returned when a rule fails boundary validation.
var ErrInvalidRule = errors.New("invalid rule")

// Limits applied when validating rules at the store boundary.
const (
	MaxPatternsPerClause = 100
	MaxPatternLength     = 512
)

// Rule is a user-owned condition-action pair used to suggest a GL code.
type Rule struct {
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at,omitempty"`
	Conditions  Conditions `json:"conditions" yaml:"conditions"`
	Action      Action     `json:"action" yaml:"action"`
	ID          string     `json:"id" yaml:"id,omitempty"`
	OwnerID     string     `json:"owner_id" yaml:"owner_id,omitempty"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Seq         int64      `json:"seq" yaml:"-"`
	Priority    int        `json:"priority" yaml:"priority"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
}

// Action is what a matching rule proposes.
type Action struct {
	GLCode              string  `json:"gl_code" yaml:"gl_code"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	AutoAssign          bool    `json:"auto_assign" yaml:"auto_assign"`
	RequiresApproval    bool    `json:"requires_approval" yaml:"requires_approval"`
	OverrideAI          bool    `json:"override_ai" yaml:"override_ai"`
}

// Conditions is the predicate bundle of a rule. Every clause is optional.
type Conditions struct {
	AmountRange       *AmountRange `json:"amount_range,omitempty" yaml:"amount_range,omitempty"`
	DateRange         *DateRange   `json:"date_range,omitempty" yaml:"date_range,omitempty"`
	VendorPatterns    []string     `json:"vendor_patterns,omitempty" yaml:"vendor_patterns,omitempty"`
	Keywords          []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	ExactDescriptions []string     `json:"exact_descriptions,omitempty" yaml:"exact_descriptions,omitempty"`
	ExcludeKeywords   []string     `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
}

// AmountRange bounds an amount inclusively. A nil bound is open on that side.
type AmountRange struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// DateRange bounds a date inclusively. A nil bound is open on that side.
type DateRange struct {
	Start *Date `json:"start,omitempty" yaml:"start,omitempty"`
	End   *Date `json:"end,omitempty" yaml:"end,omitempty"`
}

// IsSet reports whether at least one bound is present.
func (r *AmountRange) IsSet() bool {
	return r != nil && (r.Min != nil || r.Max != nil)
}

// IsSet reports whether at least one bound is present.
func (r *DateRange) IsSet() bool {
	return r != nil && (r.Start != nil || r.End != nil)
}

// HasClauses reports whether any scoring clause is populated.
// Exclude keywords only veto and do not count.
func (c Conditions) HasClauses() bool {
	return hasEntries(c.VendorPatterns) ||
		c.AmountRange.IsSet() ||
		hasEntries(c.Keywords) ||
		hasEntries(c.ExactDescriptions) ||
		c.DateRange.IsSet()
}

func hasEntries(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Validate ensures the rule is well formed before it is persisted.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Action.GLCode) == "" {
		return fmt.Errorf("%w: gl code is required", ErrInvalidRule)
	}
	if r.Action.ConfidenceThreshold < 0 || r.Action.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold must be between 0 and 1", ErrInvalidRule)
	}
	return r.Conditions.Validate()
}

// Validate checks the structural invariants of the condition bundle.
// Vendor patterns are not compiled here: a pattern that is not a valid
// regular expression still matches by exact name.
func (c Conditions) Validate() error {
	lists := map[string][]string{
		"vendor_patterns":    c.VendorPatterns,
		"keywords":           c.Keywords,
		"exact_descriptions": c.ExactDescriptions,
		"exclude_keywords":   c.ExcludeKeywords,
	}
	for name, values := range lists {
		if len(values) > MaxPatternsPerClause {
			return fmt.Errorf("%w: %s has more than %d entries", ErrInvalidRule, name, MaxPatternsPerClause)
		}
		for _, v := range values {
			if len(v) > MaxPatternLength {
				return fmt.Errorf("%w: %s entry longer than %d characters", ErrInvalidRule, name, MaxPatternLength)
			}
		}
	}

	if c.AmountRange != nil && c.AmountRange.Min != nil && c.AmountRange.Max != nil &&
		*c.AmountRange.Min > *c.AmountRange.Max {
		return fmt.Errorf("%w: amount min must be less than or equal to amount max", ErrInvalidRule)
	}
	if c.DateRange != nil && c.DateRange.Start != nil && c.DateRange.End != nil &&
		c.DateRange.End.Before(c.DateRange.Start.Time) {
		return fmt.Errorf("%w: date range start must not be after end", ErrInvalidRule)
	}
	return nil
}
