package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Veraticus/glrules/internal/model"
)

// Points awarded per matched clause. The sum of all clauses that can score
// together (exact, vendor, amount, date) is 95.
const (
	VendorPatternPoints    = 30
	AmountRangePoints      = 20
	KeywordPoints          = 25
	ExactDescriptionPoints = 35
	DateRangePoints        = 10

	MaxScore = 100
)

// ClauseResult is the outcome of one condition matcher.
type ClauseResult struct {
	Points  int
	Matched bool
}

func hit(points int) ClauseResult {
	return ClauseResult{Matched: true, Points: points}
}

// MalformedPatternError describes a vendor pattern that is not a valid regular expression.
type MalformedPatternError struct {
	Err     error
	Pattern string
}

func (e *MalformedPatternError) Error() string {
	return fmt.Sprintf("malformed vendor pattern %q: %v", e.Pattern, e.Err)
}

func (e *MalformedPatternError) Unwrap() error {
	return e.Err
}

type vendorPattern struct {
	re      *regexp.Regexp
	literal string
}

// VendorMatcher holds the compiled vendor patterns of one rule.
type VendorMatcher struct {
	patterns []vendorPattern
}

// CompileVendorPatterns prepares vendor patterns for matching. Patterns that fail
// to compile are returned as errors and only ever match by exact name.
func CompileVendorPatterns(patterns []string) (*VendorMatcher, []error) {
	m := &VendorMatcher{}
	var malformed []error

	for _, p := range patterns {
		literal := strings.TrimSpace(p)
		if literal == "" {
			continue
		}

		vp := vendorPattern{literal: literal}
		re, err := regexp.Compile("(?i)" + literal)
		if err != nil {
			malformed = append(malformed, &MalformedPatternError{Pattern: literal, Err: err})
		} else {
			vp.re = re
		}
		m.patterns = append(m.patterns, vp)
	}

	return m, malformed
}

// Match awards VendorPatternPoints when the vendor equals any pattern
// (case-insensitive) or satisfies any pattern as a regular expression.
func (m *VendorMatcher) Match(item model.LineItem) ClauseResult {
	if m == nil || len(m.patterns) == 0 || item.VendorName == nil {
		return ClauseResult{}
	}

	vendor := strings.TrimSpace(*item.VendorName)
	if vendor == "" {
		return ClauseResult{}
	}

	for _, p := range m.patterns {
		if strings.EqualFold(p.literal, vendor) {
			return hit(VendorPatternPoints)
		}
		if p.re != nil && p.re.MatchString(vendor) {
			return hit(VendorPatternPoints)
		}
	}

	return ClauseResult{}
}

// MatchVendorPatterns compiles and matches in one step.
func MatchVendorPatterns(patterns []string, item model.LineItem) ClauseResult {
	m, _ := CompileVendorPatterns(patterns)
	return m.Match(item)
}

// MatchAmountRange awards AmountRangePoints when the amount lies within the inclusive range.
func MatchAmountRange(r *model.AmountRange, item model.LineItem) ClauseResult {
	if !r.IsSet() || item.Amount == nil || math.IsNaN(*item.Amount) {
		return ClauseResult{}
	}

	amount := *item.Amount
	if r.Min != nil && amount < *r.Min {
		return ClauseResult{}
	}
	if r.Max != nil && amount > *r.Max {
		return ClauseResult{}
	}

	return hit(AmountRangePoints)
}

// MatchKeywords awards KeywordPoints when the description contains every keyword.
func MatchKeywords(keywords []string, item model.LineItem) ClauseResult {
	description := strings.ToLower(item.Description)

	checked := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if !strings.Contains(description, kw) {
			return ClauseResult{}
		}
		checked++
	}

	if checked == 0 {
		return ClauseResult{}
	}
	return hit(KeywordPoints)
}

// MatchExactDescriptions awards ExactDescriptionPoints when the trimmed description
// equals any entry, ignoring case.
func MatchExactDescriptions(descriptions []string, item model.LineItem) ClauseResult {
	description := strings.ToLower(strings.TrimSpace(item.Description))
	if description == "" {
		return ClauseResult{}
	}

	for _, d := range descriptions {
		if strings.ToLower(strings.TrimSpace(d)) == description {
			return hit(ExactDescriptionPoints)
		}
	}

	return ClauseResult{}
}

// MatchDateRange awards DateRangePoints when the date lies within the inclusive range.
func MatchDateRange(r *model.DateRange, item model.LineItem) ClauseResult {
	if !r.IsSet() || item.Date == nil {
		return ClauseResult{}
	}

	date := model.NewDate(item.Date.Time)
	if r.Start != nil && date.Before(model.NewDate(r.Start.Time).Time) {
		return ClauseResult{}
	}
	if r.End != nil && date.After(model.NewDate(r.End.Time).Time) {
		return ClauseResult{}
	}

	return hit(DateRangePoints)
}

// Excluded reports whether the description contains any excluded keyword.
func Excluded(excludeKeywords []string, item model.LineItem) bool {
	description := strings.ToLower(item.Description)

	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(description, kw) {
			return true
		}
	}

	return false
}
