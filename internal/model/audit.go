package model

import (
	"regexp"
	"time"
)

// Application is the audit record of a GL code applied to a document line item.
type Application struct {
	CreatedAt       time.Time        `json:"created_at"`
	RuleID          *string          `json:"rule_id,omitempty"`
	OwnerID         string           `json:"owner_id"`
	DocumentID      string           `json:"document_id,omitempty"`
	AppliedGLCode   string           `json:"applied_gl_code"`
	Source          SuggestionSource `json:"source"`
	ID              int64            `json:"id"`
	LineItemIndex   int              `json:"line_item_index"`
	ConfidenceScore float64          `json:"confidence_score"`
	WasOverridden   bool             `json:"was_overridden"`
}

// NewApplication builds the audit record for an evaluation result.
func NewApplication(ownerID, documentID string, lineItemIndex int, result EvaluationResult) Application {
	return Application{
		OwnerID:         ownerID,
		DocumentID:      documentID,
		LineItemIndex:   lineItemIndex,
		RuleID:          result.FinalSuggestion.RuleID,
		AppliedGLCode:   result.FinalSuggestion.GLCode,
		Source:          result.FinalSuggestion.Source,
		ConfidenceScore: result.FinalSuggestion.Confidence,
	}
}

// Correction records a user replacing a suggested GL code.
type Correction struct {
	CreatedAt       time.Time `json:"created_at"`
	ApplicationID   *int64    `json:"application_id,omitempty"`
	RuleID          *string   `json:"rule_id,omitempty"`
	OwnerID         string    `json:"owner_id"`
	VendorName      string    `json:"vendor_name,omitempty"`
	Description     string    `json:"description,omitempty"`
	OriginalGLCode  string    `json:"original_gl_code,omitempty"`
	CorrectedGLCode string    `json:"corrected_gl_code"`
	ID              int64     `json:"id"`
}

// CorrectionPattern aggregates repeated corrections for the same vendor and GL code.
type CorrectionPattern struct {
	LastSeen        time.Time `json:"last_seen"`
	VendorName      string    `json:"vendor_name"`
	CorrectedGLCode string    `json:"corrected_gl_code"`
	Occurrences     int       `json:"occurrences"`
}

// SuggestedRule turns a correction pattern into a draft rule for the owner to review.
// The vendor pattern is anchored and escaped so it matches only that vendor name.
func (p CorrectionPattern) SuggestedRule(ownerID string) Rule {
	return Rule{
		OwnerID:  ownerID,
		Name:     "Learned: " + p.VendorName,
		IsActive: false,
		Conditions: Conditions{
			VendorPatterns: []string{"^" + regexp.QuoteMeta(p.VendorName) + "$"},
		},
		Action: Action{
			GLCode:              p.CorrectedGLCode,
			ConfidenceThreshold: 0.8,
			RequiresApproval:    true,
		},
	}
}
