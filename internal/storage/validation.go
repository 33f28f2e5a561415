// Package storage provides the SQLite persistence layer for GL coding rules,
// their application audit trail and user corrections.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/glrules/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidApplication = errors.New("invalid application")
	ErrInvalidCorrection  = errors.New("invalid correction")
)

// DefaultListLimit caps list queries when the caller does not pass a limit.
const DefaultListLimit = 100

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	return rule.Validate()
}

func validateApplication(app *model.Application) error {
	if app == nil {
		return fmt.Errorf("%w: application", ErrNilParameter)
	}
	if strings.TrimSpace(app.OwnerID) == "" {
		return fmt.Errorf("%w: owner ID is required", ErrInvalidApplication)
	}
	switch app.Source {
	case model.SourceRule, model.SourceAI:
		if strings.TrimSpace(app.AppliedGLCode) == "" {
			return fmt.Errorf("%w: GL code is required for %s applications", ErrInvalidApplication, app.Source)
		}
	case model.SourceManual:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidApplication, app.Source)
	}
	if app.Source == model.SourceRule && app.RuleID == nil {
		return fmt.Errorf("%w: rule applications must reference a rule", ErrInvalidApplication)
	}
	if app.LineItemIndex < 0 {
		return fmt.Errorf("%w: line item index must not be negative", ErrInvalidApplication)
	}
	if app.ConfidenceScore < 0 || app.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence %.2f outside [0, 1]", ErrInvalidApplication, app.ConfidenceScore)
	}
	return nil
}

func validateCorrection(c *model.Correction) error {
	if c == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("%w: owner ID is required", ErrInvalidCorrection)
	}
	if strings.TrimSpace(c.CorrectedGLCode) == "" {
		return fmt.Errorf("%w: corrected GL code is required", ErrInvalidCorrection)
	}
	if c.ApplicationID == nil && strings.TrimSpace(c.VendorName) == "" && strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: an application, vendor or description is required", ErrInvalidCorrection)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
