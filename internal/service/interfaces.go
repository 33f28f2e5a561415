// Package service defines the interfaces shared by the API and CLI layers.
package service

import (
	"context"

	"github.com/Veraticus/glrules/internal/model"
)

// RuleStore persists an owner's GL coding rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, ownerID, id string) (*model.Rule, error)
	ListRules(ctx context.Context, ownerID string, activeOnly bool) ([]model.Rule, error)
	GetActiveRules(ctx context.Context, ownerID string) ([]model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	SetRuleActive(ctx context.Context, ownerID, id string, active bool) error
	DeleteRule(ctx context.Context, ownerID, id string) error
}

// AuditStore records how suggestions were applied and corrected.
type AuditStore interface {
	RecordApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, ownerID string, id int64) (*model.Application, error)
	ListApplications(ctx context.Context, ownerID string, limit int) ([]model.Application, error)
	MarkApplicationOverridden(ctx context.Context, ownerID string, id int64) error

	RecordCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, ownerID string, limit int) ([]model.Correction, error)
	CorrectionPatterns(ctx context.Context, ownerID string, minOccurrences int) ([]model.CorrectionPattern, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	RuleStore
	AuditStore

	// Database management
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
