package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

const applicationColumns = `id, owner_id, rule_id, document_id, line_item_index,
	applied_gl_code, source, confidence_score, was_overridden, created_at`

// RecordApplication appends an entry to the application audit trail.
func (s *SQLiteStorage) RecordApplication(ctx context.Context, app *model.Application) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateApplication(app); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO gl_rule_applications (
			owner_id, rule_id, document_id, line_item_index,
			applied_gl_code, source, confidence_score, was_overridden, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.OwnerID, nullString(app.RuleID), app.DocumentID, app.LineItemIndex,
		app.AppliedGLCode, string(app.Source), app.ConfidenceScore, app.WasOverridden, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get application ID: %w", err)
	}

	app.ID = id
	app.CreatedAt = now
	return nil
}

// GetApplication retrieves one of the owner's audit entries.
func (s *SQLiteStorage) GetApplication(ctx context.Context, ownerID string, id int64) (*model.Application, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM gl_rule_applications WHERE id = ? AND owner_id = ?`,
		id, ownerID)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplications returns the owner's most recent audit entries first.
func (s *SQLiteStorage) ListApplications(ctx context.Context, ownerID string, limit int) ([]model.Application, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM gl_rule_applications
		WHERE owner_id = ? ORDER BY id DESC LIMIT ?`,
		ownerID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	apps := []model.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return apps, nil
}

// MarkApplicationOverridden flags an audit entry as replaced by the user.
func (s *SQLiteStorage) MarkApplicationOverridden(ctx context.Context, ownerID string, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return markOverriddenTx(ctx, tx, ownerID, id)
	})
}

func markOverriddenTx(ctx context.Context, tx *sql.Tx, ownerID string, id int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE gl_rule_applications SET was_overridden = 1 WHERE id = ? AND owner_id = ?`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark application overridden: %w", err)
	}
	return expectAffected(result, "application", strconv.FormatInt(id, 10))
}

func scanApplication(row rowScanner) (model.Application, error) {
	var (
		app    model.Application
		ruleID sql.NullString
		source string
	)
	err := row.Scan(
		&app.ID, &app.OwnerID, &ruleID, &app.DocumentID, &app.LineItemIndex,
		&app.AppliedGLCode, &source, &app.ConfidenceScore, &app.WasOverridden, &app.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return app, err
		}
		return app, fmt.Errorf("failed to scan application: %w", err)
	}
	if ruleID.Valid {
		app.RuleID = &ruleID.String
	}
	app.Source = model.SuggestionSource(source)
	return app, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Stats summarizes the stored rows for metrics.
type Stats struct {
	Rules                  int
	ActiveRules            int
	Applications           int
	OverriddenApplications int
	Corrections            int
}

// Stats counts rules, applications and corrections across all owners.
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	if err := validateContext(ctx); err != nil {
		return Stats{}, err
	}

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM gl_rules),
			(SELECT COUNT(*) FROM gl_rules WHERE is_active = 1),
			(SELECT COUNT(*) FROM gl_rule_applications),
			(SELECT COUNT(*) FROM gl_rule_applications WHERE was_overridden = 1),
			(SELECT COUNT(*) FROM gl_corrections)`,
	).Scan(&st.Rules, &st.ActiveRules, &st.Applications, &st.OverriddenApplications, &st.Corrections)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to collect stats: %w", err)
	}
	return st, nil
}
