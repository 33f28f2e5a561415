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

// RecordCorrection stores a user correction. When it references an
// application, that application is marked overridden in the same transaction
// and any missing rule ID or original GL code is taken from it.
func (s *SQLiteStorage) RecordCorrection(ctx context.Context, c *model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(c); err != nil {
		return err
	}

	now := time.Now().UTC()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if c.ApplicationID != nil {
			if err := fillFromApplication(ctx, tx, c); err != nil {
				return err
			}
			if err := markOverriddenTx(ctx, tx, c.OwnerID, *c.ApplicationID); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO gl_corrections (
				owner_id, application_id, rule_id, vendor_name, description,
				original_gl_code, corrected_gl_code, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.OwnerID, nullInt64(c.ApplicationID), nullString(c.RuleID), c.VendorName, c.Description,
			c.OriginalGLCode, c.CorrectedGLCode, now,
		)
		if err != nil {
			return fmt.Errorf("failed to record correction: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get correction ID: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.ID = id
	c.CreatedAt = now
	return nil
}

func fillFromApplication(ctx context.Context, tx *sql.Tx, c *model.Correction) error {
	var (
		ruleID  sql.NullString
		glCode  string
		appID   = *c.ApplicationID
		ownerID = c.OwnerID
	)
	err := tx.QueryRowContext(ctx,
		`SELECT rule_id, applied_gl_code FROM gl_rule_applications WHERE id = ? AND owner_id = ?`,
		appID, ownerID).Scan(&ruleID, &glCode)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("application %s: %w", strconv.FormatInt(appID, 10), common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load application: %w", err)
	}

	if c.RuleID == nil && ruleID.Valid {
		c.RuleID = &ruleID.String
	}
	if c.OriginalGLCode == "" {
		c.OriginalGLCode = glCode
	}
	return nil
}

// ListCorrections returns the owner's most recent corrections first.
func (s *SQLiteStorage) ListCorrections(ctx context.Context, ownerID string, limit int) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, application_id, rule_id, vendor_name, description,
			original_gl_code, corrected_gl_code, created_at
		FROM gl_corrections
		WHERE owner_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		ownerID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	corrections := []model.Correction{}
	for rows.Next() {
		var (
			c      model.Correction
			appID  sql.NullInt64
			ruleID sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &appID, &ruleID, &c.VendorName, &c.Description,
			&c.OriginalGLCode, &c.CorrectedGLCode, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		if appID.Valid {
			c.ApplicationID = &appID.Int64
		}
		if ruleID.Valid {
			c.RuleID = &ruleID.String
		}
		corrections = append(corrections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}
	return corrections, nil
}

// CorrectionPatterns groups the owner's corrections by vendor and corrected GL
// code, keeping groups seen at least minOccurrences times. Vendors compare
// case-insensitively and corrections without a vendor are ignored.
func (s *SQLiteStorage) CorrectionPatterns(ctx context.Context, ownerID string, minOccurrences int) ([]model.CorrectionPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT LOWER(TRIM(vendor_name)) AS vendor, corrected_gl_code,
			COUNT(*) AS occurrences, MAX(created_at) AS last_seen
		FROM gl_corrections
		WHERE owner_id = ? AND TRIM(vendor_name) != ''
		GROUP BY vendor, corrected_gl_code
		HAVING COUNT(*) >= ?
		ORDER BY occurrences DESC, vendor ASC, corrected_gl_code ASC`,
		ownerID, minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("failed to query correction patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	patterns := []model.CorrectionPattern{}
	for rows.Next() {
		var (
			p        model.CorrectionPattern
			lastSeen string
		)
		if err := rows.Scan(&p.VendorName, &p.CorrectedGLCode, &p.Occurrences, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan correction pattern: %w", err)
		}
		if p.LastSeen, err = parseTimestamp(lastSeen); err != nil {
			return nil, fmt.Errorf("failed to parse correction timestamp: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correction patterns: %w", err)
	}
	return patterns, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
