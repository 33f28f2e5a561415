package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

const ruleColumns = `seq, id, owner_id, name, description, priority, is_active,
	conditions, action, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateRule stores a new rule. A missing ID is generated; Seq and the
// timestamps are assigned by the store.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	conditions, action, err := encodeRule(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO gl_rules (
			id, owner_id, name, description, priority, is_active,
			conditions, action, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OwnerID, rule.Name, rule.Description, rule.Priority, rule.IsActive,
		conditions, action, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s: %w", rule.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule sequence: %w", err)
	}

	rule.Seq = seq
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves one of the owner's rules by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, ownerID, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM gl_rules WHERE id = ? AND owner_id = ?`,
		id, ownerID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns the owner's rules in creation order.
func (s *SQLiteStorage) ListRules(ctx context.Context, ownerID string, activeOnly bool) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM gl_rules WHERE owner_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := []model.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// GetActiveRules returns the owner's active rules in creation order.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, ownerID string) ([]model.Rule, error) {
	return s.ListRules(ctx, ownerID, true)
}

// UpdateRule replaces the mutable fields of an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := validateString(rule.ID, "rule.ID"); err != nil {
		return err
	}

	conditions, action, err := encodeRule(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE gl_rules
		SET name = ?, description = ?, priority = ?, is_active = ?,
			conditions = ?, action = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		rule.Name, rule.Description, rule.Priority, rule.IsActive,
		conditions, action, now,
		rule.ID, rule.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if err := expectAffected(result, "rule", rule.ID); err != nil {
		return err
	}

	rule.UpdatedAt = now
	return nil
}

// SetRuleActive enables or disables a rule.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, ownerID, id string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE gl_rules SET is_active = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		active, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return expectAffected(result, "rule", id)
}

// DeleteRule removes a rule. Applications that reference it keep the rule ID
// for auditing.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, ownerID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM gl_rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return expectAffected(result, "rule", id)
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return nil
}

func encodeRule(rule *model.Rule) (string, string, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	action, err := json.Marshal(rule.Action)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule action: %w", err)
	}
	return string(conditions), string(action), nil
}

func scanRule(row rowScanner) (model.Rule, error) {
	var (
		rule       model.Rule
		conditions string
		action     string
	)
	err := row.Scan(
		&rule.Seq, &rule.ID, &rule.OwnerID, &rule.Name, &rule.Description,
		&rule.Priority, &rule.IsActive, &conditions, &action,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := decodeStrict(conditions, &rule.Conditions); err != nil {
		return rule, fmt.Errorf("rule %s has invalid conditions: %w", rule.ID, err)
	}
	if err := decodeStrict(action, &rule.Action); err != nil {
		return rule, fmt.Errorf("rule %s has invalid action: %w", rule.ID, err)
	}
	return rule, nil
}

func decodeStrict(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
