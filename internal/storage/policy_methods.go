package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kosthub/wifi-portal/internal/models"
)

// ========== Policy Methods ==========

// CreatePolicy creates a new policy
func (s *PostgresStore) CreatePolicy(ctx context.Context, policy *models.WifiPolicy) error {
	if err := policy.Quota.Validate(); err != nil {
		return ErrInvalidData
	}

	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}

	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	query := `
        INSERT INTO wifi_policies (
            id, created_at, updated_at, role, priority, quota
        ) VALUES (
            $1, $2, $3, $4, $5, $6
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		policy.ID, policy.CreatedAt, policy.UpdatedAt, policy.Role,
		policy.Priority, policy.Quota,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const policyColumns = `id, created_at, updated_at, role, priority, quota`

func scanPolicy(row interface{ Scan(...interface{}) error }) (*models.WifiPolicy, error) {
	policy := &models.WifiPolicy{}
	err := row.Scan(
		&policy.ID, &policy.CreatedAt, &policy.UpdatedAt, &policy.Role,
		&policy.Priority, &policy.Quota,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// GetPolicy gets a policy by ID
func (s *PostgresStore) GetPolicy(ctx context.Context, id uuid.UUID) (*models.WifiPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM wifi_policies WHERE id = $1`
	return scanPolicy(s.getDB().QueryRowContext(ctx, query, id))
}

// UpdatePolicy updates a policy
func (s *PostgresStore) UpdatePolicy(ctx context.Context, policy *models.WifiPolicy) error {
	if err := policy.Quota.Validate(); err != nil {
		return ErrInvalidData
	}

	policy.UpdatedAt = time.Now()

	query := `
        UPDATE wifi_policies SET
            updated_at = $2, role = $3, priority = $4, quota = $5
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		policy.ID, policy.UpdatedAt, policy.Role, policy.Priority, policy.Quota,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeletePolicy deletes a policy
func (s *PostgresStore) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM wifi_policies WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListPolicies lists policies
func (s *PostgresStore) ListPolicies(ctx context.Context, limit, offset int) ([]*models.WifiPolicy, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM wifi_policies").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + policyColumns + `
        FROM wifi_policies
        ORDER BY priority DESC, role
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var policies []*models.WifiPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		policies = append(policies, policy)
	}

	return policies, count, rows.Err()
}

// ResolvePolicyForRoles returns the highest-priority policy matching any of
// the given roles. Ties break on role name for a stable result.
func (s *PostgresStore) ResolvePolicyForRoles(ctx context.Context, roles []string) (*models.WifiPolicy, error) {
	if len(roles) == 0 {
		return nil, ErrNotFound
	}

	query := `SELECT ` + policyColumns + `
        FROM wifi_policies
        WHERE role = ANY($1)
        ORDER BY priority DESC, role
        LIMIT 1`
	return scanPolicy(s.getDB().QueryRowContext(ctx, query, pq.Array(roles)))
}
