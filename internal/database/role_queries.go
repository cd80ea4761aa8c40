package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/chillcorner/chillbot/internal/models"
)

// CreateCustomRole records a member's vanity role. Each user may hold at
// most one; a second insert for the same user returns ErrRoleExists.
func (db *DB) CreateCustomRole(ctx context.Context, role *models.CustomRole) error {
	query := `
		INSERT INTO custom_roles (user_id, role_id, name, color, icon_url, mentionable)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := db.QueryRowContext(
		ctx,
		query,
		role.UserID,
		role.RoleID,
		role.Name,
		role.Color,
		role.IconURL,
		role.Mentionable,
	).Scan(&role.ID, &role.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRoleExists
		}
		return fmt.Errorf("failed to create custom role: %w", err)
	}

	return nil
}

// GetCustomRoleByUserID retrieves the custom role owned by a user.
func (db *DB) GetCustomRoleByUserID(ctx context.Context, userID string) (*models.CustomRole, error) {
	query := `
		SELECT id, user_id, role_id, name, color, icon_url, mentionable, created_at
		FROM custom_roles
		WHERE user_id = $1
	`

	var role models.CustomRole
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&role.ID,
		&role.UserID,
		&role.RoleID,
		&role.Name,
		&role.Color,
		&role.IconURL,
		&role.Mentionable,
		&role.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get custom role: %w", err)
	}

	return &role, nil
}

// DeleteCustomRoleByUserID removes a user's custom role record.
func (db *DB) DeleteCustomRoleByUserID(ctx context.Context, userID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM custom_roles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete custom role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrRoleNotFound
	}

	return nil
}
