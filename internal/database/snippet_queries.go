package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/chillcorner/chillbot/internal/models"
)

const snippetColumns = "id, name, kind, content, title, footer, approved, owner_id, uses, created_at"

// CreateSnippet inserts a new snippet. Names are unique case-insensitively;
// a collision returns ErrSnippetExists. The uniqueness pre-check is backed
// by a unique index on LOWER(name), so two concurrent creates cannot both
// succeed.
func (db *DB) CreateSnippet(ctx context.Context, snippet *models.Snippet) error {
	if _, err := db.GetSnippetByName(ctx, snippet.Name); err == nil {
		return ErrSnippetExists
	} else if !errors.Is(err, ErrSnippetNotFound) {
		return err
	}

	query := `
		INSERT INTO snippets (name, kind, content, title, footer, approved, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uses, created_at
	`

	err := db.QueryRowContext(
		ctx,
		query,
		snippet.Name,
		snippet.Kind,
		snippet.Content,
		snippet.Title,
		snippet.Footer,
		snippet.Approved,
		snippet.OwnerID,
	).Scan(&snippet.ID, &snippet.Uses, &snippet.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrSnippetExists
		}
		return fmt.Errorf("failed to create snippet: %w", err)
	}

	return nil
}

// GetSnippetByName retrieves a snippet by name, case-insensitively.
func (db *DB) GetSnippetByName(ctx context.Context, name string) (*models.Snippet, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM snippets
		WHERE LOWER(name) = LOWER($1)
	`, snippetColumns)

	snippet, err := scanSnippet(db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnippetNotFound
		}
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}

	return snippet, nil
}

// IncrementSnippetUses bumps the usage counter by exactly one. The
// increment happens in the store so concurrent renders cannot lose
// updates.
func (db *DB) IncrementSnippetUses(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE snippets SET uses = uses + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment snippet uses: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSnippetNotFound
	}

	return nil
}

// SnippetUpdate describes a partial edit. Nil fields are left untouched.
type SnippetUpdate struct {
	Content *string
	Title   *string
	Footer  *string
}

// UpdateSnippet applies a partial update to the named snippet.
func (db *DB) UpdateSnippet(ctx context.Context, name string, update SnippetUpdate) error {
	var (
		sets []string
		args []interface{}
	)

	if update.Content != nil {
		args = append(args, *update.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}
	if update.Title != nil {
		args = append(args, *update.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if update.Footer != nil {
		args = append(args, *update.Footer)
		sets = append(sets, fmt.Sprintf("footer = $%d", len(args)))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, name)
	query := fmt.Sprintf(
		"UPDATE snippets SET %s WHERE LOWER(name) = LOWER($%d)",
		strings.Join(sets, ", "), len(args),
	)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update snippet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSnippetNotFound
	}

	return nil
}

// SetSnippetApproved flips the approval flag on the named snippet.
func (db *DB) SetSnippetApproved(ctx context.Context, name string, approved bool) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE snippets SET approved = $1 WHERE LOWER(name) = LOWER($2)`,
		approved, name,
	)
	if err != nil {
		return fmt.Errorf("failed to set snippet approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSnippetNotFound
	}

	return nil
}

// DeleteSnippet removes the named snippet.
func (db *DB) DeleteSnippet(ctx context.Context, name string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM snippets WHERE LOWER(name) = LOWER($1)`, name)
	if err != nil {
		return fmt.Errorf("failed to delete snippet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSnippetNotFound
	}

	return nil
}

// ListSnippets returns up to limit snippets, most used first.
func (db *DB) ListSnippets(ctx context.Context, limit int) ([]*models.Snippet, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM snippets
		ORDER BY uses DESC, name ASC
		LIMIT $1
	`, snippetColumns)

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	defer rows.Close()

	var snippets []*models.Snippet
	for rows.Next() {
		snippet, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		snippets = append(snippets, snippet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snippets: %w", err)
	}

	return snippets, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnippet(row rowScanner) (*models.Snippet, error) {
	var snippet models.Snippet
	err := row.Scan(
		&snippet.ID,
		&snippet.Name,
		&snippet.Kind,
		&snippet.Content,
		&snippet.Title,
		&snippet.Footer,
		&snippet.Approved,
		&snippet.OwnerID,
		&snippet.Uses,
		&snippet.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	snippet.ApplyDefaults()
	return &snippet, nil
}
