package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const metaPasswordHash = "password_hash"

// PasswordHash returns the stored admin password hash, or ErrNotFound when no
// password has been set yet.
func (q *Queries) PasswordHash(ctx context.Context) (string, error) {
	var hash string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaPasswordHash).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading password hash: %w", err)
	}
	return hash, nil
}

func (q *Queries) SetPasswordHash(ctx context.Context, hash string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, metaPasswordHash, hash,
	)
	if err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}
	return nil
}
