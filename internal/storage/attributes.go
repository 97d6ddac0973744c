package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetAttribute returns the value of a note attribute. ok is false when the
// note has no such key.
func (q *Queries) GetAttribute(ctx context.Context, noteID int64, key string) (value string, ok bool, err error) {
	err = q.db.QueryRowContext(ctx,
		`SELECT value FROM attributes WHERE note_id = ? AND key = ?`, noteID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting attribute %q of note %d: %w", key, noteID, err)
	}
	return value, true, nil
}

func (q *Queries) SetAttribute(ctx context.Context, noteID int64, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO attributes (note_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(note_id, key) DO UPDATE SET value = excluded.value`,
		noteID, key, value,
	)
	if err != nil {
		return fmt.Errorf("setting attribute %q of note %d: %w", key, noteID, err)
	}
	return nil
}

func (q *Queries) DeleteAttribute(ctx context.Context, noteID int64, key string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM attributes WHERE note_id = ? AND key = ?`, noteID, key)
	if err != nil {
		return fmt.Errorf("deleting attribute %q of note %d: %w", key, noteID, err)
	}
	return expectRows(res)
}

func (q *Queries) ListAttributes(ctx context.Context, noteID int64) ([]Attribute, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT note_id, key, value FROM attributes WHERE note_id = ? ORDER BY key`, noteID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attrs []Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.NoteID, &a.Key, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}
