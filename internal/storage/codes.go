package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (q *Queries) CreateCode(ctx context.Context, c Code) error {
	capabilities := c.Capabilities
	if capabilities == "" {
		capabilities = "[]"
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO codes (name, capabilities, script) VALUES (?, ?, ?)`,
		c.Name, capabilities, c.Script,
	)
	if err != nil {
		return fmt.Errorf("creating code %q: %w", c.Name, err)
	}
	return nil
}

// UpsertCode creates the code or replaces the capabilities and script of an
// existing one with the same name.
func (q *Queries) UpsertCode(ctx context.Context, c Code) error {
	capabilities := c.Capabilities
	if capabilities == "" {
		capabilities = "[]"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO codes (name, capabilities, script) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET capabilities = excluded.capabilities, script = excluded.script`,
		c.Name, capabilities, c.Script,
	)
	if err != nil {
		return fmt.Errorf("upserting code %q: %w", c.Name, err)
	}
	return nil
}

func (q *Queries) GetCode(ctx context.Context, name string) (Code, error) {
	var c Code
	err := q.db.QueryRowContext(ctx,
		`SELECT name, capabilities, script FROM codes WHERE name = ?`, name,
	).Scan(&c.Name, &c.Capabilities, &c.Script)
	if errors.Is(err, sql.ErrNoRows) {
		return Code{}, ErrNotFound
	}
	if err != nil {
		return Code{}, fmt.Errorf("loading code %q: %w", name, err)
	}
	return c, nil
}

// CodeForNote returns the code attached to a note, or ErrNotFound when the
// note has none.
func (q *Queries) CodeForNote(ctx context.Context, noteID int64) (Code, error) {
	var c Code
	err := q.db.QueryRowContext(ctx, `
		SELECT codes.name, codes.capabilities, codes.script
		FROM notes
		JOIN codes ON codes.name = notes.code_name
		WHERE notes.id = ?`, noteID,
	).Scan(&c.Name, &c.Capabilities, &c.Script)
	if errors.Is(err, sql.ErrNoRows) {
		return Code{}, ErrNotFound
	}
	if err != nil {
		return Code{}, fmt.Errorf("querying code of note %d: %w", noteID, err)
	}
	return c, nil
}

func (q *Queries) UpdateCode(ctx context.Context, name, capabilities, script string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE codes SET capabilities = ?, script = ? WHERE name = ?`,
		capabilities, script, name,
	)
	if err != nil {
		return fmt.Errorf("editing code %q: %w", name, err)
	}
	return expectRows(res)
}

func (q *Queries) DeleteCode(ctx context.Context, name string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM codes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting code %q: %w", name, err)
	}
	return expectRows(res)
}

func (q *Queries) ListCodeNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM codes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
