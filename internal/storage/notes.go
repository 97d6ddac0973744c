package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const noteColumns = `id, parent_id, board_id, state_id, title, description, code_name, created_at`

func (q *Queries) CreateNote(ctx context.Context, n NewNote) (int64, error) {
	if strings.TrimSpace(n.Title) == "" {
		return 0, errors.New("note title cannot be empty")
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO notes (parent_id, board_id, state_id, title, description, code_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullInt(n.ParentID), nullInt(n.BoardID), nullInt(n.StateID),
		n.Title, n.Description, nullString(n.CodeName), formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("creating note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting created note id: %w", err)
	}
	return id, nil
}

func (q *Queries) GetNote(ctx context.Context, id int64) (Note, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("loading note %d: %w", id, err)
	}
	return n, nil
}

// UpdateNote replaces title, description and code of a note.
func (q *Queries) UpdateNote(ctx context.Context, id int64, title, description string, codeName *string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("note title cannot be empty")
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, description = ?, code_name = ? WHERE id = ?`,
		title, description, nullString(codeName), id,
	)
	if err != nil {
		return fmt.Errorf("updating note %d: %w", id, err)
	}
	return expectRows(res)
}

// DeleteNote removes a note. Children, attributes and logs cascade.
func (q *Queries) DeleteNote(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting note %d: %w", id, err)
	}
	return expectRows(res)
}

// CreateChild inserts a note under parentID. The child inherits no board or
// state from its parent.
func (q *Queries) CreateChild(ctx context.Context, parentID int64, title, description string, codeName *string) (int64, error) {
	if _, err := q.GetNote(ctx, parentID); err != nil {
		return 0, fmt.Errorf("parent note %d: %w", parentID, err)
	}
	return q.CreateNote(ctx, NewNote{
		ParentID:    &parentID,
		Title:       title,
		Description: description,
		CodeName:    codeName,
	})
}

// RootNotes returns notes without a parent, oldest first.
func (q *Queries) RootNotes(ctx context.Context) ([]Note, error) {
	return q.queryNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE parent_id IS NULL ORDER BY id`)
}

func (q *Queries) ChildrenOf(ctx context.Context, parentID int64) ([]Note, error) {
	return q.queryNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE parent_id = ? ORDER BY id`, parentID)
}

// NotesInState returns the cards of one board column.
func (q *Queries) NotesInState(ctx context.Context, boardID, stateID int64) ([]Note, error) {
	return q.queryNotes(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE board_id = ? AND state_id = ? ORDER BY id`,
		boardID, stateID,
	)
}

// MoveNoteToState places a note on a board column. The state must belong to
// the board.
func (q *Queries) MoveNoteToState(ctx context.Context, noteID, stateID int64) error {
	st, err := q.GetState(ctx, stateID)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE notes SET board_id = ?, state_id = ? WHERE id = ?`,
		st.BoardID, st.ID, noteID,
	)
	if err != nil {
		return fmt.Errorf("moving note %d: %w", noteID, err)
	}
	return expectRows(res)
}

func (q *Queries) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (Note, error) {
	var (
		n                          Note
		parentID, boardID, stateID sql.NullInt64
		codeName                   sql.NullString
		createdAt                  string
	)
	if err := s.Scan(&n.ID, &parentID, &boardID, &stateID, &n.Title, &n.Description, &codeName, &createdAt); err != nil {
		return Note{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Note{}, err
	}
	n.ParentID = intPtr(parentID)
	n.BoardID = intPtr(boardID)
	n.StateID = intPtr(stateID)
	n.CodeName = stringPtr(codeName)
	n.CreatedAt = t
	return n, nil
}
