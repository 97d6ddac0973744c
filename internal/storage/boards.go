package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// --- Boards ---

// CreateBoard inserts a board. When templateID is set, the template's states
// are copied onto the new board in the same order. Run it inside WithTx so a
// failed copy leaves no half-built board behind.
func (q *Queries) CreateBoard(ctx context.Context, name string, isTemplate bool, templateID *int64) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.New("board name cannot be empty")
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO boards (name, is_template) VALUES (?, ?)`, name, isTemplate)
	if err != nil {
		return 0, fmt.Errorf("creating board: %w", err)
	}
	boardID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting created board id: %w", err)
	}

	if templateID == nil {
		return boardID, nil
	}
	states, err := q.StatesForBoard(ctx, *templateID)
	if err != nil {
		return 0, fmt.Errorf("loading template states: %w", err)
	}
	for _, st := range states {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO states (board_id, name, is_finished, position) VALUES (?, ?, ?, ?)`,
			boardID, st.Name, st.IsFinished, st.Position,
		); err != nil {
			return 0, fmt.Errorf("copying state %q: %w", st.Name, err)
		}
	}
	return boardID, nil
}

func (q *Queries) GetBoard(ctx context.Context, id int64) (Board, error) {
	var b Board
	err := q.db.QueryRowContext(ctx, `SELECT id, name, is_template FROM boards WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.IsTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("loading board %d: %w", id, err)
	}
	return b, nil
}

func (q *Queries) ListBoards(ctx context.Context, includeTemplates bool) ([]Board, error) {
	query := `SELECT id, name, is_template FROM boards WHERE is_template = 0 ORDER BY name`
	if includeTemplates {
		query = `SELECT id, name, is_template FROM boards ORDER BY name`
	}
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.Name, &b.IsTemplate); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// --- States ---

// CreateState appends a column at the end of a board.
func (q *Queries) CreateState(ctx context.Context, boardID int64, name string, isFinished bool) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.New("state name cannot be empty")
	}
	var next int64
	if err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM states WHERE board_id = ?`, boardID,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("computing state position: %w", err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO states (board_id, name, is_finished, position) VALUES (?, ?, ?, ?)`,
		boardID, name, isFinished, next,
	)
	if err != nil {
		return 0, fmt.Errorf("creating state: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetState(ctx context.Context, id int64) (State, error) {
	var st State
	err := q.db.QueryRowContext(ctx,
		`SELECT id, board_id, name, is_finished, position FROM states WHERE id = ?`, id,
	).Scan(&st.ID, &st.BoardID, &st.Name, &st.IsFinished, &st.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("loading state %d: %w", id, err)
	}
	return st, nil
}

func (q *Queries) StatesForBoard(ctx context.Context, boardID int64) ([]State, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, board_id, name, is_finished, position
		FROM states WHERE board_id = ? ORDER BY position, id`, boardID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var st State
		if err := rows.Scan(&st.ID, &st.BoardID, &st.Name, &st.IsFinished, &st.Position); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// MoveState moves a column to position (clamped to the board) and renumbers
// the board's columns densely from 0.
func (q *Queries) MoveState(ctx context.Context, stateID int64, position int) error {
	st, err := q.GetState(ctx, stateID)
	if err != nil {
		return err
	}
	states, err := q.StatesForBoard(ctx, st.BoardID)
	if err != nil {
		return err
	}

	order := make([]int64, 0, len(states))
	for _, s := range states {
		if s.ID != stateID {
			order = append(order, s.ID)
		}
	}
	if position < 0 {
		position = 0
	}
	if position > len(order) {
		position = len(order)
	}
	order = append(order[:position], append([]int64{stateID}, order[position:]...)...)

	for i, id := range order {
		if _, err := q.db.ExecContext(ctx, `UPDATE states SET position = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("renumbering state %d: %w", id, err)
		}
	}
	return nil
}

// --- Tags ---

func (q *Queries) CreateTag(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.New("tag name cannot be empty")
	}
	res, err := q.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("creating tag %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (q *Queries) ListTags(ctx context.Context) ([]Tag, error) {
	return q.queryTags(ctx, `SELECT id, name FROM tags ORDER BY name`)
}

func (q *Queries) TagBoard(ctx context.Context, boardID, tagID int64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO board_tags (board_id, tag_id) VALUES (?, ?)`, boardID, tagID,
	)
	if err != nil {
		return fmt.Errorf("tagging board %d: %w", boardID, err)
	}
	return nil
}

func (q *Queries) TagsForBoard(ctx context.Context, boardID int64) ([]Tag, error) {
	return q.queryTags(ctx, `
		SELECT t.id, t.name
		FROM tags t
		INNER JOIN board_tags bt ON t.id = bt.tag_id
		WHERE bt.board_id = ?
		ORDER BY t.name`, boardID,
	)
}

func (q *Queries) queryTags(ctx context.Context, query string, args ...any) ([]Tag, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
