package storage

import (
	"context"
	"fmt"
	"time"
)

// Log kinds written by Orbitask itself.
const (
	LogInfo  = "info"
	LogError = "error"
)

// AppendLog writes one audit log entry for a note and returns its id.
func (q *Queries) AppendLog(ctx context.Context, noteID int64, kind, message string, data []byte) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO logs (note_id, created_at, kind, message, blob_data) VALUES (?, ?, ?, ?, ?)`,
		noteID, formatTime(time.Now()), kind, message, data,
	)
	if err != nil {
		return 0, fmt.Errorf("creating log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting created log id: %w", err)
	}
	return id, nil
}

func (q *Queries) LogsForNote(ctx context.Context, noteID int64) ([]Log, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, note_id, created_at, kind, message, blob_data
		FROM logs WHERE note_id = ? ORDER BY created_at, id`, noteID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		var createdAt string
		if err := rows.Scan(&l.ID, &l.NoteID, &createdAt, &l.Kind, &l.Message, &l.Data); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
