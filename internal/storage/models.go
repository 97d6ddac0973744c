package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Code is a named Lua script plus its declared capability list.
type Code struct {
	Name         string `json:"name"`
	Capabilities string `json:"capabilities"` // JSON array stored as text
	Script       string `json:"script"`
}

type Note struct {
	ID          int64     `json:"id"`
	ParentID    *int64    `json:"parent_id"`
	BoardID     *int64    `json:"board_id"`
	StateID     *int64    `json:"state_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CodeName    *string   `json:"code_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewNote holds the fields accepted when creating a note.
type NewNote struct {
	ParentID    *int64
	BoardID     *int64
	StateID     *int64
	Title       string
	Description string
	CodeName    *string
}

type Attribute struct {
	NoteID int64  `json:"note_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type Log struct {
	ID        int64     `json:"id"`
	NoteID    int64     `json:"note_id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Data      []byte    `json:"data,omitempty"`
}

type Board struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	IsTemplate bool   `json:"is_template"`
}

type State struct {
	ID         int64  `json:"id"`
	BoardID    int64  `json:"board_id"`
	Name       string `json:"name"`
	IsFinished bool   `json:"is_finished"`
	Position   int64  `json:"position"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
