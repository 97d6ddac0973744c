package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/orbitask/internal/docimport"
	"github.com/kalambet/orbitask/internal/forms"
	"github.com/kalambet/orbitask/internal/storage"
)

// NoteRequest is the body of note create and update calls.
type NoteRequest struct {
	ParentID    *int64  `json:"parent_id"`
	BoardID     *int64  `json:"board_id"`
	StateID     *int64  `json:"state_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CodeName    *string `json:"code_name"`
}

// ExecuteRequest submits one form of a note.
type ExecuteRequest struct {
	ActionLabel string            `json:"action_label"`
	Fields      map[string]string `json:"fields"`
}

// NoteView is a note with its direct children and attributes.
type NoteView struct {
	storage.Note
	Children   []storage.Note      `json:"children"`
	Attributes []storage.Attribute `json:"attributes"`
}

func loadNoteView(ctx context.Context, q *storage.Queries, id int64) (NoteView, error) {
	n, err := q.GetNote(ctx, id)
	if err != nil {
		return NoteView{}, err
	}
	children, err := q.ChildrenOf(ctx, id)
	if err != nil {
		return NoteView{}, fmt.Errorf("listing children: %w", err)
	}
	attrs, err := q.ListAttributes(ctx, id)
	if err != nil {
		return NoteView{}, fmt.Errorf("listing attributes: %w", err)
	}
	if children == nil {
		children = []storage.Note{}
	}
	if attrs == nil {
		attrs = []storage.Attribute{}
	}
	return NoteView{Note: n, Children: children, Attributes: attrs}, nil
}

var errUnknownCode = errors.New("unknown code")

// checkCodeName rejects references to codes that do not exist.
func checkCodeName(ctx context.Context, q *storage.Queries, name *string) error {
	if name == nil {
		return nil
	}
	if _, err := q.GetCode(ctx, *name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w %q", errUnknownCode, *name)
		}
		return err
	}
	return nil
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var notes []storage.Note
		var err error
		if p := r.URL.Query().Get("parent"); p != "" {
			parent, perr := strconv.ParseInt(p, 10, 64)
			if perr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parent %q", p)
				return
			}
			notes, err = deps.Store.ChildrenOf(r.Context(), parent)
		} else {
			notes, err = deps.Store.RootNotes(r.Context())
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notes: %v", err)
			return
		}
		if notes == nil {
			notes = []storage.Note{}
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		view, err := loadNoteView(r.Context(), deps.Store.Queries, id)
		if err != nil {
			writeError(w, err, "note")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NoteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		createNote(w, r, deps, req)
	}
}

func handleCreateChild(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parent, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req NoteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.ParentID = &parent
		createNote(w, r, deps, req)
	}
}

func createNote(w http.ResponseWriter, r *http.Request, deps Deps, req NoteRequest) {
	if strings.TrimSpace(req.Title) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
		return
	}

	var id int64
	err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
		if req.ParentID != nil {
			if _, err := q.GetNote(r.Context(), *req.ParentID); err != nil {
				return fmt.Errorf("parent note: %w", err)
			}
		}
		if err := checkCodeName(r.Context(), q, req.CodeName); err != nil {
			return err
		}
		if req.StateID != nil {
			st, err := q.GetState(r.Context(), *req.StateID)
			if err != nil {
				return fmt.Errorf("state: %w", err)
			}
			req.BoardID = &st.BoardID
		}
		var err error
		id, err = q.CreateNote(r.Context(), storage.NewNote{
			ParentID:    req.ParentID,
			BoardID:     req.BoardID,
			StateID:     req.StateID,
			Title:       req.Title,
			Description: req.Description,
			CodeName:    req.CodeName,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, errUnknownCode) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeError(w, err, "note")
		return
	}

	deps.Logger.Info("note created", "note_id", id, "title", req.Title)
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Note created",
		"id":      id,
	})
}

func handleUpdateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req NoteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if err := checkCodeName(r.Context(), deps.Store.Queries, req.CodeName); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Store.UpdateNote(r.Context(), id, req.Title, req.Description, req.CodeName); err != nil {
			writeError(w, err, "note")
			return
		}
		flash(w, http.StatusOK, "success", "Note updated")
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := deps.Store.DeleteNote(r.Context(), id); err != nil {
			writeError(w, err, "note")
			return
		}
		flash(w, http.StatusOK, "success", "Note deleted")
	}
}

func handleListChildren(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if _, err := deps.Store.GetNote(r.Context(), id); err != nil {
			writeError(w, err, "note")
			return
		}
		children, err := deps.Store.ChildrenOf(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list children: %v", err)
			return
		}
		if children == nil {
			children = []storage.Note{}
		}
		writeJSON(w, http.StatusOK, children)
	}
}

func handleListAttributes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if _, err := deps.Store.GetNote(r.Context(), id); err != nil {
			writeError(w, err, "note")
			return
		}
		attrs, err := deps.Store.ListAttributes(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list attributes: %v", err)
			return
		}
		if attrs == nil {
			attrs = []storage.Attribute{}
		}
		writeJSON(w, http.StatusOK, attrs)
	}
}

func handleSetAttribute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")
		var req struct {
			Value string `json:"value"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := deps.Store.GetNote(r.Context(), id); err != nil {
			writeError(w, err, "note")
			return
		}
		if err := deps.Store.SetAttribute(r.Context(), id, key, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set attribute: %v", err)
			return
		}
		flash(w, http.StatusOK, "success", "Attribute %s set", key)
	}
}

func handleDeleteAttribute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")
		if err := deps.Store.DeleteAttribute(r.Context(), id, key); err != nil {
			writeError(w, err, "attribute")
			return
		}
		flash(w, http.StatusOK, "success", "Attribute %s deleted", key)
	}
}

func handleListLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if _, err := deps.Store.GetNote(r.Context(), id); err != nil {
			writeError(w, err, "note")
			return
		}
		logs, err := deps.Store.LogsForNote(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list logs: %v", err)
			return
		}
		// Newest entries win when the history is longer than limit.
		if limit := parseIntParam(r, "limit", 100, 1000); len(logs) > limit {
			logs = logs[len(logs)-limit:]
		}
		if logs == nil {
			logs = []storage.Log{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func handleMoveNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req struct {
			StateID int64 `json:"state_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
			return q.MoveNoteToState(r.Context(), id, req.StateID)
		})
		if err != nil {
			writeError(w, err, "note or state")
			return
		}
		flash(w, http.StatusOK, "success", "Note moved")
	}
}

func handleListForms(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var found map[string]forms.FormContainer
		err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
			var err error
			found, err = deps.Dispatcher.Discover(r.Context(), q, id)
			return err
		})
		if err != nil {
			writeError(w, err, "note")
			return
		}
		writeJSON(w, http.StatusOK, found)
	}
}

func handleExecute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req ExecuteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ActionLabel == "" {
			flash(w, http.StatusBadRequest, "error", "action_label is required")
			return
		}

		var message string
		err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
			var err error
			message, err = deps.Dispatcher.Execute(r.Context(), q, id, req.ActionLabel, req.Fields)
			return err
		})
		if err != nil {
			code, _ := errorStatus(err)
			if errors.Is(err, storage.ErrNotFound) {
				flash(w, code, "error", "Note %d not found", id)
				return
			}
			deps.Logger.Warn("action failed", "note_id", id, "action", req.ActionLabel, "error", err)
			flash(w, code, "error", "%v", err)
			return
		}
		flash(w, http.StatusOK, "success", "Code correctly executed: %s.", message)
	}
}

func handleImportNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, docimport.MaxSize+maxRequestBodySize)
		if err := r.ParseMultipartForm(docimport.MaxSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid upload: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}
		draft, err := docimport.Extract(header.Filename, data)
		if err != nil {
			httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "%v", err)
			return
		}

		req := NoteRequest{Title: draft.Title, Description: draft.Description, CodeName: draft.CodeName}
		if p := r.FormValue("parent_id"); p != "" {
			parent, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parent_id %q", p)
				return
			}
			req.ParentID = &parent
		}
		createNote(w, r, deps, req)
	}
}
