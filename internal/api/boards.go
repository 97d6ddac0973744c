package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kalambet/orbitask/internal/storage"
)

var errNotTemplate = errors.New("not a template")

type boardRequest struct {
	Name       string `json:"name"`
	IsTemplate bool   `json:"is_template"`
	TemplateID *int64 `json:"template_id"`
}

type boardView struct {
	storage.Board
	States []storage.State `json:"states"`
	Tags   []storage.Tag   `json:"tags"`
}

func handleListBoards(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeTemplates := r.URL.Query().Get("templates") == "true"
		boards, err := deps.Store.ListBoards(r.Context(), includeTemplates)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list boards: %v", err)
			return
		}
		if boards == nil {
			boards = []storage.Board{}
		}
		writeJSON(w, http.StatusOK, boards)
	}
}

func handleCreateBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req boardRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		var id int64
		err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
			if req.TemplateID != nil {
				tpl, err := q.GetBoard(r.Context(), *req.TemplateID)
				if err != nil {
					return fmt.Errorf("template: %w", err)
				}
				if !tpl.IsTemplate {
					return fmt.Errorf("board %d is %w", tpl.ID, errNotTemplate)
				}
			}
			var err error
			id, err = q.CreateBoard(r.Context(), req.Name, req.IsTemplate, req.TemplateID)
			return err
		})
		if errors.Is(err, errNotTemplate) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			writeError(w, err, "template")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":  "success",
			"message": "Board created",
			"id":      id,
		})
	}
}

func handleGetBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		b, err := deps.Store.GetBoard(r.Context(), id)
		if err != nil {
			writeError(w, err, "board")
			return
		}
		states, err := deps.Store.StatesForBoard(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list states: %v", err)
			return
		}
		tags, err := deps.Store.TagsForBoard(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tags: %v", err)
			return
		}
		if states == nil {
			states = []storage.State{}
		}
		if tags == nil {
			tags = []storage.Tag{}
		}
		writeJSON(w, http.StatusOK, boardView{Board: b, States: states, Tags: tags})
	}
}

func handleCreateState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req struct {
			Name       string `json:"name"`
			IsFinished bool   `json:"is_finished"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if _, err := deps.Store.GetBoard(r.Context(), boardID); err != nil {
			writeError(w, err, "board")
			return
		}
		id, err := deps.Store.CreateState(r.Context(), boardID, req.Name, req.IsFinished)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create state: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":  "success",
			"message": "State created",
			"id":      id,
		})
	}
}

func handleMoveState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req struct {
			Position int `json:"position"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		err := deps.Store.WithTx(r.Context(), func(q *storage.Queries) error {
			return q.MoveState(r.Context(), id, req.Position)
		})
		if err != nil {
			writeError(w, err, "state")
			return
		}
		flash(w, http.StatusOK, "success", "State moved")
	}
}

func handleListStateNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		stateID, ok := pathID(w, r, "stateID")
		if !ok {
			return
		}
		notes, err := deps.Store.NotesInState(r.Context(), boardID, stateID)
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

func handleListTags(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := deps.Store.ListTags(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tags: %v", err)
			return
		}
		if tags == nil {
			tags = []storage.Tag{}
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

func handleCreateTag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		id, err := deps.Store.CreateTag(r.Context(), req.Name)
		if err != nil {
			httpError(w, http.StatusConflict, "conflict_error", "failed to create tag: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":  "success",
			"message": "Tag created",
			"id":      id,
		})
	}
}

func handleTagBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req struct {
			TagID int64 `json:"tag_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := deps.Store.GetBoard(r.Context(), boardID); err != nil {
			writeError(w, err, "board")
			return
		}
		if err := deps.Store.TagBoard(r.Context(), boardID, req.TagID); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to tag board: %v", err)
			return
		}
		flash(w, http.StatusOK, "success", "Board tagged")
	}
}
