package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/kalambet/orbitask/internal/script"
	"github.com/kalambet/orbitask/internal/storage"
)

// CodeRequest is the body of code create and update calls.
type CodeRequest struct {
	Name         string          `json:"name"`
	Capabilities json.RawMessage `json:"capabilities"`
	Script       string          `json:"script"`
}

type codeView struct {
	Name         string          `json:"name"`
	Capabilities json.RawMessage `json:"capabilities"`
	Script       string          `json:"script,omitempty"`
}

func viewCode(c storage.Code) codeView {
	return codeView{Name: c.Name, Capabilities: json.RawMessage(c.Capabilities), Script: c.Script}
}

// canonicalCapabilities validates a capability list and returns it in its
// stored form.
func canonicalCapabilities(raw json.RawMessage) (string, error) {
	caps, err := script.ParseCapabilities(string(raw))
	if err != nil {
		return "", err
	}
	if len(caps) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(caps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func handleListCodes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := deps.Store.ListCodeNames(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list codes: %v", err)
			return
		}
		views := make([]codeView, 0, len(names))
		for _, name := range names {
			c, err := deps.Store.GetCode(r.Context(), name)
			if err != nil {
				writeError(w, err, "code")
				return
			}
			c.Script = ""
			views = append(views, viewCode(c))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetCode(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Store.GetCode(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err, "code")
			return
		}
		writeJSON(w, http.StatusOK, viewCode(c))
	}
}

func handleCreateCode(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CodeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		caps, err := canonicalCapabilities(req.Capabilities)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid capabilities: %v", err)
			return
		}

		if _, err := deps.Store.GetCode(r.Context(), req.Name); err == nil {
			httpError(w, http.StatusConflict, "conflict_error", "code %q already exists", req.Name)
			return
		}
		if err := deps.Store.CreateCode(r.Context(), storage.Code{Name: req.Name, Capabilities: caps, Script: req.Script}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create code: %v", err)
			return
		}
		deps.Logger.Info("code created", "code", req.Name, "capabilities", caps)
		flash(w, http.StatusCreated, "success", "Code %s created", req.Name)
	}
}

func handleUpdateCode(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req CodeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		caps, err := canonicalCapabilities(req.Capabilities)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid capabilities: %v", err)
			return
		}
		if err := deps.Store.UpdateCode(r.Context(), name, caps, req.Script); err != nil {
			writeError(w, err, "code")
			return
		}
		deps.Logger.Info("code updated", "code", name, "capabilities", caps)
		flash(w, http.StatusOK, "success", "Code %s updated", name)
	}
}

func handleDeleteCode(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := deps.Store.DeleteCode(r.Context(), name); err != nil {
			writeError(w, err, "code")
			return
		}
		flash(w, http.StatusOK, "success", "Code %s deleted", name)
	}
}
