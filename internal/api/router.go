package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kalambet/orbitask/internal/auth"
	"github.com/kalambet/orbitask/internal/forms"
	"github.com/kalambet/orbitask/internal/script"
	"github.com/kalambet/orbitask/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP API needs.
type Deps struct {
	Store      *storage.Store
	Dispatcher *forms.Dispatcher
	Sessions   *auth.Sessions
	Limiter    *auth.Limiter
	Token      string
	Logger     *slog.Logger
}

// NewHandler returns the Orbitask HTTP API. Everything except health, login
// and logout requires a session cookie or the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLog(deps.Logger))

	r.Get("/health", handleHealth)
	r.Post("/login", handleLogin(deps))
	r.Post("/logout", handleLogout(deps))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(deps.Sessions, deps.Token))

		r.Get("/codes", handleListCodes(deps))
		r.Post("/codes", handleCreateCode(deps))
		r.Get("/codes/{name}", handleGetCode(deps))
		r.Put("/codes/{name}", handleUpdateCode(deps))
		r.Delete("/codes/{name}", handleDeleteCode(deps))

		r.Get("/notes", handleListNotes(deps))
		r.Post("/notes", handleCreateNote(deps))
		r.Post("/notes/import", handleImportNote(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Put("/notes/{id}", handleUpdateNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))
		r.Get("/notes/{id}/children", handleListChildren(deps))
		r.Post("/notes/{id}/children", handleCreateChild(deps))
		r.Get("/notes/{id}/attributes", handleListAttributes(deps))
		r.Put("/notes/{id}/attributes/{key}", handleSetAttribute(deps))
		r.Delete("/notes/{id}/attributes/{key}", handleDeleteAttribute(deps))
		r.Get("/notes/{id}/logs", handleListLogs(deps))
		r.Post("/notes/{id}/move", handleMoveNote(deps))
		r.Get("/notes/{id}/forms", handleListForms(deps))
		r.Post("/notes/{id}/execute", handleExecute(deps))

		r.Get("/boards", handleListBoards(deps))
		r.Post("/boards", handleCreateBoard(deps))
		r.Get("/boards/{id}", handleGetBoard(deps))
		r.Post("/boards/{id}/states", handleCreateState(deps))
		r.Get("/boards/{id}/states/{stateID}/notes", handleListStateNotes(deps))
		r.Post("/boards/{id}/tags", handleTagBoard(deps))
		r.Post("/states/{id}/move", handleMoveState(deps))
		r.Get("/tags", handleListTags(deps))
		r.Post("/tags", handleCreateTag(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// requestLog tags each request with an X-Request-ID and logs it at debug level.
func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// flash writes the {"status","message"} reply used by mutating endpoints.
func flash(w http.ResponseWriter, code int, status, format string, args ...any) {
	writeJSON(w, code, map[string]string{
		"status":  status,
		"message": fmt.Sprintf(format, args...),
	})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// errorStatus maps domain errors to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, forms.ErrUnknownAction):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, forms.ErrParse):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, script.ErrUnauthorized):
		return http.StatusForbidden, "permission_error"
	case errors.Is(err, script.ErrConfig), errors.Is(err, script.ErrLoad),
		errors.Is(err, script.ErrParse), errors.Is(err, script.ErrExecution):
		return http.StatusUnprocessableEntity, "script_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeError(w http.ResponseWriter, err error, what string) {
	code, errType := errorStatus(err)
	if code == http.StatusNotFound && errors.Is(err, storage.ErrNotFound) {
		httpError(w, code, errType, "%s not found", what)
		return
	}
	httpError(w, code, errType, "%v", err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// pathID parses the int64 URL parameter key, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s %q", key, chi.URLParam(r, key))
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
