package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kalambet/orbitask/internal/auth"
	"github.com/kalambet/orbitask/internal/storage"
)

// RequireAuth accepts either the CLI bearer token or a valid session cookie.
func RequireAuth(sessions *auth.Sessions, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validBearer(r, token) {
				next.ServeHTTP(w, r)
				return
			}
			if sessions != nil {
				if _, err := sessions.FromRequest(r); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing credentials")
		})
	}
}

func validBearer(r *http.Request, token string) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if token == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(token)) == 1
}

type loginRequest struct {
	Password string `json:"password"`
	Next     string `json:"next"`
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !deps.Limiter.Allow(client) {
			deps.Logger.Warn("login rate limited", "client", client)
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many login attempts, try again later")
			return
		}

		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		hash, err := deps.Store.PasswordHash(r.Context())
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusServiceUnavailable, "authentication_error", "no admin password set, run `orbitask password set`")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load password: %v", err)
			return
		}
		if !auth.CheckPassword(hash, req.Password) {
			deps.Logger.Info("login failed", "client", client)
			httpError(w, http.StatusUnauthorized, "authentication_error", "wrong password")
			return
		}

		deps.Limiter.Reset(client)
		cookie, err := deps.Sessions.Issue(auth.AdminSubject)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start session: %v", err)
			return
		}
		http.SetCookie(w, cookie)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "success",
			"redirect": auth.SafeRedirect(req.Next),
		})
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, deps.Sessions.Clear())
		flash(w, http.StatusOK, "success", "Logged out")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
