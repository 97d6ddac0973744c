package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/orbitask/internal/auth"
	"github.com/kalambet/orbitask/internal/forms"
	"github.com/kalambet/orbitask/internal/script"
	"github.com/kalambet/orbitask/internal/storage"
)

const testToken = "test-token-12345"

var ctx = context.Background()

func newTestDispatcher() *forms.Dispatcher {
	return forms.NewDispatcher(script.NewRunner(script.NewLuaEngine(), script.Options{Timeout: 2 * time.Second}))
}

func setupAppHandler(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewHandler(Deps{
		Store:      store,
		Dispatcher: newTestDispatcher(),
		Sessions:   auth.NewSessions("test-secret", time.Hour),
		Limiter:    auth.NewLimiter(3, time.Minute),
		Token:      token,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBodyMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return m
}

func setPassword(t *testing.T, store *storage.Store, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := store.SetPasswordHash(ctx, hash); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
}

func TestHealth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeBodyMap(t, rr); body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr = serve(h, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want echoed abc", got)
	}
}

func TestRequireAuth_NoCredentials(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodGet, "/notes", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	body := decodeBodyMap(t, rr)
	errObj, ok := body["error"].(map[string]any)
	if !ok || errObj["type"] != "authentication_error" {
		t.Errorf("body = %v, want authentication_error", body)
	}
}

func TestRequireAuth_WrongToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodGet, "/notes", "", "nope"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodGet, "/notes", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rr.Body.String())
	}
}

func TestRequireAuth_EmptyTokenNeverMatches(t *testing.T) {
	h, _ := setupAppHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer ")
	if rr := serve(h, req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_NoPasswordSet(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"x"}`, ""))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestLogin_SessionGrantsAccess(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	setPassword(t, store, "hunter2")

	rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"wrong1"}`, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = serve(h, authReq(http.MethodPost, "/login", `{"password":"hunter2","next":"/notes/3"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != auth.CookieName {
		t.Fatalf("cookies = %v, want one session cookie", cookies)
	}
	body := decodeBodyMap(t, rr)
	if body["status"] != "success" || body["redirect"] != "/notes/3" {
		t.Errorf("body = %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.AddCookie(cookies[0])
	if rr := serve(h, req); rr.Code != http.StatusOK {
		t.Errorf("session request status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestLogin_RedirectStaysLocal(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	setPassword(t, store, "hunter2")

	rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"hunter2","next":"//evil.example"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeBodyMap(t, rr); body["redirect"] != "/" {
		t.Errorf("redirect = %v, want /", body["redirect"])
	}
}

func TestLogin_RateLimited(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	setPassword(t, store, "hunter2")

	for i := 0; i < 3; i++ {
		rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"guess"}`, ""))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want %d", i+1, rr.Code, http.StatusUnauthorized)
		}
	}
	rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"hunter2"}`, ""))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("rate limited login must not set a session cookie")
	}
}

func TestLogin_SuccessResetsLimiter(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	setPassword(t, store, "hunter2")

	serve(h, authReq(http.MethodPost, "/login", `{"password":"guess"}`, ""))
	serve(h, authReq(http.MethodPost, "/login", `{"password":"hunter2"}`, ""))
	for i := 0; i < 3; i++ {
		rr := serve(h, authReq(http.MethodPost, "/login", `{"password":"guess"}`, ""))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d after success status = %d, want %d", i+1, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestLogout(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodPost, "/logout", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %v, want an expired session cookie", cookies)
	}
}

func TestInvalidPathID(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := serve(h, authReq(http.MethodGet, "/notes/abc", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
