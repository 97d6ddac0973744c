package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "orbitask_session"

// AdminSubject is the only user Orbitask knows.
const AdminSubject = "admin"

var ErrInvalidSession = errors.New("invalid or expired session")

// session is the signed cookie payload.
type session struct {
	Subject string `json:"sub"`
	Expires int64  `json:"exp"`
}

// Sessions issues and verifies signed session cookies. The hash key is
// derived from the configured secret.
type Sessions struct {
	codec *securecookie.SecureCookie
	ttl   time.Duration
	now   func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	hashKey := sha256.Sum256([]byte(secret))
	codec := securecookie.New(hashKey[:], nil)
	codec.MaxAge(int(ttl / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Sessions{codec: codec, ttl: ttl, now: time.Now}
}

// Issue returns a session cookie for subject.
func (s *Sessions) Issue(subject string) (*http.Cookie, error) {
	expires := s.now().Add(s.ttl)
	value, err := s.codec.Encode(CookieName, session{Subject: subject, Expires: expires.Unix()})
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns a cookie that removes the session.
func (s *Sessions) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Verify checks a cookie value and returns its subject.
func (s *Sessions) Verify(value string) (string, error) {
	var sess session
	if err := s.codec.Decode(CookieName, value, &sess); err != nil {
		return "", ErrInvalidSession
	}
	if sess.Subject == "" || !s.now().Before(time.Unix(sess.Expires, 0)) {
		return "", ErrInvalidSession
	}
	return sess.Subject, nil
}

// FromRequest verifies the session cookie of r, if any.
func (s *Sessions) FromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrInvalidSession
	}
	return s.Verify(c.Value)
}

// SafeRedirect returns next when it is a local absolute path and "/"
// otherwise, so login cannot redirect to another host.
func SafeRedirect(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next
	}
	return "/"
}
