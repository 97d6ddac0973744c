package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func TestValidatePassword(t *testing.T) {
	for _, pw := range []string{"abc123", "A", "0"} {
		if err := ValidatePassword(pw); err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", pw, err)
		}
	}
	for _, pw := range []string{"", "with space", "émoji", "semi;colon", "tab\t"} {
		if err := ValidatePassword(pw); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("ValidatePassword(%q) = %v, want ErrInvalidPassword", pw, err)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Error("CheckPassword rejected the right password")
	}
	if CheckPassword(hash, "hunter3") {
		t.Error("CheckPassword accepted the wrong password")
	}
	if _, err := HashPassword("bad pass"); err == nil {
		t.Error("HashPassword accepted an invalid password")
	}
}

func TestLimiterBlocksAfterMax(t *testing.T) {
	clock := newClock()
	l := NewLimiter(3, time.Minute)
	l.now = clock.now

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("attempt %d rejected, want allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("attempt 4 allowed, want rejected")
	}
	if !l.Allow("5.6.7.8") {
		t.Error("other client rejected")
	}

	clock.advance(61 * time.Second)
	if !l.Allow("1.2.3.4") {
		t.Error("attempt after window rejected, want allowed")
	}
}

func TestLimiterSlidingWindow(t *testing.T) {
	clock := newClock()
	l := NewLimiter(2, time.Minute)
	l.now = clock.now

	l.Allow("ip")
	clock.advance(40 * time.Second)
	l.Allow("ip")
	clock.advance(30 * time.Second)

	// The first attempt left the window; the second has not.
	if !l.Allow("ip") {
		t.Fatal("expected one slot to be free")
	}
	if l.Allow("ip") {
		t.Fatal("expected the window to be full again")
	}
}

func TestLimiterReset(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	l.Allow("ip")
	if l.Allow("ip") {
		t.Fatal("expected rejection before reset")
	}
	l.Reset("ip")
	if !l.Allow("ip") {
		t.Error("expected attempt to be allowed after reset")
	}
}

func TestLimiterPrune(t *testing.T) {
	clock := newClock()
	l := NewLimiter(5, time.Minute)
	l.now = clock.now

	l.Allow("old")
	clock.advance(50 * time.Second)
	l.Allow("new")
	clock.advance(20 * time.Second)
	l.Prune()

	if got := l.size(); got != 1 {
		t.Errorf("size after prune = %d, want 1", got)
	}
}

func TestLimiterConcurrent(t *testing.T) {
	l := NewLimiter(50, time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("ip") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestLimiterRunStopsOnCancel(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func issue(t *testing.T, s *Sessions) *http.Cookie {
	t.Helper()
	c, err := s.Issue(AdminSubject)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return c
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	c := issue(t, s)
	if c.Name != CookieName || !c.HttpOnly {
		t.Errorf("cookie = %+v", c)
	}
	if strings.Contains(c.Value, AdminSubject) {
		t.Errorf("cookie value %q carries the subject in clear", c.Value)
	}

	subject, err := s.Verify(c.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != AdminSubject {
		t.Errorf("subject = %q, want admin", subject)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(c)
	if subject, err := s.FromRequest(req); err != nil || subject != AdminSubject {
		t.Errorf("FromRequest = %q, %v", subject, err)
	}
}

func TestSessionRejectsTampering(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	value := issue(t, s).Value

	flipped := []byte(value)
	i := len(flipped) / 2
	if flipped[i] == 'A' {
		flipped[i] = 'B'
	} else {
		flipped[i] = 'A'
	}

	otherName, err := s.codec.Encode("other_cookie", session{Subject: AdminSubject, Expires: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	noSubject, err := s.codec.Encode(CookieName, session{Expires: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for name, v := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-cookie",
		"truncated":  value[:len(value)-4],
		"flipped":    string(flipped),
		"other key":  issue(t, NewSessions("other-secret", time.Hour)).Value,
		"other name": otherName,
		"no subject": noSubject,
	} {
		if _, err := s.Verify(v); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("%s: Verify error = %v, want ErrInvalidSession", name, err)
		}
	}
}

func TestSessionExpires(t *testing.T) {
	clock := newClock()
	s := NewSessions("secret", time.Hour)
	s.now = clock.now

	c := issue(t, s)
	if !c.Expires.Equal(clock.t.Add(time.Hour)) {
		t.Errorf("cookie expires %v, want %v", c.Expires, clock.t.Add(time.Hour))
	}
	clock.advance(59 * time.Minute)
	if _, err := s.Verify(c.Value); err != nil {
		t.Fatalf("session rejected before expiry: %v", err)
	}
	clock.advance(2 * time.Minute)
	if _, err := s.Verify(c.Value); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expired session error = %v, want ErrInvalidSession", err)
	}
}

func TestFromRequestWithoutCookie(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	if _, err := s.FromRequest(httptest.NewRequest("GET", "/", nil)); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("FromRequest error = %v, want ErrInvalidSession", err)
	}
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"/notes/3":         "/notes/3",
		"/":                "/",
		"":                 "/",
		"https://evil.com": "/",
		"//evil.com":       "/",
		"/\\evil.com":      "/",
		"notes":            "/",
	}
	for in, want := range cases {
		if got := SafeRedirect(in); got != want {
			t.Errorf("SafeRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}
