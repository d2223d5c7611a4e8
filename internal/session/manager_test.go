package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lhajoosten/trackerctl/internal/rbac"
	"github.com/lhajoosten/trackerctl/internal/storage"
)

type fakeAuth struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int

	refreshEntered chan struct{} // closed when the first refresh starts
	refreshRelease chan struct{} // refresh blocks until closed (if set)
	refreshCreds   Credentials
	refreshErr     error
	logoutErr      error

	enteredOnce sync.Once
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshCredential string) (Credentials, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshEntered != nil {
		f.enteredOnce.Do(func() { close(f.refreshEntered) })
	}
	if f.refreshRelease != nil {
		select {
		case <-f.refreshRelease:
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		}
	}
	return f.refreshCreds, f.refreshErr
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func waitForWaiters(t *testing.T, m *Manager, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		got := len(m.waiters)
		m.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued waiters", n)
}

func TestRefreshSingleFlight(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		refreshEntered: make(chan struct{}),
		refreshRelease: make(chan struct{}),
		refreshCreds:   Credentials{AccessToken: "new-access", RefreshToken: "new-refresh"},
	}
	m := NewManager(ModeBearer, storage.NewMemStore())
	m.Bind(auth)
	if err := m.Login(&rbac.User{ID: "u1"}, Credentials{AccessToken: "old", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	errs := make(chan error, 3)
	go func() { errs <- m.Refresh(context.Background()) }()
	<-auth.refreshEntered

	// Two more callers observe the expired credential while the refresh is
	// in flight; they must queue, not dial.
	go func() { errs <- m.Refresh(context.Background()) }()
	go func() { errs <- m.Refresh(context.Background()) }()
	waitForWaiters(t, m, 2)

	close(auth.refreshRelease)
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	if got := auth.calls(); got != 1 {
		t.Fatalf("refresh network calls = %d, want 1", got)
	}
	m.mu.Lock()
	access := m.creds.AccessToken
	m.mu.Unlock()
	if access != "new-access" {
		t.Fatalf("refreshed access token not stored, got %q", access)
	}
}

func TestRefreshFailureRejectsAllWaiters(t *testing.T) {
	t.Parallel()

	refreshErr := errors.New("connection reset")
	auth := &fakeAuth{
		refreshEntered: make(chan struct{}),
		refreshRelease: make(chan struct{}),
		refreshErr:     refreshErr,
	}
	var redirects atomic.Int32
	m := NewManager(ModeBearer, storage.NewMemStore(), WithRedirect(func() { redirects.Add(1) }))
	m.Bind(auth)
	if err := m.Login(&rbac.User{ID: "u1"}, Credentials{AccessToken: "old", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	errs := make(chan error, 3)
	go func() { errs <- m.Refresh(context.Background()) }()
	<-auth.refreshEntered
	go func() { errs <- m.Refresh(context.Background()) }()
	go func() { errs <- m.Refresh(context.Background()) }()
	waitForWaiters(t, m, 2)

	close(auth.refreshRelease)
	for i := 0; i < 3; i++ {
		if err := <-errs; !errors.Is(err, refreshErr) {
			t.Fatalf("caller %d: got %v, want %v", i, err, refreshErr)
		}
	}

	sess := m.Session()
	if sess.IsAuthenticated || sess.User != nil {
		t.Fatalf("session not cleared after terminal refresh failure: %+v", sess)
	}
	if got := redirects.Load(); got != 1 {
		t.Fatalf("redirect fired %d times, want exactly 1", got)
	}
	if got := auth.calls(); got != 1 {
		t.Fatalf("refresh network calls = %d, want 1", got)
	}
}

func TestRefreshWithoutCredentialIsTerminal(t *testing.T) {
	t.Parallel()

	var redirects atomic.Int32
	m := NewManager(ModeBearer, storage.NewMemStore(), WithRedirect(func() { redirects.Add(1) }))
	m.Bind(&fakeAuth{})

	err := m.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshCredential) {
		t.Fatalf("got %v, want ErrNoRefreshCredential", err)
	}
	if redirects.Load() != 1 {
		t.Fatalf("redirect fired %d times, want 1", redirects.Load())
	}
}

func TestLogoutClearsLocallyWhenServerUnreachable(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{logoutErr: errors.New("dial tcp: connection refused")}
	store := storage.NewMemStore()
	m := NewManager(ModeBearer, store)
	m.Bind(auth)
	if err := m.Login(&rbac.User{ID: "u1", Username: "jsmith"}, Credentials{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if auth.logoutCalls != 1 {
		t.Fatalf("server logout attempts = %d, want 1", auth.logoutCalls)
	}
	sess := m.Session()
	if sess.IsAuthenticated || sess.User != nil {
		t.Fatalf("session survived logout: %+v", sess)
	}
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	if creds != (Credentials{}) {
		t.Fatalf("credentials survived logout: %+v", creds)
	}
}

func TestPersistRoundTripBearer(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	m := NewManager(ModeBearer, store)
	user := &rbac.User{ID: "u1", Username: "jsmith", Email: "j@example.com"}
	if err := m.Login(user, Credentials{AccessToken: "super-secret-access", RefreshToken: "super-secret-refresh"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	raw, ok, err := store.Get("session")
	if err != nil || !ok {
		t.Fatalf("persisted state missing: ok=%v err=%v", ok, err)
	}
	if strings.Contains(string(raw), "super-secret") {
		t.Fatalf("token material leaked into durable storage: %s", raw)
	}

	// Simulated process restart.
	restored := NewManager(ModeBearer, store)
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	sess := restored.Session()
	if !sess.IsAuthenticated {
		t.Fatalf("restored session not authenticated")
	}
	if sess.User == nil || sess.User.Username != "jsmith" {
		t.Fatalf("restored user mismatch: %+v", sess.User)
	}
	restored.mu.Lock()
	creds := restored.creds
	restored.mu.Unlock()
	if creds.AccessToken != "" || creds.RefreshToken != "" {
		t.Fatalf("bearer tokens must not survive a restart, got %+v", creds)
	}
}

func TestPersistRoundTripCookie(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	m := NewManager(ModeCookie, store)
	if err := m.Login(&rbac.User{ID: "u1"}, Credentials{RefreshID: "rid-123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	restored := NewManager(ModeCookie, store)
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored.mu.Lock()
	rid := restored.creds.RefreshID
	restored.mu.Unlock()
	if rid != "rid-123" {
		t.Fatalf("refresh identifier not restored, got %q", rid)
	}
}

func TestAttachByMode(t *testing.T) {
	t.Parallel()

	bearer := NewManager(ModeBearer, storage.NewMemStore())
	if err := bearer.Login(&rbac.User{ID: "u1"}, Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api/users", nil)
	bearer.Attach(req)
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("Authorization = %q, want %q", got, "Bearer tok")
	}

	cookie := NewManager(ModeCookie, storage.NewMemStore())
	if err := cookie.Login(&rbac.User{ID: "u1"}, Credentials{RefreshID: "rid"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	req2, _ := http.NewRequest(http.MethodGet, "http://api/users", nil)
	cookie.Attach(req2)
	if got := req2.Header.Get("Authorization"); got != "" {
		t.Fatalf("cookie mode must not set Authorization, got %q", got)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNeedsRefresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(ModeBearer, storage.NewMemStore(), WithClock(func() time.Time { return now }))

	if m.NeedsRefresh(30 * time.Second) {
		t.Fatalf("no token held, NeedsRefresh must be false")
	}

	if err := m.Login(&rbac.User{ID: "u1"}, Credentials{AccessToken: signedToken(t, now.Add(10*time.Second))}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !m.NeedsRefresh(30 * time.Second) {
		t.Fatalf("token expiring inside leeway, NeedsRefresh must be true")
	}

	if err := m.Login(&rbac.User{ID: "u1"}, Credentials{AccessToken: signedToken(t, now.Add(time.Hour))}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if m.NeedsRefresh(30 * time.Second) {
		t.Fatalf("token valid for an hour, NeedsRefresh must be false")
	}
}
