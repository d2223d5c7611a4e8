package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lhajoosten/trackerctl/internal/obs"
	"github.com/lhajoosten/trackerctl/internal/rbac"
	"github.com/lhajoosten/trackerctl/internal/storage"
)

// Manager is the session manager: one instance per client, passed by
// reference to whatever issues HTTP calls.
type Manager struct {
	mode     Mode
	store    storage.Store
	log      *zap.Logger
	now      func() time.Time
	redirect func()

	mu         sync.Mutex
	auth       Authenticator
	creds      Credentials
	session    Session
	refreshing bool
	waiters    []chan error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithRedirect installs the hook invoked when the session becomes
// unrecoverable and the user must log in again. Called at most once per
// terminal refresh failure.
func WithRedirect(fn func()) Option {
	return func(m *Manager) { m.redirect = fn }
}

// NewManager constructs a manager for the given credential mode backed by
// the given durable store.
func NewManager(mode Mode, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		mode:  mode,
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind attaches the auth endpoint client. Separate from construction because
// the API client needs the manager first.
func (m *Manager) Bind(auth Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = auth
}

// Mode returns the credential mode the manager was constructed with.
func (m *Manager) Mode() Mode { return m.mode }

// Session returns the current authenticated-identity snapshot.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CurrentUser returns the cached user, or nil when unauthenticated.
func (m *Manager) CurrentUser() *rbac.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.User
}

// Attach adds the held credentials to an outgoing request. In cookie mode
// this is a no-op: the cookie jar handles transport.
func (m *Manager) Attach(req *http.Request) {
	if m.mode != ModeBearer {
		return
	}
	m.mu.Lock()
	token := m.creds.AccessToken
	m.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// NeedsRefresh reports whether the bearer access token expires within
// leeway. The token is decoded without signature verification; the client
// has no key material and only needs the exp claim.
func (m *Manager) NeedsRefresh(leeway time.Duration) bool {
	m.mu.Lock()
	token := m.creds.AccessToken
	m.mu.Unlock()
	if m.mode != ModeBearer || token == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return m.now().Add(leeway).After(claims.ExpiresAt.Time)
}

// Login stores credentials for the active mode and marks the session
// authenticated as the given user.
func (m *Manager) Login(user *rbac.User, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCredentialsLocked(creds)
	m.session = Session{User: user, IsAuthenticated: true}
	return m.persistLocked()
}

// SetUser replaces the cached user snapshot, e.g. after a "who am I" fetch
// or a profile update.
func (m *Manager) SetUser(user *rbac.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{User: user, IsAuthenticated: true}
	return m.persistLocked()
}

// Logout calls the server logout endpoint best-effort, then unconditionally
// clears local credentials and session state. A network failure never blocks
// the local logout.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	auth := m.auth
	m.mu.Unlock()

	if auth != nil {
		if err := auth.Logout(ctx); err != nil {
			m.log.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return m.persistLocked()
}

// Refresh runs the refresh protocol. The first caller performs exactly one
// network call; concurrent callers queue and are released in FIFO order with
// the same outcome. On failure the session is cleared, the redirect hook
// fires once, and the error is returned to every waiter.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.refreshing {
		ch := make(chan error, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.refreshing = true
	auth := m.auth
	creds := m.creds
	m.mu.Unlock()

	next, err := m.runRefresh(ctx, auth, creds)

	m.mu.Lock()
	m.refreshing = false
	waiters := m.waiters
	m.waiters = nil
	if err == nil {
		m.storeCredentialsLocked(next)
	} else {
		m.clearLocked()
	}
	if perr := m.persistLocked(); perr != nil {
		m.log.Warn("persist session state", zap.Error(perr))
	}
	redirect := m.redirect
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}

	if err != nil {
		obs.ObserveRefresh("failure")
		m.log.Warn("credential refresh failed, session cleared", zap.Error(err))
		if redirect != nil {
			redirect()
		}
		return err
	}
	obs.ObserveRefresh("success")
	m.log.Debug("credentials refreshed")
	return nil
}

// Restore loads the persisted session, if any. Bearer tokens are memory-only
// and never come back from storage; in cookie mode the refresh identifier is
// restored alongside the identity.
func (m *Manager) Restore() error {
	raw, ok, err := m.store.Get(stateKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var st persistedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("session: decode persisted state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{User: st.User, IsAuthenticated: st.IsAuthenticated}
	if m.mode == ModeCookie {
		m.creds.RefreshID = st.RefreshID
	}
	return nil
}

func (m *Manager) runRefresh(ctx context.Context, auth Authenticator, creds Credentials) (Credentials, error) {
	if auth == nil {
		return Credentials{}, ErrNoAuthenticator
	}
	refreshCred := creds.RefreshToken
	if m.mode == ModeCookie {
		refreshCred = creds.RefreshID
	}
	if refreshCred == "" {
		return Credentials{}, ErrNoRefreshCredential
	}
	return auth.Refresh(ctx, refreshCred)
}

func (m *Manager) storeCredentialsLocked(next Credentials) {
	switch m.mode {
	case ModeBearer:
		m.creds.AccessToken = next.AccessToken
		if next.RefreshToken != "" {
			m.creds.RefreshToken = next.RefreshToken
		}
	case ModeCookie:
		// The cookie itself lives in the jar; only track a rotated
		// refresh identifier.
		if next.RefreshID != "" {
			m.creds.RefreshID = next.RefreshID
		}
	}
}

func (m *Manager) clearLocked() {
	m.creds = Credentials{}
	m.session = Session{}
}

func (m *Manager) persistLocked() error {
	st := persistedState{
		Version:         stateVersion,
		User:            m.session.User,
		IsAuthenticated: m.session.IsAuthenticated,
	}
	if m.mode == ModeCookie {
		st.RefreshID = m.creds.RefreshID
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode persisted state: %w", err)
	}
	return m.store.Set(stateKey, raw)
}
