// Package session owns client credential state: it attaches credentials to
// outgoing requests, runs the single-flight refresh protocol on expiry, and
// persists the authenticated identity across process restarts.
package session

import (
	"context"
	"errors"

	"github.com/lhajoosten/trackerctl/internal/rbac"
)

var (
	// ErrNoRefreshCredential means a refresh was requested but no refresh
	// token or identifier is held. Terminal for the session.
	ErrNoRefreshCredential = errors.New("session: no refresh credential")
	// ErrNoAuthenticator means the manager was never bound to an auth
	// endpoint client.
	ErrNoAuthenticator = errors.New("session: authenticator not configured")
)

// Mode selects how credentials travel on the wire. The choice is fixed per
// deployment; bearer attachment and cookie refresh are never mixed.
type Mode int

const (
	// ModeBearer holds an access/refresh token pair in memory and sets the
	// Authorization header on every request.
	ModeBearer Mode = iota
	// ModeCookie relies on an httpOnly session cookie managed by the
	// transport's cookie jar; the client holds only a refresh identifier.
	ModeCookie
)

func (m Mode) String() string {
	switch m {
	case ModeBearer:
		return "bearer"
	case ModeCookie:
		return "cookie"
	default:
		return "unknown"
	}
}

// Credentials is the client-held credential material for either mode.
type Credentials struct {
	// AccessToken and RefreshToken are used in bearer mode and live in
	// memory only.
	AccessToken  string
	RefreshToken string
	// RefreshID is the cookie-mode refresh identifier. It is the only
	// credential material that may be persisted.
	RefreshID string
}

// Session is the authenticated-identity snapshot consumed by the UI layer.
type Session struct {
	User            *rbac.User
	IsAuthenticated bool
}

// Authenticator is the slice of the auth API the manager needs. Refresh must
// bypass the 401 recovery path or a dead credential would recurse forever.
type Authenticator interface {
	// Refresh exchanges the held refresh credential for new credentials.
	// In cookie mode the transport renews the cookie as a side effect and
	// the returned Credentials may carry only a rotated RefreshID.
	Refresh(ctx context.Context, refreshCredential string) (Credentials, error)
	// Logout invalidates the server-side session. Best effort.
	Logout(ctx context.Context) error
}

// persistedState is the durable shape of a session. A bearer access token is
// never part of it.
type persistedState struct {
	Version         int        `json:"version"`
	User            *rbac.User `json:"user,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	RefreshID       string     `json:"refresh_id,omitempty"`
}

const (
	stateKey     = "session"
	stateVersion = 1
)
