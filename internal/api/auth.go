package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lhajoosten/trackerctl/internal/rbac"
	"github.com/lhajoosten/trackerctl/internal/session"
)

// AuthService drives the auth endpoints and keeps the session manager in
// sync with their results.
type AuthService struct {
	c *Client
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login payload. In cookie mode AccessToken is absent
// and RefreshToken carries the refresh identifier.
type LoginResponse struct {
	Message      string    `json:"message"`
	User         rbac.User `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
}

// Register creates an account. It does not log in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodPost, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates and stores the returned credentials in the session
// manager according to the active mode.
func (s *AuthService) Login(ctx context.Context, username, password string) (*rbac.User, error) {
	var resp LoginResponse
	if err := s.c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}

	var creds session.Credentials
	switch s.c.session.Mode() {
	case session.ModeBearer:
		creds = session.Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	case session.ModeCookie:
		// The session cookie is already in the jar; keep only the
		// identifier needed to request new cookies.
		creds = session.Credentials{RefreshID: resp.RefreshToken}
	}

	user := resp.User
	if err := s.c.session.Login(&user, creds); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me fetches the current user and refreshes the cached snapshot.
func (s *AuthService) Me(ctx context.Context) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	if err := s.c.session.SetUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout delegates to the session manager: best-effort server call, then an
// unconditional local clear.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.c.session.Logout(ctx)
}

// authenticator is the session manager's view of the auth endpoints. Both
// calls bypass the do() pipeline: a refresh must never recurse into 401
// recovery, and logout is fired from within the manager itself.
type authenticator struct {
	c *Client
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (a *authenticator) Refresh(ctx context.Context, refreshCredential string) (session.Credentials, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshCredential})
	if err != nil {
		return session.Credentials{}, fmt.Errorf("api: encode refresh request: %w", err)
	}
	u := a.c.baseURL.JoinPath("/auth/refresh")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return session.Credentials{}, fmt.Errorf("api: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.c.httpc.Do(req)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("api: refresh call: %w", err)
	}
	defer resp.Body.Close()

	// 204 means the server renewed the httpOnly cookie in place.
	if resp.StatusCode == http.StatusNoContent {
		return session.Credentials{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return session.Credentials{}, &Error{Status: resp.StatusCode, Detail: readDetail(resp)}
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return session.Credentials{}, fmt.Errorf("api: decode refresh response: %w", err)
	}
	if a.c.session.Mode() == session.ModeCookie {
		return session.Credentials{RefreshID: body.RefreshToken}, nil
	}
	return session.Credentials{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

func (a *authenticator) Logout(ctx context.Context) error {
	u := a.c.baseURL.JoinPath("/auth/logout")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("api: build logout request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	a.c.session.Attach(req)

	resp, err := a.c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("api: logout call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &Error{Status: resp.StatusCode, Detail: readDetail(resp)}
}
