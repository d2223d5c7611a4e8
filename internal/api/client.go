// Package api is the typed REST client for the admin backend. It owns the
// request pipeline: rate limiting, request identifiers, credential
// attachment, and the one-shot refresh-and-replay recovery on 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lhajoosten/trackerctl/internal/ids"
	"github.com/lhajoosten/trackerctl/internal/obs"
	"github.com/lhajoosten/trackerctl/internal/session"
)

const defaultTimeout = 15 * time.Second

// Client issues authenticated requests against the admin API.
type Client struct {
	baseURL       *url.URL
	httpc         *http.Client
	session       *session.Manager
	limiter       *rate.Limiter
	log           *zap.Logger
	refreshLeeway time.Duration

	Auth        *AuthService
	Users       *UsersService
	Roles       *RolesService
	Permissions *PermissionsService
	Health      *HealthService
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRateLimit bounds outgoing requests to perSecond with the given burst.
// Zero perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithRefreshLeeway sets how long before access-token expiry the client
// refreshes proactively instead of waiting for a 401 round-trip.
func WithRefreshLeeway(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshLeeway = d
		}
	}
}

// New builds a client for the API rooted at baseURL (including any path
// prefix, e.g. https://host/api/v1) and binds it to the session manager as
// its refresh transport.
func New(baseURL string, mgr *session.Manager, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base url must be absolute, got %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		httpc:   &http.Client{Timeout: defaultTimeout},
		session: mgr,
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if mgr.Mode() == session.ModeCookie && c.httpc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", err)
		}
		c.httpc.Jar = jar
	}

	c.Auth = &AuthService{c: c}
	c.Users = &UsersService{c: c}
	c.Roles = &RolesService{c: c}
	c.Permissions = &PermissionsService{c: c}
	c.Health = &HealthService{c: c}

	mgr.Bind(&authenticator{c: c})
	return c, nil
}

// Session exposes the bound session manager.
func (c *Client) Session() *session.Manager { return c.session }

// do runs one logical request through the full pipeline. A 401 is recovered
// at most once: refresh, re-attach, replay. Every other status is decoded
// and surfaced untouched.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
	}

	if c.refreshLeeway > 0 && c.session.NeedsRefresh(c.refreshLeeway) {
		if err := c.session.Refresh(ctx); err != nil {
			return fmt.Errorf("api: refresh credentials: %w", err)
		}
	}

	requestID := uuid.NewString()
	idemKey := ""
	if method != http.MethodGet && method != http.MethodHead {
		idemKey = ids.NewIdempotencyKey()
	}

	retried := false
	for {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("X-Request-ID", requestID)
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}
		c.session.Attach(req)

		start := time.Now()
		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
		obs.ObserveRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			drain(resp)
			retried = true
			if err := c.session.Refresh(ctx); err != nil {
				return fmt.Errorf("api: refresh credentials: %w", err)
			}
			obs.ObserveReplay()
			c.log.Debug("replaying request after credential refresh",
				zap.String("method", method), zap.String("path", path))
			continue
		}

		return decodeResponse(resp, out)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
		return nil
	}

	return &Error{Status: resp.StatusCode, Detail: readDetail(resp)}
}

// readDetail extracts the `{"detail": ...}` envelope. Detail may be a plain
// string or a structured validation payload; the latter is kept as raw JSON.
func readDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var envelope struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Detail == nil {
		return http.StatusText(resp.StatusCode)
	}
	if s, ok := envelope.Detail.(string); ok {
		return s
	}
	encoded, err := json.Marshal(envelope.Detail)
	if err != nil {
		return http.StatusText(resp.StatusCode)
	}
	return string(encoded)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
