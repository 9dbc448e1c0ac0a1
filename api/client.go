// Package api implements the HTTP transport for the remote CRM API: a
// request pipeline that attaches bearer tokens, intercepts 401 responses,
// refreshes the token pair once, and replays the failing request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/leadline/go-crm-client/credentials"
	apperrors "github.com/leadline/go-crm-client/internal/errors"
)

// Doer abstracts *http.Client for tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the authenticated transport. All endpoint services share one
// Client so every request goes through the same token pipeline.
type Client struct {
	baseURL      *url.URL
	http         Doer
	creds        credentials.Store
	log          zerolog.Logger
	onAuthExpire func()

	// Concurrent 401s coalesce behind a single refresh call. The remote
	// rotates refresh tokens, so two racing refreshes would invalidate
	// each other's new pair.
	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithLogger sets the structured logger used by the transport.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithOnAuthExpire registers the callback fired when the session becomes
// unrecoverable (refresh token missing or rejected). The view layer uses it
// to navigate to the login screen.
func WithOnAuthExpire(fn func()) Option {
	return func(c *Client) { c.onAuthExpire = fn }
}

// New creates a Client for the API rooted at baseURL. The credentials store
// is required: it is the single accessor shared with the session manager, so
// token rotation done here is immediately visible there.
func New(baseURL string, creds credentials.Store, options ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("[api.New] credentials store is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[api.New] invalid base URL")
	}

	c := &Client{
		baseURL:      u,
		http:         http.DefaultClient,
		creds:        creds,
		log:          zerolog.Nop(),
		onAuthExpire: func() {},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Get issues a GET request. params may be nil.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, params, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do sends one request through the full pipeline. On a 401 from a
// non-bootstrap endpoint it refreshes the token pair and replays the request
// exactly once; a second 401 on the replay is returned as-is. Non-auth
// errors and transport errors pass through unchanged.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	creds, err := c.creds.Get()
	if err != nil {
		return errors.Wrap(err, "[Client.Do] read credentials")
	}

	err = c.send(ctx, method, path, params, body, creds.AccessToken, out)
	if err == nil || !IsStatus(err, http.StatusUnauthorized) || isBootstrapEndpoint(path) {
		return err
	}

	token, refreshErr := c.refresh(ctx)
	if refreshErr != nil {
		if apperrors.Is(refreshErr, apperrors.ErrNoRefreshToken) {
			// Nothing to refresh with: terminal, surface the original 401.
			c.expireSession()
			return err
		}
		return refreshErr
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("replaying request after token refresh")
	return c.send(ctx, method, path, params, body, token, out)
}

// refresh exchanges the stored refresh token for a new pair and persists it.
// Concurrent callers share a single in-flight exchange. On rejection the
// stored credentials are cleared and the auth-expire signal fires exactly
// once for the whole flight.
func (c *Client) refresh(ctx context.Context) (string, error) {
	token, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		creds, err := c.creds.Get()
		if err != nil {
			return nil, errors.Wrap(err, "[Client.refresh] read credentials")
		}
		if creds.RefreshToken == "" {
			return nil, apperrors.ErrNoRefreshToken
		}

		var resp refreshResponse
		err = c.send(ctx, http.MethodPost, "/auth/refresh", nil,
			refreshRequest{RefreshToken: creds.RefreshToken}, "", &resp)
		if err != nil {
			c.log.Warn().Err(err).Msg("token refresh rejected, session expired")
			c.expireSession()
			return nil, apperrors.Wrapf(apperrors.ErrSessionExpired, "refresh rejected (%v)", err)
		}

		if err := c.creds.Set(credentials.Credentials{
			AccessToken:  resp.Token,
			RefreshToken: resp.RefreshToken,
		}); err != nil {
			return nil, errors.Wrap(err, "[Client.refresh] persist rotated tokens")
		}
		c.log.Debug().Msg("access token refreshed")
		return resp.Token, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// expireSession clears persisted credentials and signals the login redirect.
func (c *Client) expireSession() {
	if err := c.creds.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear credentials")
	}
	c.onAuthExpire()
}

// send performs a single HTTP round trip and decodes the response into out.
func (c *Client) send(ctx context.Context, method, path string, params url.Values, body any, token string, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.send] marshal request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "[Client.send] build request")
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" && !isBootstrapEndpoint(path) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure, no response received. Propagated unchanged.
		return errors.Wrapf(err, "[Client.send] %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[Client.send] read response body")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "[Client.send] decode %s %s response", method, path)
		}
	}
	return nil
}

// isBootstrapEndpoint reports whether path is one of the endpoints that must
// stay unauthenticated: login and register have no token yet, and refresh
// must not require the expired access token it is replacing.
func isBootstrapEndpoint(path string) bool {
	switch path {
	case "/auth/login", "/auth/register", "/auth/refresh":
		return true
	}
	return false
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}
