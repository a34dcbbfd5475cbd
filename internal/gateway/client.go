// Package gateway is the typed HTTP boundary to the boardsync backend.
//
// Every call goes through one Client: JSON request/response, a fixed request
// timeout, and a cookie-based session managed by the backend. Responses use
// the {success, data, message} envelope; a handful of legacy list endpoints
// return raw arrays and both shapes are accepted.
//
// Session failures are handled here so callers never see them:
//   - 401 invokes the injected logout hook and returns ErrUnauthorized.
//   - 440 (stale session) triggers a refresh-then-retry. The refresh is
//     coalesced through singleflight: no matter how many in-flight requests
//     hit 440 at once, exactly one refresh call is issued and every caller
//     retries after it resolves.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/singleflight"
)

// StatusStaleSession is the backend's "login time-out" status: the access
// cookie expired but the refresh cookie is still good.
const StatusStaleSession = 440

// MinServerVersion is the oldest backend this client speaks to.
const MinServerVersion = "1.4.0"

// ErrUnauthorized is returned when the backend rejects the session outright.
// The logout hook has already fired by the time callers see it.
var ErrUnauthorized = errors.New("gateway: session unauthorized")

// errStaleSession is the internal marker that triggers refresh-and-retry.
var errStaleSession = errors.New("gateway: stale session")

// APIError is a non-2xx response that carries a backend message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// envelope is the standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Config holds client configuration.
type Config struct {
	// BaseURL of the backend, e.g. "http://localhost:4000".
	BaseURL string

	// Timeout applies to every request including body read. Default 15s.
	Timeout time.Duration

	// OnLogout fires once per 401 so the caller can tear the session down.
	OnLogout func()

	// Logger for gateway activity. Default: stderr.
	Logger *log.Logger
}

// Client is the remote data gateway. Safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	onLogout func()
	logger   *log.Logger

	refresh singleflight.Group
}

// New creates a Client from config.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	if config.OnLogout == nil {
		config.OnLogout = func() {}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: config.BaseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: config.Timeout,
		},
		onLogout: config.OnLogout,
		logger:   config.Logger,
	}, nil
}

// do issues one request with the stale-session retry wrapped around it.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.once(ctx, method, path, body, out)
	if !errors.Is(err, errStaleSession) {
		return err
	}

	if err := c.refreshSession(ctx); err != nil {
		return err
	}
	return c.once(ctx, method, path, body, out)
}

// once issues exactly one request and decodes the response into out.
func (c *Client) once(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Printf("%s %s -> 401, forcing logout", method, path)
		c.onLogout()
		return ErrUnauthorized

	case resp.StatusCode == StatusStaleSession:
		return errStaleSession

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return decodeBody(resp.Body, out)
}

// decodeBody accepts either the {success,data,message} envelope or a raw
// JSON array.
func decodeBody(body io.Reader, out any) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode array response: %w", err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if !env.Success {
		return &APIError{Status: http.StatusOK, Message: env.Message}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// refreshSession renews the access cookie. Concurrent callers share one
// refresh call and all wait for the same result.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		c.logger.Printf("session stale, refreshing")
		if err := c.once(ctx, http.MethodPost, "/api/auth/refresh", nil, nil); err != nil {
			if errors.Is(err, errStaleSession) {
				// The refresh cookie expired too.
				c.onLogout()
				return nil, ErrUnauthorized
			}
			return nil, fmt.Errorf("session refresh failed: %w", err)
		}
		return nil, nil
	})
	return err
}

// health is the backend's build report.
type health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// CheckServerVersion fetches the backend version and fails when it is older
// than MinServerVersion.
func (c *Client) CheckServerVersion(ctx context.Context) error {
	var h health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if h.Version == "" {
		return fmt.Errorf("server reported no version")
	}
	if semver.Compare("v"+h.Version, "v"+MinServerVersion) < 0 {
		return fmt.Errorf("server version %s is older than minimum supported %s",
			h.Version, MinServerVersion)
	}
	return nil
}
