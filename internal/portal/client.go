// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package portal is the HTTP client for the session server.
//
// Every request goes through one http.Client whose transport reports
// activity to the session controller and whose cookie jar carries the
// session cookie. Connect logs in and wires the controller.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/keepalive"
)

const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 1 * 1024 * 1024
)

var (
	// ErrUnauthorized means the server no longer knows the session.
	ErrUnauthorized = errors.New("session not authorized")

	// ErrResponseTooLarge means the server sent more than MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// Response is a raw answer returned by Get.
type Response struct {
	Status    int
	Body      string
	ExpiresIn string
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one session server.
type Client struct {
	baseURL string
	http    *http.Client
	relay   *keepalive.Relay
	logger  *slog.Logger
}

// New creates a client for baseURL. Activity is routed through an internal
// Relay until Connect attaches a controller.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := keepalive.Resolve(baseURL, "/"); err != nil {
		return nil, err
	}

	relay := &keepalive.Relay{}
	httpClient, err := keepalive.NewHTTPClient(relay, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		relay:   relay,
		logger:  logger,
	}, nil
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient returns the shared client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Relay returns the activity relay used by the transport.
func (c *Client) Relay() *keepalive.Relay { return c.relay }

// Resolve resolves a path or absolute URL against the server base URL.
func (c *Client) Resolve(ref string) (string, error) {
	return keepalive.Resolve(c.baseURL+"/", ref)
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Login creates a server session for user.
func (c *Client) Login(ctx context.Context, user string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", api.LoginRequest{User: user}, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.TimeoutSecs <= 0 {
		return nil, fmt.Errorf("login: server reported timeout %d", resp.TimeoutSecs)
	}
	return &resp, nil
}

// Page fetches the page body. It counts as user activity.
func (c *Client) Page(ctx context.Context) (*api.PageResponse, error) {
	var resp api.PageResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/page", nil, &resp); err != nil {
		return nil, fmt.Errorf("page: %w", err)
	}
	return &resp, nil
}

// Poll performs the background poll. It is tagged as background activity.
func (c *Client) Poll(ctx context.Context) (*api.PollResponse, error) {
	var resp api.PollResponse
	if err := c.doJSON(keepalive.WithBackground(ctx), http.MethodGet, "/api/poll", nil, &resp); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return &resp, nil
}

// Get fetches an arbitrary path and returns the raw answer. Any status is
// returned without error.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:    resp.StatusCode,
		Body:      string(body),
		ExpiresIn: resp.Header.Get(api.HeaderExpiresIn),
	}, nil
}

// Logout requests logoutURL, ending the server session. Like a browser
// following a link, the answer is read and discarded.
func (c *Client) Logout(ctx context.Context, logoutURL string) error {
	target, err := c.Resolve(logoutURL)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))

	c.logger.Info("LOGOUT_REQUESTED", "url", target, "status", resp.StatusCode)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	target, err := c.Resolve(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	c.logger.Debug("HTTP_EXCHANGE", "method", method, "path", path, "status", resp.StatusCode,
		"background", keepalive.IsBackground(ctx))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// handleErrorResponse converts error answers to Go errors.
func handleErrorResponse(status int, body []byte) error {
	var er api.ErrorResponse
	_ = json.Unmarshal(body, &er)

	if status == http.StatusUnauthorized {
		if er.Error != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, er.Error)
		}
		return ErrUnauthorized
	}
	return &APIError{Status: status, Message: er.Error}
}
