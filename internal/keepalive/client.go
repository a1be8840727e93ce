// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package keepalive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a fire-and-forget ping.
const DefaultTimeout = 10 * time.Second

// ErrThrottled is returned by PingContext when the previous refresh was
// too recent.
var ErrThrottled = errors.New("keep-alive throttled")

// StatusError reports a keep-alive answered with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keep-alive returned %d %s", e.Code, http.StatusText(e.Code))
}

// Option configures a Client.
type Option func(*Client)

// WithMinInterval spaces PingContext refreshes at least d apart. Ping is
// never throttled. Zero disables throttling.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithTimeout bounds each fire-and-forget ping.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// =============================================================================
// CLIENT
// =============================================================================

// Client extends the server session with a GET to the keep-alive URL.
// It satisfies session.KeepAliver.
type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New returns a Client for keepAliveURL using httpClient, which should be
// the host's shared client so the session cookie is sent.
func New(keepAliveURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		url:     keepAliveURL,
		http:    httpClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the keep-alive endpoint.
func (c *Client) URL() string { return c.url }

// Ping sends the keep-alive in the background and returns immediately.
// Failures are logged and otherwise ignored. Every call reaches the server;
// the min interval does not apply.
func (c *Client) Ping() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.do(ctx); err != nil {
			c.logger.Warn("KEEPALIVE_FAILED", "url", c.url, "error", err)
			return
		}
		c.logger.Debug("KEEPALIVE_SENT", "url", c.url)
	}()
}

// PingContext sends the keep-alive and waits for the answer. Calls closer
// together than the min interval return ErrThrottled without a request.
func (c *Client) PingContext(ctx context.Context) error {
	if !c.allow() {
		c.logger.Debug("KEEPALIVE_THROTTLED", "url", c.url)
		return ErrThrottled
	}
	return c.do(ctx)
}

// Wait blocks until in-flight background pings finish.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) do(ctx context.Context) error {
	req, err := http.NewRequestWithContext(WithBackground(ctx), http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build keep-alive request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("keep-alive request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// =============================================================================
// URL HELPERS
// =============================================================================

// Resolve joins a server base URL and a path or absolute URL.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
