// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/autologout-tui/internal/server"
	"github.com/jeranaias/autologout-tui/internal/session"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// serverClock drives the server store in tests.
type serverClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *serverClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *serverClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store      *server.Store
	clock      *serverClock
	srv        *httptest.Server
	keepAlives atomic.Int32
	logouts    atomic.Int32
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{clock: &serverClock{now: epoch}}
	h.store = server.NewStore(timeout, server.WithNow(h.clock.Now), server.WithStoreLogger(discard()))
	handler := server.New(h.store, server.Options{Logger: discard()}).Handler()

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/keepalive":
			h.keepAlives.Add(1)
		case "/auth/logout":
			h.logouts.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func newClient(t *testing.T, h *harness) *Client {
	t.Helper()
	c, err := New(h.srv.URL, time.Second, discard())
	require.NoError(t, err)
	return c
}

// navigations records logout URLs handed to the navigator.
type navigations struct {
	mu   sync.Mutex
	urls []string
}

func (n *navigations) Navigate(url string) {
	n.mu.Lock()
	n.urls = append(n.urls, url)
	n.mu.Unlock()
}

func (n *navigations) URLs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

func connect(t *testing.T, c *Client, clock session.Clock, nav session.Navigator, policy session.ActivityPolicy) *Session {
	t.Helper()
	sess, err := c.Connect(context.Background(), ConnectOptions{
		User:        "alice",
		WarningLead: 3 * time.Minute,
		Policy:      policy,
		Navigator:   nav,
		Clock:       clock,
		Logger:      discard(),
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New("://missing-scheme", time.Second, nil)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)

	resp, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User)
	assert.Equal(t, 1800, resp.TimeoutSecs)
	assert.Equal(t, "/auth/logout", resp.LogoutURL)

	// The cookie jar carries the session
	page, err := c.Page(context.Background())
	require.NoError(t, err)
	assert.Contains(t, page.Markdown, "Welcome, alice")
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := newClient(t, h)

	_, err := c.Login(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "HTTP 400")
}

func TestPage_WithoutLoginIsUnauthorized(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := newClient(t, h)

	_, err := c.Page(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPoll(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	c := newClient(t, h)
	_, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)

	poll, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 600, poll.RemainingSecs)
}

func TestGet_ReturnsRawAnswer(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	c := newClient(t, h)
	_, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/rest/keepalive")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, "600", resp.ExpiresIn)

	resp, err = c.Get(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestExpiredServerSession(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	c := newClient(t, h)
	_, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	_, err = c.Page(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
}

func TestLogout_EndsServerSession(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	c := newClient(t, h)
	login, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 1, h.store.Len())

	require.NoError(t, c.Logout(context.Background(), login.LogoutURL))
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, int32(1), h.logouts.Load())

	_, err = c.Page(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolve(t *testing.T) {
	c, err := New("http://127.0.0.1:8790/", time.Second, discard())
	require.NoError(t, err)

	got, err := c.Resolve("/auth/logout")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8790/auth/logout", got)

	got, err = c.Resolve("https://sso.example.com/logout")
	require.NoError(t, err)
	assert.Equal(t, "https://sso.example.com/logout", got)
}

// =============================================================================
// CONNECT TESTS
// =============================================================================

func TestConnect_BuildsControllerFromServerTimeout(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)
	nav := &navigations{}

	sess := connect(t, c, clock, nav, session.PolicyAll)

	ctrl := sess.Controller
	assert.Equal(t, 30*time.Minute, ctrl.Timeout())
	assert.Equal(t, 3*time.Minute, ctrl.WarningLead())
	assert.Equal(t, h.srv.URL+"/auth/logout", ctrl.LogoutURL())
	assert.Equal(t, h.srv.URL+"/rest/keepalive", sess.KeepAlive.URL())
	assert.Equal(t, session.StateActive, ctrl.State())
	assert.Equal(t, 30*time.Minute, ctrl.Remaining())
}

func TestConnect_ShortensLead(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := newClient(t, h)

	sess := connect(t, c, session.NewManualClock(epoch), &navigations{}, session.PolicyAll)
	assert.Equal(t, 30*time.Second, sess.Controller.WarningLead())
}

func TestConnect_ExchangesResetCountdown(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)

	sess := connect(t, c, clock, &navigations{}, session.PolicyAll)

	clock.Advance(20 * time.Minute)
	assert.Equal(t, 10*time.Minute, sess.Controller.Remaining())

	_, err := c.Page(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, sess.Controller.Remaining())

	clock.Advance(5 * time.Minute)
	_, err = c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, sess.Controller.Remaining(), "poll counts under the all policy")
}

func TestConnect_UserOnlyPolicyIgnoresPoll(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)

	sess := connect(t, c, clock, &navigations{}, session.PolicyUserOnly)

	clock.Advance(20 * time.Minute)
	_, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, sess.Controller.Remaining())

	_, err = c.Page(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, sess.Controller.Remaining())
}

func TestConnect_AcknowledgeSendsKeepAlive(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)

	sess := connect(t, c, clock, &navigations{}, session.PolicyAll)

	clock.Advance(27 * time.Minute)
	require.Equal(t, session.StateWarning, sess.Controller.State())

	sess.Controller.Acknowledge()
	assert.Equal(t, session.StateActive, sess.Controller.State())

	require.Eventually(t, func() bool {
		return h.keepAlives.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnect_EveryAcknowledgeReachesServer(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)

	sess, err := c.Connect(context.Background(), ConnectOptions{
		User:                 "alice",
		WarningLead:          2 * time.Second,
		KeepAliveMinInterval: 10 * time.Second,
		Navigator:            &navigations{},
		Clock:                clock,
		Logger:               discard(),
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	// Both acknowledges fall inside the min interval
	for i := 1; i <= 2; i++ {
		clock.Advance(3 * time.Second)
		require.Equal(t, session.StateWarning, sess.Controller.State(), "cycle %d", i)

		sess.Controller.Acknowledge()
		sess.KeepAlive.Wait()

		assert.Equal(t, session.StateActive, sess.Controller.State())
		assert.Equal(t, int32(i), h.keepAlives.Load(), "cycle %d", i)
	}
}

func TestSession_CloseWaitsForAcknowledgePing(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)

	sess := connect(t, c, clock, &navigations{}, session.PolicyAll)

	clock.Advance(27 * time.Minute)
	sess.Controller.Acknowledge()
	sess.Close()

	assert.Equal(t, int32(1), h.keepAlives.Load())
}

func TestConnect_ExpiryNavigatesToLogout(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	c := newClient(t, h)
	clock := session.NewManualClock(epoch)
	nav := &navigations{}

	sess := connect(t, c, clock, nav, session.PolicyAll)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, session.StateExpired, sess.Controller.State())
	assert.Equal(t, []string{h.srv.URL + "/auth/logout"}, nav.URLs())

	// Exchanges after expiry do not revive the countdown
	_, _ = c.Get(context.Background(), "/health")
	assert.Equal(t, session.StateExpired, sess.Controller.State())
}

func TestConnect_LoginFailure(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := newClient(t, h)

	_, err := c.Connect(context.Background(), ConnectOptions{
		User:      "",
		Navigator: &navigations{},
		Logger:    discard(),
	})
	assert.Error(t, err)
}

func TestConnect_RequiresNavigator(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := newClient(t, h)

	_, err := c.Connect(context.Background(), ConnectOptions{User: "alice", Logger: discard()})
	assert.ErrorIs(t, err, session.ErrNoNavigator)
}

func TestEffectiveLead(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		lead    time.Duration
		want    time.Duration
	}{
		{30 * time.Minute, 0, session.DefaultWarningLead},
		{30 * time.Minute, time.Minute, time.Minute},
		{time.Minute, 3 * time.Minute, 30 * time.Second},
		{3 * time.Minute, 3 * time.Minute, 90 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveLead(tt.timeout, tt.lead), "timeout=%v lead=%v", tt.timeout, tt.lead)
	}
}
