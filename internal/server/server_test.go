// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/config"
)

// fakeNow is a settable time source for the store.
type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

func newTestStore(timeout time.Duration) (*Store, *fakeNow) {
	clock := newFakeNow()
	return NewStore(timeout, WithNow(clock.Now), WithStoreLogger(discard())), clock
}

func newTestServer(store *Store) *Server {
	return New(store, Options{Logger: discard()})
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStore_CreateAndGet(t *testing.T) {
	store, clock := newTestStore(30 * time.Minute)

	rec, err := store.Create("  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, 30*time.Minute, rec.Timeout)
	assert.Equal(t, clock.Now().Add(30*time.Minute), rec.ExpiresAt)

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, 1, store.Len())
}

func TestStore_CreateRejectsBadUsers(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	for _, user := range []string{"", "   ", "a\nb", strings.Repeat("x", MaxUserLength+1)} {
		_, err := store.Create(user)
		assert.ErrorIs(t, err, ErrInvalidUser, "user %q", user)
	}
	assert.Equal(t, 0, store.Len())
}

func TestStore_TouchSlidesExpiry(t *testing.T) {
	store, clock := newTestStore(10 * time.Minute)
	rec, err := store.Create("alice")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	touched, err := store.Touch(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), touched.LastActivity)
	assert.Equal(t, clock.Now().Add(10*time.Minute), touched.ExpiresAt)

	// Past the original expiry, still alive
	clock.Advance(9 * time.Minute)
	_, err = store.Get(rec.ID)
	assert.NoError(t, err)
}

func TestStore_TouchExpiredRemoves(t *testing.T) {
	store, clock := newTestStore(10 * time.Minute)
	rec, err := store.Create("alice")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	_, err = store.Get(rec.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = store.Touch(rec.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = store.Touch(rec.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired session should be removed on touch")
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	rec, err := store.Create("alice")
	require.NoError(t, err)

	assert.True(t, store.Delete(rec.ID))
	assert.False(t, store.Delete(rec.ID))

	_, err = store.Get(rec.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_Purge(t *testing.T) {
	store, clock := newTestStore(time.Minute)
	_, err := store.Create("old")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	fresh, err := store.Create("fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Purge())
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestStore_SetTimeoutAppliesToNewSessions(t *testing.T) {
	store, _ := newTestStore(10 * time.Minute)
	before, err := store.Create("before")
	require.NoError(t, err)

	store.SetTimeout(5 * time.Minute)
	store.SetTimeout(0)
	assert.Equal(t, 5*time.Minute, store.Timeout())

	after, err := store.Create("after")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, before.Timeout)
	assert.Equal(t, 5*time.Minute, after.Timeout)

	touched, err := store.Touch(before.ID)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, touched.Timeout)
}

func TestStore_DefaultTimeout(t *testing.T) {
	store := NewStore(0, WithStoreLogger(discard()))
	assert.Equal(t, DefaultSessionTimeout, store.Timeout())
}

func TestStore_RunJanitorStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	rec, err := store.Create("alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = store.Touch(rec.ID)
				_, _ = store.Get(rec.ID)
				store.Purge()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Len())
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func login(t *testing.T, h http.Handler, user string) (*http.Cookie, api.LoginResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"user":"`+user+`"}`))
	req.RemoteAddr = "192.0.2.1:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], resp
}

func get(h http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLogin(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)
	h := newTestServer(store).Handler()

	cookie, resp := login(t, h, "alice")

	assert.Equal(t, DefaultCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, resp.SessionID, cookie.Value)
	assert.Equal(t, "alice", resp.User)
	assert.Equal(t, 1800, resp.TimeoutSecs)
	assert.Equal(t, "/auth/logout", resp.LogoutURL)
	assert.Equal(t, "/rest/keepalive", resp.KeepAliveURL)
}

func TestLogin_BadRequests(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", "{", "bad_request"},
		{"empty user", `{"user":""}`, "invalid_user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var er api.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &er))
			assert.Equal(t, tt.code, er.Code)
		})
	}
}

func TestLogin_MethodNotAllowed(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()

	rr := get(h, "/auth/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()

	limited := false
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"user":"alice"}`))
		req.RemoteAddr = "198.51.100.7:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", rr.Header().Get("Retry-After"))
			break
		}
	}
	assert.True(t, limited, "burst of logins should be rate limited")
}

func TestLoginLimiter_PruneDropsIdleIPs(t *testing.T) {
	clock := newFakeNow()
	l := NewLoginLimiter(5, 10)
	l.now = clock.Now

	for i := 0; i < 50; i++ {
		l.Allow(fmt.Sprintf("203.0.113.%d", i))
	}
	clock.Advance(5 * time.Minute)
	l.Allow("198.51.100.7")
	require.Equal(t, 51, l.Len())

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 50, l.Prune(LoginLimiterIdle))
	assert.Equal(t, 1, l.Len())

	// A pruned IP starts over with a full burst
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("203.0.113.1"))
	}
}

func TestLoginLimiter_RunPrunerStopsOnCancel(t *testing.T) {
	clock := newFakeNow()
	l := NewLoginLimiter(5, 10)
	l.now = clock.Now
	l.Allow("203.0.113.9")
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunPruner(ctx, 5*time.Millisecond, LoginLimiterIdle)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestServer_LoginLimiterBacksLoginRoute(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"user":"alice"}`))
	req.RemoteAddr = "198.51.100.8:5555"
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1, srv.LoginLimiter().Len())
}

func TestKeepAlive_ExtendsSession(t *testing.T) {
	store, clock := newTestStore(10 * time.Minute)
	h := newTestServer(store).Handler()
	cookie, _ := login(t, h, "alice")

	clock.Advance(8 * time.Minute)
	rr := get(h, "/rest/keepalive", cookie)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "600", rr.Header().Get(api.HeaderExpiresIn))
	assert.Equal(t, "active", rr.Header().Get(api.HeaderState))

	// Eight more minutes is past the original expiry
	clock.Advance(8 * time.Minute)
	rr = get(h, "/rest/keepalive", cookie)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestProtectedRoutes_RequireSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()

	for _, path := range []string{"/rest/keepalive", "/api/page", "/api/poll"} {
		rr := get(h, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)

		rr = get(h, path, &http.Cookie{Name: DefaultCookieName, Value: "unknown"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestExpiredSession_Unauthorized(t *testing.T) {
	store, clock := newTestStore(10 * time.Minute)
	h := newTestServer(store).Handler()
	cookie, _ := login(t, h, "alice")

	clock.Advance(10 * time.Minute)
	rr := get(h, "/api/page", cookie)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "expired", rr.Header().Get(api.HeaderState))

	var er api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &er))
	assert.Equal(t, "session_expired", er.Code)
}

func TestLogout(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()
	cookie, _ := login(t, h, "alice")

	rr := get(h, "/auth/logout", cookie)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "logged out")

	cleared := rr.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
	assert.Equal(t, 0, store.Len())

	rr = get(h, "/rest/keepalive", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout_WithoutSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	h := newTestServer(store).Handler()

	rr := get(h, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPage(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)
	h := newTestServer(store).Handler()
	cookie, resp := login(t, h, "alice")

	rr := get(h, "/api/page", cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var page api.PageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, "Dashboard", page.Title)
	assert.Contains(t, page.Markdown, "# Welcome, alice")
	assert.Contains(t, page.Markdown, resp.SessionID)
	assert.Contains(t, page.Markdown, "30m0s")
}

func TestPoll(t *testing.T) {
	store := NewStore(5*time.Minute, WithStoreLogger(discard()))
	h := newTestServer(store).Handler()
	cookie, _ := login(t, h, "alice")

	rr := get(h, "/api/poll", cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var poll api.PollResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &poll))
	assert.InDelta(t, 300, poll.RemainingSecs, 1)
	_, err := time.Parse(time.RFC3339, poll.ServerTime)
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)
	h := newTestServer(store).Handler()
	login(t, h, "alice")

	rr := get(h, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
	assert.Equal(t, 1, health.Sessions)
	assert.Equal(t, 1800, health.SessionTimeout)
}

func TestSecurityHeaders(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	rr := get(newTestServer(store).Handler(), "/health", nil)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestCustomPaths(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	srv := New(store, Options{
		CookieName:    "sid",
		LogoutPath:    "/bye",
		KeepAlivePath: "/ping",
		Logger:        discard(),
	})
	h := srv.Handler()

	cookie, resp := login(t, h, "alice")
	assert.Equal(t, "sid", cookie.Name)
	assert.Equal(t, "/bye", resp.LogoutURL)
	assert.Equal(t, "/ping", resp.KeepAliveURL)

	assert.Equal(t, http.StatusNoContent, get(h, "/ping", cookie).Code)
	assert.Equal(t, http.StatusOK, get(h, "/bye", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/ping", cookie).Code)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:9999"
	cfg.Server.CookieName = "sid"

	opts := OptionsFromConfig(cfg, discard())
	assert.Equal(t, "127.0.0.1:9999", opts.Addr)
	assert.Equal(t, "sid", opts.CookieName)
	assert.Equal(t, cfg.Session.LogoutPath, opts.LogoutPath)
	assert.Equal(t, cfg.Server.ShutdownTimeout(), opts.ShutdownTimeout)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	Chain(mw("first"), mw("second"))(final).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))
	assert.Contains(t, buf.String(), "HTTP_REQUEST")
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/tea")
}

func TestGetRemoteIP(t *testing.T) {
	assert.Equal(t, "192.0.2.1", getRemoteIP("192.0.2.1:1234"))
	assert.Equal(t, "::1", getRemoteIP("[::1]:80"))
	assert.Equal(t, "garbage", getRemoteIP("garbage"))
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	srv := newTestServer(store)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_BeforeServe(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	assert.NoError(t, newTestServer(store).Shutdown(context.Background()))
}
