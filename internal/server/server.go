// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/config"
	"github.com/jeranaias/autologout-tui/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8790"

	// DefaultCookieName names the session cookie.
	DefaultCookieName = "autologout_session"

	// MaxRequestBodySize bounds request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// JanitorInterval is how often expired sessions and idle login
	// limiters are purged.
	JanitorInterval = time.Minute

	// LoginLimiterIdle is how long an IP's login bucket survives unused.
	LoginLimiterIdle = 10 * time.Minute

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr            string
	CookieName      string
	LogoutPath      string
	KeepAlivePath   string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Addr:            cfg.Server.Addr,
		CookieName:      cfg.Server.CookieName,
		LogoutPath:      cfg.Session.LogoutPath,
		KeepAlivePath:   cfg.Session.KeepAlivePath,
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
		Logger:          logger,
	}
}

// Server is the session authority. It hands out sessions, extends them on
// every authenticated request and ends them on logout.
type Server struct {
	opts      Options
	store     *Store
	limiter   *LoginLimiter
	router    *mux.Router
	logger    *slog.Logger
	startTime time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a server backed by store.
func New(store *Store, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.LogoutPath == "" {
		opts.LogoutPath = "/auth/logout"
	}
	if opts.KeepAlivePath == "" {
		opts.KeepAlivePath = "/rest/keepalive"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:      opts,
		store:     store,
		limiter:   NewLoginLimiter(5, 10),
		router:    mux.NewRouter(),
		logger:    opts.Logger,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// LoginLimiter returns the per-IP login limiter.
func (s *Server) LoginLimiter() *LoginLimiter { return s.limiter }

// Store returns the session store.
func (s *Server) Store() *Store { return s.store }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.opts.Addr }

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	login := RateLimitMiddleware(s.limiter)
	s.router.Handle("/auth/login", login(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	s.router.HandleFunc(s.opts.LogoutPath, s.handleLogout).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Everything below requires a live session and extends it.
	authed := s.router.NewRoute().Subrouter()
	authed.Use(SessionTimeoutMiddleware(s.store, s.opts.CookieName, s.logger))
	authed.HandleFunc(s.opts.KeepAlivePath, s.handleKeepAlive).Methods(http.MethodGet)
	authed.HandleFunc("/api/page", s.handlePage).Methods(http.MethodGet)
	authed.HandleFunc("/api/poll", s.handlePoll).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
	)(s.router)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	rec, err := s.store.Create(req.User)
	if err != nil {
		logging.FromContext(r.Context()).Warn("LOGIN_REJECTED", logging.Err(err))
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, api.LoginResponse{
		SessionID:    rec.ID,
		User:         rec.User,
		TimeoutSecs:  int(rec.Timeout / time.Second),
		LogoutURL:    s.opts.LogoutPath,
		KeepAliveURL: s.opts.KeepAlivePath,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.opts.CookieName); err == nil && cookie.Value != "" {
		if s.store.Delete(cookie.Value) {
			logging.FromContext(r.Context()).Debug("LOGOUT_REQUEST", "session_id", cookie.Value)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "You have been logged out.")
}

func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	rec, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, api.PageResponse{
		Title:    "Dashboard",
		Markdown: renderPage(rec, s.store.Now()),
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	rec, _ := SessionFromContext(r.Context())
	now := s.store.Now()
	writeJSON(w, http.StatusOK, api.PollResponse{
		RemainingSecs: int(rec.Remaining(now).Round(time.Second) / time.Second),
		ServerTime:    now.UTC().Format(time.RFC3339),
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Sessions       int    `json:"sessions"`
	SessionTimeout int    `json:"session_timeout_secs"`
	UptimeSecs     int64  `json:"uptime_secs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Version:        Version,
		Sessions:       s.store.Len(),
		SessionTimeout: int(s.store.Timeout() / time.Second),
		UptimeSecs:     int64(time.Since(s.startTime).Seconds()),
	})
}

// renderPage builds the markdown page shown by the console.
func renderPage(rec Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Welcome, %s\n\n", rec.User)
	b.WriteString("Your session ends after a period without activity. ")
	b.WriteString("A warning appears before the automatic logout; press any key to keep working.\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Session | `%s` |\n", rec.ID)
	fmt.Fprintf(&b, "| Started | %s |\n", rec.CreatedAt.Format(time.Kitchen))
	fmt.Fprintf(&b, "| Idle timeout | %s |\n", rec.Timeout)
	fmt.Fprintf(&b, "| Expires | %s |\n\n", rec.ExpiresAt.Format(time.Kitchen))
	b.WriteString("## Keys\n\n")
	b.WriteString("- `r` reload this page\n")
	b.WriteString("- `p` background poll (does not count as activity under the `user` policy)\n")
	b.WriteString("- `q` quit\n\n")
	fmt.Fprintf(&b, "_Rendered at %s._\n", now.Format(time.TimeOnly))
	return b.String()
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. The janitor runs for the lifetime of the call.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.store.RunJanitor(janitorCtx, JanitorInterval)
	go s.limiter.RunPruner(janitorCtx, JanitorInterval, LoginLimiterIdle)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("SERVER_START", "addr", ln.Addr().String(), "version", Version,
			"session_timeout", s.store.Timeout())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("SERVER_SHUTDOWN", "sessions", s.store.Len())
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
