// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/logging"
)

// ============================================================================
// Request Logging Middleware
// ============================================================================

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// newResponseWriter creates a wrapped response writer.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware returns HTTP middleware that logs all requests.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			reqLogger := logger.With("remote", getRemoteIP(r.RemoteAddr))

			next.ServeHTTP(wrapped, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))

			reqLogger.Info("HTTP_REQUEST",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// ============================================================================
// Session Timeout Middleware
// ============================================================================

type sessionKey struct{}

// SessionFromContext returns the session attached by SessionTimeoutMiddleware.
func SessionFromContext(ctx context.Context) (Record, bool) {
	rec, ok := ctx.Value(sessionKey{}).(Record)
	return rec, ok
}

// SessionTimeoutMiddleware returns HTTP middleware that enforces session
// timeouts. Every request that passes extends the session.
//
// Adds session headers to all responses:
//   - X-Session-Expires-In: Seconds until the session expires
//   - X-Session-State: "active" or "expired"
//
// Returns 401 Unauthorized for missing, unknown and expired sessions.
func SessionTimeoutMiddleware(store *Store, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "no_session", "Login required")
				return
			}

			rec, err := store.Touch(cookie.Value)
			switch {
			case errors.Is(err, ErrSessionExpired):
				logger.Info("SESSION_REJECTED", "session_id", cookie.Value, "reason", "expired")
				w.Header().Set(api.HeaderState, "expired")
				writeError(w, http.StatusUnauthorized, "session_expired", "Session expired - login required")
				return
			case err != nil:
				logger.Info("SESSION_REJECTED", "session_id", cookie.Value, "reason", "unknown")
				writeError(w, http.StatusUnauthorized, "session_unknown", "Invalid session - login required")
				return
			}

			w.Header().Set(api.HeaderExpiresIn, strconv.Itoa(int(rec.Timeout.Seconds())))
			w.Header().Set(api.HeaderState, "active")

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, rec)))
		})
	}
}

// ============================================================================
// Login Rate Limit Middleware
// ============================================================================

// LoginLimiter hands out one token bucket per client IP. Buckets idle for
// longer than the prune age are dropped by Prune.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perSecond logins per IP with the given burst.
func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	return &LoginLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether ip may log in now.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

// Prune drops buckets not used within idle and returns how many it removed.
func (l *LoginLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked IPs.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RunPruner calls Prune every interval until ctx is done.
func (l *LoginLimiter) RunPruner(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(idle)
		}
	}
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
func RateLimitMiddleware(limiter *LoginLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(getRemoteIP(r.RemoteAddr)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Security Headers Middleware
// ============================================================================

// SecurityHeadersMiddleware returns HTTP middleware that adds security headers.
//
// Headers set:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Content-Security-Policy: default-src 'self'
//   - Cache-Control: no-store
//   - Referrer-Policy: strict-origin-when-cross-origin
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			// Session answers must never come from a cache
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Recovery Middleware
// ============================================================================

// RecoveryMiddleware returns HTTP middleware that recovers from panics and
// answers 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("PANIC_RECOVERED",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err,
						"stack", string(debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError, "internal", "Internal Server Error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Middleware Chain Helper
// ============================================================================

// Chain composes multiple middleware functions into a single middleware.
// Middlewares are applied in the order provided.
//
// Example:
//
//	chain := Chain(
//	    RecoveryMiddleware(logger),
//	    LoggingMiddleware(logger),
//	)
//	http.Handle("/api", chain(handler))
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		// Apply middlewares in reverse order so they execute in order
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// getRemoteIP extracts the IP address from a host:port remote address.
func getRemoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
