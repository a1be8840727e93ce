// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the slog logger shared by the client hosts and the
// session server.
//
// Full-screen hosts must not write logs to the terminal, so Output accepts a
// file path in addition to "stdout" and "stderr".
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Config selects level, format and destination.
type Config struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string
	// Format is text or json (default: text)
	Format string
	// Output is stdout, stderr, discard or a file path (default: stderr)
	Output string
}

// New builds a logger. The returned close function releases the log file,
// if any, and is always safe to call.
func New(cfg Config) (*slog.Logger, func() error, error) {
	closer := func() error { return nil }

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	case "discard", "none":
		// Equivalent of slog.DiscardHandler (Go 1.24+): disabled at every level.
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})), closer, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0700); err != nil {
			return nil, closer, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, closer, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f.Close
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextKey struct{}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Err returns an "error" attribute, or an empty attribute for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}
