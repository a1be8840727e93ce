// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The session server command.

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/autologout-tui/internal/config"
	"github.com/jeranaias/autologout-tui/internal/server"
)

// HandleServe runs the session server until SIGINT or SIGTERM.
func HandleServe(args Args, stdout io.Writer) error {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	store := server.NewStore(cfg.Server.SessionTimeout(), server.WithStoreLogger(logger))
	srv := server.New(store, server.OptionsFromConfig(cfg, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchServerConfig(ctx, path, store, logger)

	fmt.Fprintf(stdout, "autologout server listening on http://%s (session timeout %s)\n",
		cfg.Server.Addr, cfg.Server.SessionTimeout())
	return srv.ListenAndServe(ctx)
}

// watchServerConfig applies session timeout changes from the config file.
// The listen address and cookie name need a restart.
func watchServerConfig(ctx context.Context, path string, store *server.Store, logger *slog.Logger) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		if err := cfg.ValidateServer(); err != nil {
			logger.Warn("CONFIG_RELOAD_REJECTED", "path", path, "error", err)
			return
		}
		config.SetGlobal(cfg)
		store.SetTimeout(cfg.Server.SessionTimeout())
	}, logger)
	if err != nil {
		logger.Info("CONFIG_WATCH_DISABLED", "path", path, "error", err)
	}
}
