// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Config, logging and connection setup shared by all commands.

package cli

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/user"
	"strings"

	"github.com/jeranaias/autologout-tui/internal/config"
	"github.com/jeranaias/autologout-tui/internal/logging"
	"github.com/jeranaias/autologout-tui/internal/portal"
)

// loadConfig loads the config file and applies command-line overrides. It
// returns the path that was read, or the default TOML path when no file
// exists.
func loadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)

	if args.ConfigPath != "" {
		path = args.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path, _ = config.ConfigPathTOML()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if args.ServerURL != "" {
		cfg.Client.ServerURL = args.ServerURL
	}
	if args.User != "" {
		cfg.Client.User = args.User
	}
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}

	config.SetGlobal(cfg)
	return cfg, path, nil
}

// newLogger builds the logger for a command. Terminal hosts log to a file
// so the screen stays clean.
func newLogger(cfg *config.Config, terminalHost bool) (*slog.Logger, func() error, error) {
	output := cfg.Log.Path
	if output == "" && terminalHost {
		p, err := config.DefaultLogPath()
		if err != nil {
			output = "discard"
		} else {
			output = p
		}
	}

	logger, closeFn, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: output,
	})
	if err != nil {
		return nil, closeFn, err
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// resolveUser returns the configured user, then $USER, then the OS account.
func resolveUser(cfg *config.Config) string {
	if cfg.Client.User != "" {
		return cfg.Client.User
	}
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "user"
}

// connectOptions maps the config onto portal.ConnectOptions. Hosts fill in
// Dialog and Navigator.
func connectOptions(cfg *config.Config, logger *slog.Logger) portal.ConnectOptions {
	return portal.ConnectOptions{
		User:                 resolveUser(cfg),
		WarningLead:          cfg.Session.WarningLead(),
		Policy:               cfg.Session.ActivityPolicy(),
		LogoutPath:           cfg.Session.LogoutPath,
		KeepAlivePath:        cfg.Session.KeepAlivePath,
		KeepAliveMinInterval: cfg.Session.KeepAliveMinInterval(),
		KeepAliveTimeout:     cfg.Client.RequestTimeout(),
		Logger:               logger,
	}
}

// serverLabel returns host:port of the server URL for display.
func serverLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
