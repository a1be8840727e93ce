// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the autologout client
// and session server.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and file watching.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AUTOLOGOUT_*)
//   - ~/.autologout/config.toml
//   - ~/.autologout/config.json
//   - Built-in defaults
//
// AUTOLOGOUT_CONFIG_DIR replaces ~/.autologout.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	lead := cfg.Session.WarningLead()
//
// Watch a file for changes:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config) {
//	    store.SetTimeout(cfg.Server.SessionTimeout())
//	}, logger)
package config
