// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of writes from editors.
const DefaultWatchDebounce = 200 * time.Millisecond

// =============================================================================
// FILE WATCHER
// =============================================================================

// Watch reloads the config file at path whenever it changes and passes each
// valid result to onChange. Invalid files are logged and skipped so the last
// good config stays in effect. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so that editors which
// replace the file on save are still seen.
func Watch(ctx context.Context, path string, onChange func(*Config), logger *slog.Logger) error {
	return watch(ctx, path, DefaultWatchDebounce, onChange, logger)
}

func watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		reload = func() {
			cfg, err := LoadFromPath(abs)
			if err != nil {
				logger.Warn("CONFIG_RELOAD_FAILED", "path", abs, "error", err)
				return
			}
			logger.Info("CONFIG_RELOADED", "path", abs)
			onChange(cfg)
		}
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: restart the timer on every event
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("CONFIG_WATCH_ERROR", "error", err)
		}
	}
}
