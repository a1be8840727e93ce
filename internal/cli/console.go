// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// console.go - The full-screen console command.

package cli

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/autologout-tui/internal/portal"
	"github.com/jeranaias/autologout-tui/internal/ui/page"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

// HandleConsole runs the full-screen console. Without a terminal on stdin
// and stdout it falls back to the shell.
func HandleConsole(args Args, stdout io.Writer) error {
	if !CanRunConsole() {
		return HandleShell(args, stdout)
	}

	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := portal.New(cfg.Client.ServerURL, cfg.Client.RequestTimeout(), logger)
	if err != nil {
		return err
	}

	m := page.New(page.Options{
		Client:         client,
		Connect:        connectOptions(cfg, logger),
		ServerLabel:    serverLabel(cfg.Client.ServerURL),
		RequestTimeout: cfg.Client.RequestTimeout(),
		PollInterval:   cfg.Client.PollInterval(),
		ShowStatusBar:  cfg.UI.ShowStatusBar,
		Theme:          styles.NewTheme(cfg.UI.Theme),
		Logger:         logger,
	})

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}

	fm, ok := final.(page.Model)
	if !ok {
		return nil
	}
	if sess := fm.Session(); sess != nil {
		sess.Close()
	}
	if fm.Err() != nil {
		return fm.Err()
	}
	if fm.LoggedOut() {
		fmt.Fprintln(stdout, "Session expired: you have been logged out.")
	}
	return nil
}
