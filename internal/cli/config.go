// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for autologout.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)   Print the effective configuration as TOML
//   path             Print the config file path
//   init             Write a default config file
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/autologout-tui/internal/config"
	"github.com/jeranaias/autologout-tui/internal/ui/components"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

var (
	configSuccessStyle = lipgloss.NewStyle().
				Foreground(styles.Emerald).
				Bold(true)

	configPathStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Italic(true)
)

// ErrConfigExists is returned by "config init" when the file is present.
var ErrConfigExists = errors.New("config file already exists")

// HandleConfig runs the config command.
func HandleConfig(args Args, stdout io.Writer) error {
	return runConfig(args, stdout, IsStdoutTTY())
}

func runConfig(args Args, w io.Writer, color bool) error {
	switch args.Subcommand {
	case "", "show":
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		doc, err := cfg.TOML()
		if err != nil {
			return err
		}
		if color {
			doc = components.HighlightTOML(doc)
		}
		fmt.Fprint(w, doc)
		return nil

	case "path":
		path, err := configPath(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, path)
		return nil

	case "init":
		path, err := configPath(args)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return err
		}
		msg := "Wrote default config to " + path
		if color {
			msg = configSuccessStyle.Render("Wrote default config to ") + configPathStyle.Render(path)
		}
		fmt.Fprintln(w, msg)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q", args.Subcommand)
	}
}

func configPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}
