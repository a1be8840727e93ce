// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// autologout.
//
// # Commands
//
//   - console: full-screen client (default; falls back to shell without a TTY)
//   - shell: line-mode client with history
//   - serve: session authority server
//   - config: show, path, init
//   - version, help
//
// # Usage
//
//	cmd, args, err := cli.Parse()
//	switch cmd {
//	case cli.CmdConsole:
//	    err = cli.HandleConsole(args, os.Stdout)
//	case cli.CmdServe:
//	    err = cli.HandleServe(args, os.Stdout)
//	}
//
// Client hosts log to a file under the config directory so the terminal
// stays clean; the server logs to stderr.
package cli
