// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for autologout.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdConsole Command = iota
	CmdShell
	CmdServe
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdConsole:
		return "console"
	case CmdShell:
		return "shell"
	case CmdServe:
		return "serve"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	ServerURL  string
	User       string
	Verbose    bool

	// serve
	Addr string

	// config
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `autologout - idle session countdown for a session server

Usage:
  autologout [flags]                 Start the console (default)
  autologout console                 Full-screen client
  autologout shell                   Line-mode client
  autologout serve [--addr ADDR]     Run the session server
  autologout config [show|path|init] Configuration
  autologout version                 Show version

Global Flags:
  --config PATH   Config file (default: ~/.autologout/config.toml)
  --server URL    Session server base URL
  --user NAME     User name sent on login
  -v, --verbose   Debug logging

Shell Commands:
  get <path>   Request a server path (counts as activity)
  page         Show the server page
  poll         Background poll
  status       Show the countdown
  ack          Acknowledge the warning
  logout       Log out now
  quit         Leave without logging out

Environment:
  AUTOLOGOUT_CONFIG_DIR, AUTOLOGOUT_SERVER_URL, AUTOLOGOUT_USER,
  AUTOLOGOUT_ADDR, AUTOLOGOUT_SESSION_TIMEOUT, AUTOLOGOUT_WARNING_LEAD,
  AUTOLOGOUT_ACTIVITY_POLICY, AUTOLOGOUT_LOG_LEVEL, AUTOLOGOUT_LOG_PATH

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "autologout version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// Parse parses os.Args.
func Parse() (Command, Args, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses command-line arguments and returns the command and args.
func ParseArgs(argv []string) (Command, Args, error) {
	remaining, parsedArgs, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, parsedArgs, err
	}

	// If no remaining args, default to the console
	if len(remaining) == 0 {
		return CmdConsole, parsedArgs, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "console", "tui":
		return CmdConsole, parsedArgs, nil

	case "shell", "sh":
		return CmdShell, parsedArgs, nil

	case "serve", "server":
		if err := parseServeArgs(&parsedArgs, remaining); err != nil {
			return CmdServe, parsedArgs, err
		}
		return CmdServe, parsedArgs, nil

	case "config":
		if err := parseConfigArgs(&parsedArgs, remaining); err != nil {
			return CmdConfig, parsedArgs, err
		}
		return CmdConfig, parsedArgs, nil

	case "version", "--version":
		return CmdVersion, parsedArgs, nil

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs, nil

	default:
		return CmdHelp, parsedArgs, fmt.Errorf("unknown command %q (see 'autologout help')", cmd)
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args, error) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-v", "--verbose":
			parsedArgs.Verbose = true
			continue
		case "--config", "--server", "--user":
		default:
			remaining = append(remaining, arg)
			continue
		}

		if !hasValue {
			if i+1 >= len(args) {
				return nil, parsedArgs, fmt.Errorf("flag %s requires a value", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--config":
			parsedArgs.ConfigPath = value
		case "--server":
			parsedArgs.ServerURL = value
		case "--user":
			parsedArgs.User = value
		}
	}

	return remaining, parsedArgs, nil
}

// parseServeArgs parses serve command specific arguments.
func parseServeArgs(args *Args, remaining []string) error {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "--addr":
			if i+1 >= len(remaining) {
				return fmt.Errorf("flag --addr requires a value")
			}
			i++
			args.Addr = remaining[i]
		case strings.HasPrefix(arg, "--addr="):
			args.Addr = strings.TrimPrefix(arg, "--addr=")
		default:
			return fmt.Errorf("unexpected argument to serve: %q", arg)
		}
	}
	return nil
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) error {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return nil
	}
	if len(remaining) > 1 {
		return fmt.Errorf("config takes one subcommand, got %d arguments", len(remaining))
	}
	sub := strings.ToLower(remaining[0])
	switch sub {
	case "show", "path", "init":
		args.Subcommand = sub
		return nil
	default:
		return fmt.Errorf("unknown config subcommand %q (show, path, init)", sub)
	}
}

// HandleVersion handles the "version" command.
func HandleVersion(w io.Writer) {
	PrintVersion(w)
}

// HandleHelp handles the "help" command.
func HandleHelp(w io.Writer) {
	PrintUsage(w)
}
