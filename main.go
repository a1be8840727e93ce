// autologout - idle session countdown for a terminal portal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/autologout-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args, err := cli.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	switch cmd {
	case cli.CmdConsole:
		err = cli.HandleConsole(args, os.Stdout)
	case cli.CmdShell:
		err = cli.HandleShell(args, os.Stdout)
	case cli.CmdServe:
		err = cli.HandleServe(args, os.Stdout)
	case cli.CmdConfig:
		err = cli.HandleConfig(args, os.Stdout)
	case cli.CmdVersion:
		cli.HandleVersion(os.Stdout)
	default:
		cli.HandleHelp(os.Stdout)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
