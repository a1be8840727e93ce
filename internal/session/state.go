// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// STATE
// =============================================================================

// State is the countdown state of a Controller.
type State int

const (
	// StateActive means the warning callback is pending.
	StateActive State = iota
	// StateWarning means the warning dialog is showing and expiry is pending.
	StateWarning
	// StateExpired means the logout navigation has been issued.
	StateExpired
	// StateStopped means the host was torn down; nothing is pending.
	StateStopped
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether passive activity can no longer revive the session.
func (s State) IsTerminal() bool {
	return s == StateExpired || s == StateStopped
}

// StateChange describes a single transition.
type StateChange struct {
	From State
	To   State
	At   time.Time
	// Deadline is the expected expiry after the transition, zero when
	// nothing is pending.
	Deadline time.Time
}

// =============================================================================
// ACTIVITY
// =============================================================================

// ActivityKind classifies an activity signal.
type ActivityKind int

const (
	// ActivityUser is an exchange the user initiated.
	ActivityUser ActivityKind = iota
	// ActivityBackground is polling, keep-alive and other traffic the
	// user did not ask for.
	ActivityBackground
)

func (k ActivityKind) String() string {
	if k == ActivityBackground {
		return "background"
	}
	return "user"
}

// ActivityPolicy decides which activity signals reset the countdown.
type ActivityPolicy int

const (
	// PolicyAll counts every completed exchange, keep-alive included.
	PolicyAll ActivityPolicy = iota
	// PolicyUserOnly ignores ActivityBackground signals.
	PolicyUserOnly
)

func (p ActivityPolicy) String() string {
	if p == PolicyUserOnly {
		return "user"
	}
	return "all"
}

// Counts reports whether a signal of the given kind resets the countdown.
func (p ActivityPolicy) Counts(kind ActivityKind) bool {
	return p == PolicyAll || kind == ActivityUser
}

// ParseActivityPolicy parses "all" or "user".
func ParseActivityPolicy(s string) (ActivityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return PolicyAll, nil
	case "user", "user-only", "user_only":
		return PolicyUserOnly, nil
	default:
		return PolicyAll, fmt.Errorf("unknown activity policy %q: must be all or user", s)
	}
}
