// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg is sent periodically so hosts can refresh countdown displays.
type TickMsg struct {
	Time time.Time
}

// StateChangedMsg carries a transition received from Subscribe.
type StateChangedMsg StateChange

// SubscriptionClosedMsg is delivered once the subscription channel closes.
type SubscriptionClosedMsg struct{}

// TickCmd returns a command that ticks once per second.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// WaitForChange returns a command that blocks until the next transition.
// Hosts re-issue it after handling each StateChangedMsg.
func WaitForChange(ch <-chan StateChange) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return SubscriptionClosedMsg{}
		}
		return StateChangedMsg(change)
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
