// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

// =============================================================================
// SESSION STATUS BAR
// =============================================================================

// SessionStatusBar is the one-line bottom bar of the console.
// Format (wide): [*] ACTIVE | logs out in 27m 5s | alice@127.0.0.1:8790 | message
type SessionStatusBar struct {
	State     session.State
	Started   bool
	Remaining time.Duration
	User      string
	Server    string
	Message   string
	Width     int
	theme     *styles.Theme
}

// NewSessionStatusBar creates a status bar.
func NewSessionStatusBar(theme *styles.Theme) *SessionStatusBar {
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	return &SessionStatusBar{
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the status bar width.
func (s *SessionStatusBar) SetWidth(width int) {
	s.Width = width
}

// SetSession updates the state and remaining time.
func (s *SessionStatusBar) SetSession(state session.State, remaining time.Duration) {
	s.Started = true
	s.State = state
	s.Remaining = remaining
}

// SetMessage sets the transient message on the right.
func (s *SessionStatusBar) SetMessage(msg string) {
	s.Message = msg
}

// Indicator returns the ASCII indicator for the current state.
func (s *SessionStatusBar) Indicator() string {
	if !s.Started {
		return styles.StatusIndicators.Pending
	}
	switch s.State {
	case session.StateActive:
		return styles.StatusIndicators.Active
	case session.StateWarning:
		return styles.StatusIndicators.Warning
	case session.StateExpired:
		return styles.StatusIndicators.Error
	default:
		return styles.StatusIndicators.Pending
	}
}

func (s *SessionStatusBar) stateStyle() lipgloss.Style {
	if !s.Started {
		return s.theme.StateInactive
	}
	switch s.State {
	case session.StateActive:
		return s.theme.StateActive
	case session.StateWarning:
		return s.theme.StateWarning
	case session.StateExpired:
		return s.theme.StateExpired
	default:
		return s.theme.StateInactive
	}
}

func (s *SessionStatusBar) stateLabel() string {
	if !s.Started {
		return "CONNECTING"
	}
	return s.State.String()
}

func (s *SessionStatusBar) remainingLabel() string {
	if !s.Started {
		return ""
	}
	switch s.State {
	case session.StateActive, session.StateWarning:
		return "logs out in " + session.FormatDuration(s.Remaining)
	case session.StateExpired:
		return "logged out"
	}
	return ""
}

// Plain returns the unstyled bar text, truncated to width.
func (s *SessionStatusBar) Plain() string {
	return Truncate(strings.Join(s.segments(), " | "), s.contentWidth())
}

func (s *SessionStatusBar) segments() []string {
	parts := []string{s.Indicator() + " " + s.stateLabel()}
	if r := s.remainingLabel(); r != "" {
		parts = append(parts, r)
	}
	if s.Width >= 60 && s.User != "" {
		who := s.User
		if s.Server != "" {
			who += "@" + s.Server
		}
		parts = append(parts, who)
	}
	if s.Message != "" {
		parts = append(parts, s.Message)
	}
	return parts
}

func (s *SessionStatusBar) contentWidth() int {
	// Padding(0, 1) on both sides
	w := s.Width - 2
	if w < 1 {
		w = 1
	}
	return w
}

// View renders the status bar.
func (s *SessionStatusBar) View() string {
	parts := s.segments()

	// Truncate on the plain text so width math ignores escape codes, then
	// style only the state segment.
	plain := Truncate(strings.Join(parts, " | "), s.contentWidth())
	head := parts[0]
	var line string
	if strings.HasPrefix(plain, head) {
		line = s.stateStyle().Render(head) + s.theme.StatusMeta.Render(strings.TrimPrefix(plain, head))
	} else {
		line = s.stateStyle().Render(plain)
	}

	return s.theme.StatusBar.Width(s.Width).Render(line)
}

// Truncate shortens text to at most width cells, ending with "...".
func Truncate(text string, width int) string {
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}
