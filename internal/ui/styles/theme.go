// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the console.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// Page body
	Body lipgloss.Style

	// Status bar
	StatusBar     lipgloss.Style
	StateActive   lipgloss.Style
	StateWarning  lipgloss.Style
	StateExpired  lipgloss.Style
	StateInactive lipgloss.Style
	StatusMeta    lipgloss.Style

	// Footer key hints
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// Errors
	ErrorText lipgloss.Style
}

// NewTheme creates a theme for the given mode: "auto", "dark" or "light".
// Forcing a mode overrides lipgloss's background detection process-wide.
func NewTheme(mode string) *Theme {
	colorProfile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.Body = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StateActive = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.StateWarning = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.StateExpired = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.StateInactive = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.StatusMeta = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose)
}

// SetSize updates the layout dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
