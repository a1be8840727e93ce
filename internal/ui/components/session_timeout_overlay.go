// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

// =============================================================================
// SESSION TIMEOUT OVERLAY
// =============================================================================

// OverlayKeyMap holds the bindings shown in the overlay.
type OverlayKeyMap struct {
	// Continue is informational: any key continues the session.
	Continue key.Binding
	// Quit leaves the console without continuing.
	Quit key.Binding
}

// DefaultOverlayKeyMap returns the default overlay bindings.
func DefaultOverlayKeyMap() OverlayKeyMap {
	return OverlayKeyMap{
		Continue: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("any key", "continue working"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// SessionTimeoutOverlay is the warning dialog of the console. It implements
// session.Dialog through a host adapter; the controller never calls it
// directly because bubbletea models are values.
type SessionTimeoutOverlay struct {
	// State
	visible       bool
	timeRemaining time.Duration
	expired       bool

	// Lead is the full length of the warning window; the bar drains over it.
	lead time.Duration

	bar  progress.Model
	keys OverlayKeyMap

	// Dimensions
	width  int
	height int
}

// NewSessionTimeoutOverlay creates an overlay for the given warning lead.
func NewSessionTimeoutOverlay(lead time.Duration) SessionTimeoutOverlay {
	if lead <= 0 {
		lead = session.DefaultWarningLead
	}
	return SessionTimeoutOverlay{
		lead: lead,
		bar: progress.New(
			progress.WithSolidFill(styles.Amber.Dark),
			progress.WithoutPercentage(),
			progress.WithWidth(40),
		),
		keys: DefaultOverlayKeyMap(),
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetSize sets the overlay dimensions.
func (o *SessionTimeoutOverlay) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// SetWarningLead sets the length of the warning window.
func (o *SessionTimeoutOverlay) SetWarningLead(lead time.Duration) {
	if lead > 0 {
		o.lead = lead
	}
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// Show displays the warning with the given time remaining.
func (o *SessionTimeoutOverlay) Show(remaining time.Duration) {
	o.visible = true
	o.timeRemaining = remaining
	o.expired = false
}

// ShowExpired displays the expired notice.
func (o *SessionTimeoutOverlay) ShowExpired() {
	o.visible = true
	o.timeRemaining = 0
	o.expired = true
}

// Hide hides the overlay.
func (o *SessionTimeoutOverlay) Hide() {
	o.visible = false
	o.expired = false
}

// UpdateTime updates the countdown. Expiry itself is decided by the
// controller, so a zero countdown does not switch to the expired view.
func (o *SessionTimeoutOverlay) UpdateTime(remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	o.timeRemaining = remaining
}

// IsVisible returns whether the overlay is currently visible.
func (o *SessionTimeoutOverlay) IsVisible() bool {
	return o.visible
}

// IsExpired returns whether the expired notice is showing.
func (o *SessionTimeoutOverlay) IsExpired() bool {
	return o.expired
}

// TimeRemaining returns the current time remaining.
func (o *SessionTimeoutOverlay) TimeRemaining() time.Duration {
	return o.timeRemaining
}

// Percent returns the fraction of the warning window still left.
func (o *SessionTimeoutOverlay) Percent() float64 {
	if o.lead <= 0 {
		return 0
	}
	p := float64(o.timeRemaining) / float64(o.lead)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// SessionExtendedMsg signals the user dismissed the warning by pressing a key.
type SessionExtendedMsg struct{}

// Init initializes the overlay (no-op for overlays).
func (o SessionTimeoutOverlay) Init() tea.Cmd {
	return nil
}

// Update handles messages for the overlay.
func (o SessionTimeoutOverlay) Update(msg tea.Msg) (SessionTimeoutOverlay, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height

	case tea.KeyMsg:
		if key.Matches(msg, o.keys.Quit) {
			return o, nil
		}
		// Any other key while the warning is visible continues the session
		if o.visible && !o.expired {
			o.Hide()
			return o, func() tea.Msg {
				return SessionExtendedMsg{}
			}
		}

	case session.TickMsg:
		// Countdown values come from the controller via UpdateTime
	}

	return o, nil
}

// View renders the overlay.
func (o SessionTimeoutOverlay) View() string {
	if !o.visible {
		return ""
	}

	if o.expired {
		return o.viewExpired()
	}
	return o.viewWarning()
}

// =============================================================================
// RENDER METHODS
// =============================================================================

func (o SessionTimeoutOverlay) dimensions() (width, height, maxWidth int) {
	width = o.width
	if width == 0 {
		width = 60
	}
	height = o.height
	if height == 0 {
		height = 24
	}

	maxWidth = width - 8
	if maxWidth < 40 {
		maxWidth = 40
	}
	if maxWidth > 60 {
		maxWidth = 60
	}
	return width, height, maxWidth
}

// viewWarning renders the warning before expiry.
func (o SessionTimeoutOverlay) viewWarning() string {
	width, height, maxWidth := o.dimensions()

	var parts []string

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true)
	parts = append(parts, titleStyle.Render(styles.StatusIndicators.Warning+" Automatic Logout"))
	parts = append(parts, "")

	timeStyle := lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	parts = append(parts, msgStyle.Render(
		"You will be logged out in "+timeStyle.Render(formatTimeRemaining(o.timeRemaining))))
	parts = append(parts, "")

	bar := o.bar
	bar.Width = maxWidth - 10
	parts = append(parts, bar.ViewAs(o.Percent()))
	parts = append(parts, "")

	hintStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Italic(true).
		Align(lipgloss.Center)
	help := o.keys.Continue.Help()
	parts = append(parts, hintStyle.Render(fmt.Sprintf("Press %s to %s", help.Key, help.Desc)))

	content := lipgloss.JoinVertical(lipgloss.Center, parts...)

	boxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.Amber).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center)

	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		boxStyle.Render(content),
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim),
	)
}

// viewExpired renders the expired session notice.
func (o SessionTimeoutOverlay) viewExpired() string {
	width, height, maxWidth := o.dimensions()

	var parts []string

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.Rose).
		Bold(true)
	parts = append(parts, titleStyle.Render(styles.StatusIndicators.Error+" Session Expired"))
	parts = append(parts, "")

	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	parts = append(parts, msgStyle.Render("Your session has timed out due to inactivity."))
	parts = append(parts, "")

	exitStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Align(lipgloss.Center)
	parts = append(parts, exitStyle.Render("You have been logged out."))

	content := lipgloss.JoinVertical(lipgloss.Center, parts...)

	boxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.Rose).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center)

	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		boxStyle.Render(content),
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// formatTimeRemaining formats a duration as M:SS for display.
func formatTimeRemaining(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	totalSecs := int(d.Seconds())
	mins := totalSecs / 60
	secs := totalSecs % 60

	return fmt.Sprintf("%d:%02d", mins, secs)
}
