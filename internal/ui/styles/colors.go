// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the autologout console.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - Primary accent, header title
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - Brand color, links, key hints
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Active session
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

// Rose - Expired session, errors
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warning state, countdown
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

// Surface - Main background
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// SurfaceDim - Headers, status bar, overlay backdrop
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// =============================================================================
// TEXT COLORS
// =============================================================================

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels, less prominent text
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// TextInverse - Text on colored backgrounds
var TextInverse = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// =============================================================================
// ACCESSIBILITY: Shapes alongside colors
// =============================================================================

// StatusIndicatorSet contains text indicators for status states.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
	Active  string
}

// StatusIndicators are ASCII-only so they survive any terminal font.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[ ]",
	Active:  "[*]",
}

// High contrast pairs used by the Render helpers.
var (
	SuccessHighContrast = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#22C55E"}
	ErrorHighContrast   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	WarningHighContrast = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	InfoHighContrast    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
)

// RenderSuccess renders a success message with its indicator.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(SuccessHighContrast).Bold(true).
		Render(StatusIndicators.Success + " " + message)
}

// RenderError renders an error message with its indicator.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(ErrorHighContrast).Bold(true).
		Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning message with its indicator.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(WarningHighContrast).Bold(true).
		Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders an info message with its indicator.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(InfoHighContrast).Bold(true).
		Render(StatusIndicators.Info + " " + message)
}
