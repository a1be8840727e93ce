// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

// Header is the title line of the console.
type Header struct {
	Title string // Application title (default: "autologout")
	Page  string // Title of the loaded page
	User  string
	Width int
	theme *styles.Theme
}

// NewHeader creates a header.
func NewHeader(theme *styles.Theme) *Header {
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	return &Header{
		Title: "autologout",
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// View renders the header: title and page on the left, user on the right.
func (h *Header) View() string {
	left := h.theme.HeaderTitle.Render(h.Title)
	if h.Page != "" {
		left += h.theme.HeaderMeta.Render("  " + h.Page)
	}

	right := ""
	if h.User != "" {
		right = h.theme.HeaderMeta.Render(h.User)
	}

	// Header has horizontal padding of 1 on each side
	inner := h.Width - 2
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		right = ""
		gap = 0
	}
	line := left + lipgloss.NewStyle().Width(gap).Render("") + right

	return h.theme.Header.Width(h.Width).Render(line)
}
