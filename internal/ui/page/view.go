// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the console.
func (m Model) View() string {
	if m.overlay.IsVisible() {
		return m.overlay.View()
	}
	if m.err != nil {
		return m.theme.ErrorText.Render("Error: "+m.err.Error()) + "\n"
	}
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header.View())
	b.WriteString("\n")

	if m.sess == nil {
		target := "server"
		if m.client != nil {
			target = m.client.BaseURL()
		}
		body := lipgloss.NewStyle().
			Width(m.width).
			Height(m.viewport.Height).
			Render(m.theme.StatusMeta.Render("Connecting to " + target + "..."))
		b.WriteString(body)
	} else {
		b.WriteString(m.viewport.View())
	}

	if m.showStatusBar {
		b.WriteString("\n")
		b.WriteString(m.status.View())
	}
	return b.String()
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
