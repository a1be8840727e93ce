// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the autologout console.

Colors are Lip Gloss AdaptiveColor values so they follow the terminal's
light or dark background. Session states map to fixed colors:

	Emerald - ACTIVE
	Amber   - WARNING
	Rose    - EXPIRED
	Muted   - STOPPED or not started

Every status also carries an ASCII indicator from StatusIndicators so the
state is readable without color.

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	bar := theme.StatusBar.Width(80).Render(theme.StateWarning.Render("[!] WARNING"))
*/
package styles
