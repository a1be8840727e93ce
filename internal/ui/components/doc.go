// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the visual building blocks of the autologout console.

# Components

SessionTimeoutOverlay (session_timeout_overlay.go) - The warning dialog.
Shows an M:SS countdown and a bar that drains over the warning lead. Any key
while it is visible emits SessionExtendedMsg; the host turns that into
Controller.Acknowledge. ShowExpired switches to the logged-out notice.

SessionStatusBar (statusbar.go) - One-line session state, time to logout,
user and server. Text is truncated by display width with go-runewidth.

Header (header.go) - Title line with page title and user.

Highlight (highlight.go) - Chroma terminal highlighting, used to print the
configuration as TOML.

# Usage

	overlay := components.NewSessionTimeoutOverlay(3 * time.Minute)
	overlay.Show(ctrl.Remaining())

	// In Update
	overlay, cmd = overlay.Update(msg)

	// In View
	if overlay.IsVisible() {
		return overlay.View()
	}
*/
package components
