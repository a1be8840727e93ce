// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package page is the full-screen console client.
//
// The console logs in, shows the server page rendered from markdown and
// runs the idle countdown. When the warning starts it covers the screen
// with the timeout overlay; any key acknowledges. On expiry it follows the
// logout URL, shows the expired screen and quits.
//
// # Keys
//
//   - r: reload the page (user activity)
//   - p: background poll
//   - q, ctrl+c: quit
//   - arrows, pgup/pgdown: scroll
package page
