// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the session authority HTTP server.
//
// Sessions live in memory and slide: every authenticated request pushes the
// expiry out by the session timeout. Clients mirror that lifetime with a
// local countdown and follow the logout URL when it runs out.
//
// # Endpoints
//
//   - POST /auth/login     - Create a session, set the cookie
//   - GET  /rest/keepalive - Extend the session (204)
//   - GET  /auth/logout    - End the session, clear the cookie
//   - GET  /api/page       - Markdown page for the console
//   - GET  /api/poll       - Seconds left in the session
//   - GET  /health         - Health check
//
// # Middleware
//
//   - Panic recovery
//   - Security headers (X-Content-Type-Options, X-Frame-Options, etc.)
//   - Request logging
//   - Session timeout enforcement with X-Session-Expires-In and
//     X-Session-State headers
//   - Per-IP rate limiting on login
//
// # Usage
//
//	store := server.NewStore(30 * time.Minute)
//	srv := server.New(store, server.Options{Addr: "127.0.0.1:8790"})
//	err := srv.ListenAndServe(ctx)
package server
