// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api defines the JSON bodies exchanged between the session server
// and its clients.
package api

// Response headers set on every authenticated request.
const (
	// HeaderExpiresIn carries the seconds left in the server session.
	HeaderExpiresIn = "X-Session-Expires-In"
	// HeaderState is "active" or "expired".
	HeaderState = "X-Session-State"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	User string `json:"user"`
}

// LoginResponse describes a new server session. Clients configure their
// countdown from it.
type LoginResponse struct {
	SessionID    string `json:"session_id"`
	User         string `json:"user"`
	TimeoutSecs  int    `json:"timeout_secs"`
	LogoutURL    string `json:"logout_url"`
	KeepAliveURL string `json:"keepalive_url"`
}

// PageResponse is the body of GET /api/page. Markdown is rendered by the
// console.
type PageResponse struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// PollResponse is the body of GET /api/poll.
type PollResponse struct {
	RemainingSecs int    `json:"remaining_secs"`
	ServerTime    string `json:"server_time"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
