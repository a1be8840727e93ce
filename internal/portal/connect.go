// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package portal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/keepalive"
	"github.com/jeranaias/autologout-tui/internal/session"
)

// ConnectOptions configures the session built by Connect.
type ConnectOptions struct {
	User string

	// WarningLead is shortened when the server timeout does not leave room
	// for it.
	WarningLead time.Duration
	Policy      session.ActivityPolicy

	// Fallback paths used when the login answer omits them
	LogoutPath    string
	KeepAlivePath string

	KeepAliveMinInterval time.Duration
	KeepAliveTimeout     time.Duration

	Dialog    session.Dialog
	Navigator session.Navigator
	Clock     session.Clock
	Logger    *slog.Logger
}

// Session is a logged-in server session with its running countdown.
type Session struct {
	Login      *api.LoginResponse
	Controller *session.Controller
	KeepAlive  *keepalive.Client
}

// Close stops the countdown and waits for in-flight keep-alives.
func (s *Session) Close() {
	s.Controller.Stop()
	s.KeepAlive.Wait()
}

// Connect logs in, builds the controller from the timeout the server
// reports, attaches it to the transport and starts it.
func (c *Client) Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = c.logger
	}

	login, err := c.Login(ctx, opts.User)
	if err != nil {
		return nil, err
	}

	logoutRef := login.LogoutURL
	if logoutRef == "" {
		logoutRef = opts.LogoutPath
	}
	logoutURL, err := c.Resolve(logoutRef)
	if err != nil {
		return nil, fmt.Errorf("logout URL: %w", err)
	}

	keepAliveRef := login.KeepAliveURL
	if keepAliveRef == "" {
		keepAliveRef = opts.KeepAlivePath
	}
	keepAliveURL, err := c.Resolve(keepAliveRef)
	if err != nil {
		return nil, fmt.Errorf("keep-alive URL: %w", err)
	}

	timeout := time.Duration(login.TimeoutSecs) * time.Second
	lead := EffectiveLead(timeout, opts.WarningLead)
	if opts.WarningLead > 0 && lead != opts.WarningLead {
		logger.Warn("WARNING_LEAD_SHORTENED", "configured", opts.WarningLead, "timeout", timeout, "lead", lead)
	}

	ka := keepalive.New(keepAliveURL, c.http,
		keepalive.WithMinInterval(opts.KeepAliveMinInterval),
		keepalive.WithTimeout(opts.KeepAliveTimeout),
		keepalive.WithLogger(logger),
	)

	ctrlOpts := []session.Option{
		session.WithKeepAliver(ka),
		session.WithLogger(logger),
	}
	if opts.Dialog != nil {
		ctrlOpts = append(ctrlOpts, session.WithDialog(opts.Dialog))
	}
	if opts.Navigator != nil {
		ctrlOpts = append(ctrlOpts, session.WithNavigator(opts.Navigator))
	}
	if opts.Clock != nil {
		ctrlOpts = append(ctrlOpts, session.WithClock(opts.Clock))
	}

	ctrl, err := session.NewController(session.Config{
		Timeout:     timeout,
		WarningLead: lead,
		LogoutURL:   logoutURL,
		Policy:      opts.Policy,
	}, ctrlOpts...)
	if err != nil {
		return nil, fmt.Errorf("session controller: %w", err)
	}

	c.relay.Attach(ctrl)
	ctrl.Start()

	logger.Info("SESSION_CONNECTED", "user", login.User, "session_id", login.SessionID, "timeout", timeout)

	return &Session{
		Login:      login,
		Controller: ctrl,
		KeepAlive:  ka,
	}, nil
}

// EffectiveLead returns the warning lead to use for timeout. A lead of zero
// means the default. When the lead does not fit in the timeout, half the
// timeout is used.
func EffectiveLead(timeout, lead time.Duration) time.Duration {
	if lead <= 0 {
		lead = session.DefaultWarningLead
	}
	if lead >= timeout {
		return timeout / 2
	}
	return lead
}
