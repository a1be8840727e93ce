// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keepalive connects the session controller to HTTP traffic.
//
// Transport reports each completed exchange as activity once the response
// body has been read or closed. Client extends the server session when the
// user acknowledges the warning; its requests are tagged as background so
// an ActivityPolicy can tell them apart from user traffic. Acknowledge pings
// are never throttled; the min interval only spaces explicit refreshes made
// with PingContext.
//
// # Usage
//
//	relay := &keepalive.Relay{}
//	httpClient, _ := keepalive.NewHTTPClient(relay, 10*time.Second)
//	ka := keepalive.New(keepAliveURL, httpClient, keepalive.WithMinInterval(10*time.Second))
//	ctrl, _ := session.NewController(cfg, session.WithKeepAliver(ka), session.WithNavigator(nav))
//	relay.Attach(ctrl)
package keepalive
