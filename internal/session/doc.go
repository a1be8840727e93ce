// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the client-side idle logout countdown.
//
// A Controller mirrors the server's session lifetime. It moves from Active
// to Warning WarningLead before expiry, showing the host's warning dialog,
// and from Warning to Expired at expiry, navigating to the logout URL.
// Activity and acknowledgement return it to Active.
//
// # Key Types
//
//   - Controller: countdown state machine
//   - Clock: scheduling abstraction (SystemClock, ManualClock)
//   - Dialog, Navigator, KeepAliver: host collaborators
//   - ActivityPolicy: which activity signals count
//
// # Usage
//
//	ctrl, err := session.NewController(session.Config{
//	    Timeout:   30 * time.Minute,
//	    LogoutURL: "/auth/logout",
//	}, session.WithNavigator(nav), session.WithDialog(dlg))
//	if err != nil {
//	    return err
//	}
//	ctrl.Start()
//	defer ctrl.Stop()
//
// Report completed network exchanges:
//
//	ctrl.NotifyActivity(session.ActivityUser)
//
// Dismiss the warning:
//
//	ctrl.Acknowledge()
package session
