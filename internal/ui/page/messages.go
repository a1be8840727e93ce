// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/autologout-tui/internal/api"
	"github.com/jeranaias/autologout-tui/internal/portal"
)

// =============================================================================
// MESSAGES
// =============================================================================

// ConnectedMsg is sent when login succeeded and the countdown is running.
type ConnectedMsg struct {
	Session *portal.Session
}

// ConnectFailedMsg is sent when login or controller setup failed.
type ConnectFailedMsg struct {
	Err error
}

// PageLoadedMsg carries the result of GET /api/page.
type PageLoadedMsg struct {
	Page *api.PageResponse
	Err  error
}

// PollResultMsg carries the result of the background poll.
type PollResultMsg struct {
	Poll *api.PollResponse
	Err  error
}

// PollTickMsg schedules the next background poll.
type PollTickMsg struct{}

// LoggedOutMsg is sent once the logout request finished.
type LoggedOutMsg struct {
	URL string
	Err error
}

// WarningShownMsg is pushed by the controller's dialog when the warning
// starts.
type WarningShownMsg struct {
	Remaining time.Duration
}

// WarningHiddenMsg is pushed by the controller's dialog when the warning
// is dismissed.
type WarningHiddenMsg struct{}

// NavigateMsg is pushed by the controller's navigator on expiry.
type NavigateMsg struct {
	URL string
}

// =============================================================================
// CONTROLLER ADAPTERS
// =============================================================================

// DefaultEventBuffer is the capacity of the controller event queue.
const DefaultEventBuffer = 16

// eventQueue carries controller callbacks into the Bubble Tea loop. The
// controller calls in with its lock held, so pushes never block. A dropped
// event is recovered by the next tick, which reconciles with State().
type eventQueue struct {
	ch     chan tea.Msg
	logger *slog.Logger
}

func newEventQueue(size int, logger *slog.Logger) *eventQueue {
	return &eventQueue{ch: make(chan tea.Msg, size), logger: logger}
}

func (q *eventQueue) push(msg tea.Msg) {
	select {
	case q.ch <- msg:
	default:
		q.logger.Debug("CONSOLE_EVENT_DROPPED", "event", msg)
	}
}

// Show implements session.Dialog.
func (q *eventQueue) Show(remaining time.Duration) { q.push(WarningShownMsg{Remaining: remaining}) }

// Hide implements session.Dialog.
func (q *eventQueue) Hide() { q.push(WarningHiddenMsg{}) }

// Navigate implements session.Navigator.
func (q *eventQueue) Navigate(url string) { q.push(NavigateMsg{URL: url}) }

// wait returns a command that delivers the next queued event.
func (q *eventQueue) wait() tea.Cmd {
	return func() tea.Msg {
		return <-q.ch
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func connectCmd(client *portal.Client, opts portal.ConnectOptions, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		sess, err := client.Connect(ctx, opts)
		if err != nil {
			return ConnectFailedMsg{Err: err}
		}
		return ConnectedMsg{Session: sess}
	}
}

func fetchPageCmd(client *portal.Client, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		page, err := client.Page(ctx)
		return PageLoadedMsg{Page: page, Err: err}
	}
}

func pollCmd(client *portal.Client, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		poll, err := client.Poll(ctx)
		return PollResultMsg{Poll: poll, Err: err}
	}
}

func pollTickCmd(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return PollTickMsg{}
	})
}

func logoutCmd(client *portal.Client, url string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return LoggedOutMsg{URL: url, Err: client.Logout(ctx, url)}
	}
}

// quitAfter quits once the expired screen has been visible for d.
func quitAfter(d time.Duration) tea.Cmd {
	if d <= 0 {
		return tea.Quit
	}
	return tea.Tick(d, func(time.Time) tea.Msg {
		return tea.Quit()
	})
}
