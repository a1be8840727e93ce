// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/autologout-tui/internal/portal"
	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/components"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectedMsg:
		return m.handleConnected(msg)

	case ConnectFailedMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit

	case PageLoadedMsg:
		return m.handlePage(msg)

	case PollResultMsg:
		return m.handlePoll(msg)

	case PollTickMsg:
		if m.sess == nil || m.loggingOut {
			return m, nil
		}
		return m, tea.Batch(pollCmd(m.client, m.requestTimeout), pollTickCmd(m.pollInterval))

	case WarningShownMsg:
		if !m.loggingOut {
			m.overlay.Show(msg.Remaining)
		}
		return m, m.events.wait()

	case WarningHiddenMsg:
		if !m.overlay.IsExpired() {
			m.overlay.Hide()
		}
		return m, m.events.wait()

	case NavigateMsg:
		cmd := m.startLogout(msg.URL)
		return m, tea.Batch(cmd, m.events.wait())

	case components.SessionExtendedMsg:
		if m.sess != nil {
			m.sess.Controller.Acknowledge()
			m.status.SetMessage("session extended")
		}
		return m, nil

	case LoggedOutMsg:
		if msg.Err != nil {
			m.logger.Warn("LOGOUT_FAILED", "url", msg.URL, "error", msg.Err)
			m.status.SetMessage("logout request failed")
		} else {
			m.status.SetMessage("logged out")
		}
		m.quitting = true
		return m, quitAfter(m.exitDelay)

	case session.StateChangedMsg:
		if m.sess != nil && !m.loggingOut {
			m.status.SetSession(msg.To, m.sess.Controller.Remaining())
		}
		return m, session.WaitForChange(m.changes)

	case session.SubscriptionClosedMsg:
		m.changes = nil
		return m, nil

	case session.TickMsg:
		cmd := m.reconcile()
		return m, tea.Batch(cmd, session.TickCmd())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	reserved := headerHeight
	if m.showStatusBar {
		reserved += statusBarHeight
	}
	vpHeight := m.height - reserved
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight

	m.theme.SetSize(m.width, m.height)
	m.header.SetWidth(m.width)
	m.status.SetWidth(m.width)
	m.overlay.SetSize(m.width, m.height)

	m.renderer = newRenderer(m.theme, m.width)
	m.renderContent()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	// The warning swallows every key and acknowledges.
	if m.overlay.IsVisible() {
		if m.overlay.IsExpired() {
			if msg.String() == "q" {
				return m.quit()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.overlay, cmd = m.overlay.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "r":
		if m.sess != nil && !m.loggingOut {
			m.status.SetMessage("reloading page")
			return m, fetchPageCmd(m.client, m.requestTimeout)
		}
		return m, nil
	case "p":
		if m.sess != nil && !m.loggingOut {
			return m, pollCmd(m.client, m.requestTimeout)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleConnected(msg ConnectedMsg) (tea.Model, tea.Cmd) {
	m.sess = msg.Session
	ctrl := m.sess.Controller

	m.status.User = m.sess.Login.User
	m.header.User = m.sess.Login.User
	m.overlay.SetWarningLead(ctrl.WarningLead())
	m.status.SetSession(ctrl.State(), ctrl.Remaining())
	m.status.SetMessage("connected")
	m.changes, _ = ctrl.Subscribe()

	return m, tea.Batch(
		fetchPageCmd(m.client, m.requestTimeout),
		pollTickCmd(m.pollInterval),
		session.WaitForChange(m.changes),
	)
}

func (m Model) handlePage(msg PageLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m.handleRequestError("page", msg.Err)
	}
	m.header.Page = msg.Page.Title
	m.markdown = msg.Page.Markdown
	m.renderContent()
	m.viewport.GotoTop()
	m.status.SetMessage("page loaded")
	return m, nil
}

func (m Model) handlePoll(msg PollResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m.handleRequestError("poll", msg.Err)
	}
	m.status.SetMessage(fmt.Sprintf("server: %s left", session.FormatDuration(secs(msg.Poll.RemainingSecs))))
	return m, nil
}

// handleRequestError treats a rejected session as expired. Other failures
// only show up in the status bar.
func (m Model) handleRequestError(what string, err error) (tea.Model, tea.Cmd) {
	if errors.Is(err, portal.ErrUnauthorized) {
		m.logger.Info("SESSION_REJECTED_BY_SERVER", "request", what)
		if m.sess == nil {
			m.err = err
			m.quitting = true
			return m, tea.Quit
		}
		url := m.sess.Controller.LogoutURL()
		m.sess.Controller.Stop()
		return m, m.startLogout(url)
	}
	m.logger.Warn("REQUEST_FAILED", "request", what, "error", err)
	m.status.SetMessage(what + " failed: " + err.Error())
	return m, nil
}

// =============================================================================
// SESSION HANDLING
// =============================================================================

// startLogout shows the expired screen and follows the logout URL once.
func (m *Model) startLogout(url string) tea.Cmd {
	if m.loggingOut {
		return nil
	}
	m.loggingOut = true
	m.overlay.ShowExpired()
	if m.sess != nil {
		m.status.SetSession(session.StateExpired, 0)
	}
	return logoutCmd(m.client, url, m.requestTimeout)
}

// reconcile brings the overlay and status bar in line with the controller.
// It also recovers from dropped controller events.
func (m *Model) reconcile() tea.Cmd {
	if m.sess == nil {
		return nil
	}
	ctrl := m.sess.Controller
	state := ctrl.State()
	remaining := ctrl.Remaining()

	switch state {
	case session.StateWarning:
		if !m.overlay.IsVisible() {
			m.overlay.Show(remaining)
		} else {
			m.overlay.UpdateTime(remaining)
		}
	case session.StateActive:
		if m.overlay.IsVisible() && !m.overlay.IsExpired() {
			m.overlay.Hide()
		}
	case session.StateExpired:
		if !m.loggingOut {
			return m.startLogout(ctrl.LogoutURL())
		}
	}

	if !m.loggingOut {
		m.status.SetSession(state, remaining)
	}
	return nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.sess != nil {
		m.sess.Close()
	}
	return m, tea.Quit
}

// renderContent renders the markdown into the viewport.
func (m *Model) renderContent() {
	if m.markdown == "" {
		return
	}
	content := m.markdown
	if m.renderer != nil {
		if out, err := m.renderer.Render(m.markdown); err == nil {
			content = out
		}
	}
	m.viewport.SetContent(content)
}
