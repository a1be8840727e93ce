// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/autologout-tui/internal/portal"
	"github.com/jeranaias/autologout-tui/internal/server"
	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/components"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

var (
	epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ansi  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

func stripANSI(s string) string {
	return ansi.ReplaceAllString(s, "")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

type fixture struct {
	m     Model
	clock *session.ManualClock
	store *server.Store
}

func newFixture(t *testing.T, user string) *fixture {
	t.Helper()
	store := server.NewStore(30*time.Minute, server.WithStoreLogger(discard()))
	srv := httptest.NewServer(server.New(store, server.Options{Logger: discard()}).Handler())
	t.Cleanup(srv.Close)

	client, err := portal.New(srv.URL, time.Second, discard())
	require.NoError(t, err)

	clock := session.NewManualClock(epoch)
	f := &fixture{
		clock: clock,
		store: store,
		m: New(Options{
			Client: client,
			Connect: portal.ConnectOptions{
				User:        user,
				WarningLead: 3 * time.Minute,
				Clock:       clock,
			},
			ServerLabel:    "test",
			RequestTimeout: time.Second,
			ShowStatusBar:  true,
			Theme:          styles.NewTheme("dark"),
			ExitDelay:      -1,
			Logger:         discard(),
		}),
	}
	t.Cleanup(func() {
		if s := f.m.Session(); s != nil {
			s.Close()
		}
	})
	f.update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return f
}

func (f *fixture) update(msg tea.Msg) tea.Cmd {
	next, cmd := f.m.Update(msg)
	f.m = next.(Model)
	return cmd
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.update(connectCmd(f.m.client, f.m.connectOpts, time.Second)())
	require.NotNil(t, f.m.Session())
}

// drain feeds queued controller events to the model.
func (f *fixture) drain() {
	for {
		select {
		case msg := <-f.m.events.ch:
			f.update(msg)
		default:
			return
		}
	}
}

// discardEvents empties the queue without delivering anything.
func (f *fixture) discardEvents() {
	for {
		select {
		case <-f.m.events.ch:
		default:
			return
		}
	}
}

func (f *fixture) ctrl() *session.Controller {
	return f.m.Session().Controller
}

// =============================================================================
// CONNECT AND PAGE
// =============================================================================

func TestConsole_ConnectingView(t *testing.T) {
	f := newFixture(t, "alice")
	assert.Contains(t, stripANSI(f.m.View()), "Connecting to http://127.0.0.1")
	assert.Contains(t, stripANSI(f.m.View()), "CONNECTING")
}

func TestConsole_ConnectAndLoadPage(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	assert.Equal(t, session.StateActive, f.ctrl().State())
	assert.Equal(t, 30*time.Minute, f.ctrl().Timeout())

	f.update(fetchPageCmd(f.m.client, time.Second)())

	view := stripANSI(f.m.View())
	assert.Contains(t, view, "Welcome")
	assert.Contains(t, view, "Dashboard")
	assert.Contains(t, view, "ACTIVE")
	assert.Equal(t, "page loaded", f.m.status.Message)
}

func TestConsole_ConnectFailure(t *testing.T) {
	f := newFixture(t, "")

	cmd := f.update(connectCmd(f.m.client, f.m.connectOpts, time.Second)())

	require.Error(t, f.m.Err())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, stripANSI(f.m.View()), "Error:")
}

func TestConsole_PageReloadResetsCountdown(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	f.clock.Advance(20 * time.Minute)
	require.Equal(t, 10*time.Minute, f.ctrl().Remaining())

	cmd := f.update(keyRune('r'))
	require.NotNil(t, cmd)
	f.update(cmd())

	assert.Equal(t, 30*time.Minute, f.ctrl().Remaining())
}

func TestConsole_PollUpdatesStatus(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	cmd := f.update(keyRune('p'))
	require.NotNil(t, cmd)
	f.update(cmd())

	assert.Contains(t, f.m.status.Message, "server: 30m left")
}

func TestConsole_KeysBeforeConnect(t *testing.T) {
	f := newFixture(t, "alice")

	assert.Nil(t, f.update(keyRune('r')))
	assert.Nil(t, f.update(keyRune('p')))
}

// =============================================================================
// WARNING AND EXPIRY
// =============================================================================

func TestConsole_WarningOverlayAndAcknowledge(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	f.clock.Advance(27 * time.Minute)
	f.drain()

	require.True(t, f.m.overlay.IsVisible())
	assert.Contains(t, stripANSI(f.m.View()), "Automatic Logout")
	assert.Contains(t, stripANSI(f.m.View()), "3:00")

	cmd := f.update(keyRune('x'))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, components.SessionExtendedMsg{}, msg)
	f.update(msg)
	f.drain()

	assert.False(t, f.m.overlay.IsVisible())
	assert.Equal(t, session.StateActive, f.ctrl().State())
	assert.Equal(t, 30*time.Minute, f.ctrl().Remaining())
	assert.Equal(t, "session extended", f.m.status.Message)
}

func TestConsole_ExpiryLogsOut(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)
	require.Equal(t, 1, f.store.Len())

	f.clock.Advance(30 * time.Minute)
	f.drain()

	assert.True(t, f.m.LoggedOut())
	assert.True(t, f.m.overlay.IsExpired())
	assert.Contains(t, stripANSI(f.m.View()), "Session Expired")

	// Keys no longer extend anything
	assert.Nil(t, f.update(keyRune('x')))
	assert.Equal(t, session.StateExpired, f.ctrl().State())

	cmd := f.update(logoutCmd(f.m.client, f.ctrl().LogoutURL(), time.Second)())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, "logged out", f.m.status.Message)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestConsole_TickRecoversDroppedEvents(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	f.clock.Advance(27 * time.Minute)
	f.discardEvents()
	require.False(t, f.m.overlay.IsVisible())

	f.update(session.TickMsg{Time: f.clock.Now()})
	assert.True(t, f.m.overlay.IsVisible())

	f.clock.Advance(time.Minute)
	f.update(session.TickMsg{Time: f.clock.Now()})
	assert.Equal(t, 2*time.Minute, f.m.overlay.TimeRemaining())

	f.clock.Advance(2 * time.Minute)
	f.discardEvents()
	f.update(session.TickMsg{Time: f.clock.Now()})
	assert.True(t, f.m.LoggedOut())
	assert.True(t, f.m.overlay.IsExpired())
}

func TestConsole_TickHidesStaleOverlay(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	f.clock.Advance(27 * time.Minute)
	f.drain()
	require.True(t, f.m.overlay.IsVisible())

	// Reset outside the console, hide event lost
	f.ctrl().Reset()
	f.discardEvents()

	f.update(session.TickMsg{Time: f.clock.Now()})
	assert.False(t, f.m.overlay.IsVisible())
	assert.Contains(t, f.m.status.Plain(), "ACTIVE")
}

func TestConsole_UnauthorizedPageLogsOut(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	f.store.Delete(f.m.Session().Login.SessionID)
	cmd := f.update(fetchPageCmd(f.m.client, time.Second)())

	require.NotNil(t, cmd)
	assert.True(t, f.m.LoggedOut())
	assert.Equal(t, session.StateStopped, f.ctrl().State())
}

func TestConsole_QuitClosesSession(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)

	cmd := f.update(keyRune('q'))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, session.StateStopped, f.ctrl().State())
	assert.Equal(t, 1, f.store.Len(), "quitting does not log out")
}

func TestConsole_ResizeLaysOutViewport(t *testing.T) {
	f := newFixture(t, "alice")
	f.update(tea.WindowSizeMsg{Width: 60, Height: 20})

	assert.Equal(t, 60, f.m.viewport.Width)
	assert.Equal(t, 20-headerHeight-statusBarHeight, f.m.viewport.Height)
}

func TestConsole_StateChangesUpdateStatusBar(t *testing.T) {
	f := newFixture(t, "alice")
	f.connect(t)
	require.NotNil(t, f.m.changes)

	f.clock.Advance(27 * time.Minute)
	change := <-f.m.changes
	require.Equal(t, session.StateWarning, change.To)

	cmd := f.update(session.StateChangedMsg(change))
	require.NotNil(t, cmd)
	assert.Contains(t, f.m.status.Plain(), "WARNING")

	// Stopping the controller closes the subscription
	f.ctrl().Stop()
	msg := session.WaitForChange(f.m.changes)()
	for {
		if _, ok := msg.(session.SubscriptionClosedMsg); ok {
			break
		}
		msg = session.WaitForChange(f.m.changes)()
	}
	assert.Nil(t, f.update(msg))
	assert.Nil(t, f.m.changes)
}
