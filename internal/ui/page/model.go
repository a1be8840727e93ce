// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package page

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/autologout-tui/internal/portal"
	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/components"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

const (
	// DefaultExitDelay keeps the expired screen up before quitting.
	DefaultExitDelay = 2 * time.Second

	headerHeight    = 1
	statusBarHeight = 1
)

// Options configures the console.
type Options struct {
	Client *portal.Client

	// Connect is passed to portal.Client.Connect. Dialog and Navigator are
	// replaced by the console.
	Connect portal.ConnectOptions

	// ServerLabel is shown next to the user in the status bar.
	ServerLabel string

	// RequestTimeout bounds every request the console makes.
	RequestTimeout time.Duration

	// PollInterval is the background poll period; zero disables polling.
	PollInterval time.Duration

	ShowStatusBar bool
	Theme         *styles.Theme

	// ExitDelay is how long the expired screen stays up; negative quits
	// at once.
	ExitDelay time.Duration

	Logger *slog.Logger
}

// =============================================================================
// CONSOLE MODEL
// =============================================================================

// Model is the Bubble Tea model for the console.
type Model struct {
	client      *portal.Client
	connectOpts portal.ConnectOptions
	sess        *portal.Session
	events      *eventQueue
	changes     <-chan session.StateChange

	// Styling
	theme    *styles.Theme
	renderer *glamour.TermRenderer

	// Components
	header   *components.Header
	status   *components.SessionStatusBar
	overlay  components.SessionTimeoutOverlay
	viewport viewport.Model

	// Dimensions
	width  int
	height int

	// Page content
	markdown string

	requestTimeout time.Duration
	pollInterval   time.Duration
	showStatusBar  bool
	exitDelay      time.Duration

	loggingOut bool
	quitting   bool
	err        error

	logger *slog.Logger
}

// New creates the console model. Nothing touches the network until Init.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = portal.DefaultTimeout
	}
	exitDelay := opts.ExitDelay
	if exitDelay == 0 {
		exitDelay = DefaultExitDelay
	}

	events := newEventQueue(DefaultEventBuffer, logger)
	connectOpts := opts.Connect
	connectOpts.Dialog = events
	connectOpts.Navigator = events
	if connectOpts.Logger == nil {
		connectOpts.Logger = logger
	}

	status := components.NewSessionStatusBar(theme)
	status.User = connectOpts.User
	status.Server = opts.ServerLabel

	header := components.NewHeader(theme)
	header.User = connectOpts.User

	m := Model{
		client:         opts.Client,
		connectOpts:    connectOpts,
		events:         events,
		theme:          theme,
		header:         header,
		status:         status,
		overlay:        components.NewSessionTimeoutOverlay(connectOpts.WarningLead),
		viewport:       viewport.New(80, 20),
		width:          80,
		height:         24,
		requestTimeout: timeout,
		pollInterval:   opts.PollInterval,
		showStatusBar:  opts.ShowStatusBar,
		exitDelay:      exitDelay,
		logger:         logger,
	}
	m.renderer = newRenderer(theme, m.width)
	return m
}

// newRenderer builds the markdown renderer for the page body.
func newRenderer(theme *styles.Theme, width int) *glamour.TermRenderer {
	style := "light"
	if theme.IsDark {
		style = "dark"
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		// Fall back to plain text
		return nil
	}
	return r
}

// Init starts the login and the countdown refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.client, m.connectOpts, m.requestTimeout),
		m.events.wait(),
		session.TickCmd(),
	)
}

// Session returns the connected session, nil before login completes.
func (m Model) Session() *portal.Session { return m.sess }

// Err returns the error that ended the console, if any.
func (m Model) Err() error { return m.err }

// LoggedOut reports whether the console followed the logout URL.
func (m Model) LoggedOut() bool { return m.loggingOut }
