// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultWarningLead is how long before expiry the warning is shown.
const DefaultWarningLead = 180 * time.Second

var (
	// ErrInvalidTimeout is returned for a missing or non-positive timeout.
	ErrInvalidTimeout = errors.New("session timeout must be positive")
	// ErrInvalidWarningLead is returned when the lead is negative or not
	// shorter than the timeout.
	ErrInvalidWarningLead = errors.New("warning lead must be shorter than the session timeout")
	// ErrInvalidLogoutURL is returned for a missing or malformed logout URL.
	ErrInvalidLogoutURL = errors.New("invalid logout URL")
	// ErrNoNavigator is returned when no Navigator is configured.
	ErrNoNavigator = errors.New("a navigator is required")
)

// =============================================================================
// HOST COLLABORATORS
// =============================================================================

// Dialog is the warning dialog owned by the host.
type Dialog interface {
	Show(remaining time.Duration)
	Hide()
}

// Navigator leaves the current page for the logout URL.
type Navigator interface {
	Navigate(url string)
}

// KeepAliver tells the server the session is still in use. Ping is called
// with the Controller's lock held; it must start the request and return
// without waiting for the response.
type KeepAliver interface {
	Ping()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) { f(url) }

type nopDialog struct{}

func (nopDialog) Show(time.Duration) {}
func (nopDialog) Hide()              {}

type nopKeepAliver struct{}

func (nopKeepAliver) Ping() {}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the values the server reports when the page loads.
type Config struct {
	// Timeout is the total server-side session lifetime.
	Timeout time.Duration
	// WarningLead is how long before expiry to warn (default: 180s).
	WarningLead time.Duration
	// LogoutURL is where to navigate on expiry. Absolute URL or absolute path.
	LogoutURL string
	// Policy selects which activity signals reset the countdown.
	Policy ActivityPolicy
}

// Validate checks the config and fills in the default warning lead.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.WarningLead == 0 {
		c.WarningLead = DefaultWarningLead
	}
	if c.WarningLead < 0 || c.WarningLead >= c.Timeout {
		return fmt.Errorf("%w: lead=%v timeout=%v", ErrInvalidWarningLead, c.WarningLead, c.Timeout)
	}
	return validateLogoutURL(c.LogoutURL)
}

func validateLogoutURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLogoutURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogoutURL, err)
	}
	if u.IsAbs() {
		if u.Host == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidLogoutURL, raw)
		}
		return nil
	}
	if !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("%w: %q is neither absolute nor rooted", ErrInvalidLogoutURL, raw)
	}
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithDialog sets the warning dialog.
func WithDialog(d Dialog) Option {
	return func(c *Controller) { c.dialog = d }
}

// WithNavigator sets the navigator used on expiry.
func WithNavigator(n Navigator) Option {
	return func(c *Controller) { c.navigator = n }
}

// WithKeepAliver sets the keep-alive used on acknowledge.
func WithKeepAliver(k KeepAliver) Option {
	return func(c *Controller) { c.keepAlive = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller tracks time to session expiry on the client. It warns
// WarningLead before expiry and navigates to the logout URL if nobody
// acknowledges.
//
// Every operation is serialized by one mutex. Dialog and Navigator are
// called with that mutex held so they observe transitions in order; they
// must not block and must not call back into the Controller.
type Controller struct {
	mu sync.Mutex

	timeout   time.Duration
	lead      time.Duration
	logoutURL string
	policy    ActivityPolicy

	clock     Clock
	dialog    Dialog
	navigator Navigator
	keepAlive KeepAliver
	logger    *slog.Logger

	state       State
	started     bool
	gen         uint64
	warnTimer   Timer
	expireTimer Timer
	deadline    time.Time

	subs    map[int]chan StateChange
	nextSub int
}

// NewController validates cfg and builds a Controller. Nothing is scheduled
// until Start.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		timeout:   cfg.Timeout,
		lead:      cfg.WarningLead,
		logoutURL: cfg.LogoutURL,
		policy:    cfg.Policy,
		clock:     SystemClock(),
		dialog:    nopDialog{},
		keepAlive: nopKeepAliver{},
		logger:    slog.Default(),
		state:     StateActive,
		subs:      make(map[int]chan StateChange),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.navigator == nil {
		return nil, ErrNoNavigator
	}
	return c, nil
}

// Start schedules the warning. Calling Start again behaves like Reset.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	first := !c.started
	c.started = true
	c.rescheduleLocked()
	if first {
		c.logger.Info("SESSION_STARTED",
			"timeout", c.timeout,
			"warning_lead", c.lead,
			"logout_url", c.logoutURL,
			"policy", c.policy.String())
	}
}

// Reset cancels pending timers and restarts the countdown from Active.
// It is valid in every state except Stopped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	c.started = true
	c.rescheduleLocked()
}

// NotifyActivity reports a completed exchange. Signals the policy does not
// count, and signals after expiry, are ignored.
func (c *Controller) NotifyActivity(kind ActivityKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.state.IsTerminal() {
		return
	}
	if !c.policy.Counts(kind) {
		c.logger.Debug("SESSION_ACTIVITY_IGNORED", "kind", kind.String(), "policy", c.policy.String())
		return
	}
	c.rescheduleLocked()
}

// Acknowledge is called when the user dismisses the warning. It extends the
// server session without waiting for the answer and resets the countdown.
// Outside Warning it only resets.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	if c.state == StateWarning {
		c.keepAlive.Ping()
		c.logger.Info("SESSION_ACKNOWLEDGED", "remaining", c.remainingLocked())
	}
	c.started = true
	c.rescheduleLocked()
}

// Stop cancels everything. Subscriptions are closed and later calls are
// no-ops.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	c.stopTimersLocked()
	c.gen++
	c.deadline = time.Time{}
	c.transitionLocked(StateStopped)
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.logger.Debug("SESSION_STOPPED")
}

// rescheduleLocked is the shared body of start, reset and acknowledge.
func (c *Controller) rescheduleLocked() {
	c.stopTimersLocked()

	prev := c.state
	if prev == StateWarning {
		c.dialog.Hide()
	}

	c.gen++
	gen := c.gen
	c.deadline = c.clock.Now().Add(c.timeout)
	c.warnTimer = c.clock.AfterFunc(c.timeout-c.lead, func() { c.onWarningFire(gen) })

	if prev != StateActive {
		c.transitionLocked(StateActive)
	}
	c.logger.Debug("SESSION_RESET", "from", prev.String(), "deadline", c.deadline)
}

func (c *Controller) onWarningFire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateActive {
		return
	}
	c.warnTimer = nil
	c.expireTimer = c.clock.AfterFunc(c.lead, func() { c.onExpireFire(gen) })
	c.transitionLocked(StateWarning)
	c.dialog.Show(c.remainingLocked())

	c.logger.Info("SESSION_WARNING", "expires_in", c.remainingLocked())
}

func (c *Controller) onExpireFire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateWarning {
		return
	}
	c.expireTimer = nil
	c.deadline = time.Time{}
	c.transitionLocked(StateExpired)

	c.logger.Info("SESSION_EXPIRED", "logout_url", c.logoutURL)
	c.navigator.Navigate(c.logoutURL)
}

func (c *Controller) stopTimersLocked() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.expireTimer != nil {
		c.expireTimer.Stop()
		c.expireTimer = nil
	}
}

func (c *Controller) transitionLocked(to State) {
	change := StateChange{
		From:     c.state,
		To:       to,
		At:       c.clock.Now(),
		Deadline: c.deadline,
	}
	c.state = to
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (c *Controller) remainingLocked() time.Duration {
	if c.deadline.IsZero() {
		return 0
	}
	remaining := c.deadline.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// QUERIES
// =============================================================================

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsWarning reports whether the warning dialog is showing. Other parts of
// the host use it to suppress their own prompts.
func (c *Controller) IsWarning() bool {
	return c.State() == StateWarning
}

// Deadline returns the expected expiry time, zero when nothing is pending.
func (c *Controller) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return time.Time{}
	}
	return c.deadline
}

// Remaining returns the time until expiry.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return c.remainingLocked()
}

// Timeout returns the configured session lifetime.
func (c *Controller) Timeout() time.Duration { return c.timeout }

// WarningLead returns the configured warning lead.
func (c *Controller) WarningLead() time.Duration { return c.lead }

// LogoutURL returns the navigation target used on expiry.
func (c *Controller) LogoutURL() string { return c.logoutURL }

// Policy returns the activity policy.
func (c *Controller) Policy() ActivityPolicy { return c.policy }

// Subscribe returns a channel of state changes and a function that ends
// the subscription. Delivery never blocks the Controller: a full channel
// drops the change and the subscriber can fall back to State.
func (c *Controller) Subscribe() (<-chan StateChange, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan StateChange, 8)
	if c.state == StateStopped {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}
