// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// shell.go - Line-mode client with input history.
//
// The shell runs the same countdown as the console. Warnings are printed
// as they happen; "ack" acknowledges. On expiry the shell follows the
// logout URL and exits at the next prompt.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/autologout-tui/internal/config"
	"github.com/jeranaias/autologout-tui/internal/keepalive"
	"github.com/jeranaias/autologout-tui/internal/portal"
	"github.com/jeranaias/autologout-tui/internal/session"
	"github.com/jeranaias/autologout-tui/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber).
			Bold(true)

	expiredStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)
)

// MaxBodyPreview bounds the body printed by "get".
const MaxBodyPreview = 2000

const shellHelp = `Commands:
  get <path>   Request a server path
  page         Show the server page
  poll         Background poll
  status       Show the countdown
  ack          Acknowledge the warning
  logout       Log out now
  help         Show this help
  quit         Leave without logging out`

// =============================================================================
// SHELL
// =============================================================================

type shellEventKind int

const (
	eventWarning shellEventKind = iota
	eventCleared
	eventNavigate
)

type shellEvent struct {
	kind      shellEventKind
	remaining time.Duration
	url       string
}

// Shell is the line-mode host. It implements session.Dialog and
// session.Navigator by queueing events for Watch.
type Shell struct {
	client  *portal.Client
	opts    portal.ConnectOptions
	sess    *portal.Session
	timeout time.Duration
	logger  *slog.Logger

	outMu    sync.Mutex
	out      io.Writer
	markdown bool

	events  chan shellEvent
	expired atomic.Bool
}

// NewShell creates a shell writing to out.
func NewShell(client *portal.Client, opts portal.ConnectOptions, out io.Writer, timeout time.Duration, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = portal.DefaultTimeout
	}
	s := &Shell{
		client:  client,
		timeout: timeout,
		logger:  logger,
		out:     out,
		events:  make(chan shellEvent, 8),
	}
	opts.Dialog = s
	opts.Navigator = s
	if opts.Logger == nil {
		opts.Logger = logger
	}
	s.opts = opts
	return s
}

// Show implements session.Dialog.
func (s *Shell) Show(remaining time.Duration) {
	s.push(shellEvent{kind: eventWarning, remaining: remaining})
}

// Hide implements session.Dialog.
func (s *Shell) Hide() {
	s.push(shellEvent{kind: eventCleared})
}

// Navigate implements session.Navigator.
func (s *Shell) Navigate(url string) {
	s.push(shellEvent{kind: eventNavigate, url: url})
}

// push never blocks; the controller calls in with its lock held.
func (s *Shell) push(ev shellEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("SHELL_EVENT_DROPPED", "kind", int(ev.kind))
	}
}

// Connect logs in and starts the countdown.
func (s *Shell) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.client.Connect(ctx, s.opts)
	if err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// Session returns the connected session.
func (s *Shell) Session() *portal.Session { return s.sess }

// Expired reports whether the shell has logged out.
func (s *Shell) Expired() bool { return s.expired.Load() }

// Close stops the countdown.
func (s *Shell) Close() {
	if s.sess != nil {
		s.sess.Close()
	}
}

// Watch handles controller events until ctx is done.
func (s *Shell) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Shell) handleEvent(ctx context.Context, ev shellEvent) {
	switch ev.kind {
	case eventWarning:
		s.println(warningStyle.Render(fmt.Sprintf(
			"[!] You will be logged out in %s due to inactivity. Type 'ack' to keep working.",
			session.FormatDuration(ev.remaining))))
	case eventCleared:
		s.println(infoStyle.Render("[*] Warning cleared."))
	case eventNavigate:
		s.logout(ctx, ev.url, "Session expired")
	}
}

// logout follows url once and marks the shell expired.
func (s *Shell) logout(ctx context.Context, url, reason string) {
	if !s.expired.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Logout(ctx, url); err != nil {
		s.logger.Warn("LOGOUT_FAILED", "url", url, "error", err)
	}
	s.println(expiredStyle.Render("[X] " + reason + ": you have been logged out. Press Enter to exit."))
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return s.Expired()
	}
	if s.Expired() {
		s.println("Session expired.")
		return true
	}

	cmd, rest := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		s.println(shellHelp)

	case "status":
		s.printStatus()

	case "ack":
		ctrl := s.sess.Controller
		if ctrl.IsWarning() {
			ctrl.Acknowledge()
			s.println("Session extended.")
			return false
		}
		ctrl.Acknowledge()
		s.refresh(ctx)

	case "get":
		if len(rest) != 1 {
			s.println("usage: get <path>")
			return false
		}
		s.get(ctx, rest[0])

	case "page":
		s.page(ctx)

	case "poll":
		s.poll(ctx)

	case "logout":
		ctrl := s.sess.Controller
		ctrl.Stop()
		s.logout(ctx, ctrl.LogoutURL(), "Logged out by request")
		return true

	default:
		s.printf("Unknown command %q. Type 'help' for commands.\n", cmd)
	}
	return s.Expired()
}

func (s *Shell) printStatus() {
	ctrl := s.sess.Controller
	s.printf("State:        %s\n", ctrl.State())
	s.printf("Logs out in:  %s\n", session.FormatDuration(ctrl.Remaining()))
	s.printf("Timeout:      %s\n", session.FormatDuration(ctrl.Timeout()))
	s.printf("Warning lead: %s\n", session.FormatDuration(ctrl.WarningLead()))
	s.printf("Policy:       %s\n", ctrl.Policy())
	s.printf("Logout URL:   %s\n", ctrl.LogoutURL())
}

// refresh extends the server session on request. Refreshes closer
// together than the keep-alive min interval are skipped.
func (s *Shell) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.sess.KeepAlive.PingContext(ctx)
	var statusErr *keepalive.StatusError
	switch {
	case err == nil:
		s.println("No warning pending; server session refreshed.")
	case errors.Is(err, keepalive.ErrThrottled):
		s.println("No warning pending; server session refreshed recently.")
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized:
		s.rejected(ctx)
	default:
		s.printf("Error: %v\n", err)
	}
}

func (s *Shell) get(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, path)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if resp.Status == http.StatusUnauthorized {
		s.rejected(ctx)
		return
	}

	header := fmt.Sprintf("HTTP %d", resp.Status)
	if resp.ExpiresIn != "" {
		header += fmt.Sprintf(" (server session: %ss)", resp.ExpiresIn)
	}
	s.println(infoStyle.Render(header))

	body := strings.TrimSpace(resp.Body)
	if len(body) > MaxBodyPreview {
		body = body[:MaxBodyPreview] + "..."
	}
	if body != "" {
		s.println(body)
	}
}

func (s *Shell) page(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.client.Page(ctx)
	if errors.Is(err, portal.ErrUnauthorized) {
		s.rejected(ctx)
		return
	}
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if s.markdown {
		s.println(renderMarkdown(p.Markdown, GetTerminalWidth()))
		return
	}
	s.println(p.Markdown)
}

func (s *Shell) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.client.Poll(ctx)
	if errors.Is(err, portal.ErrUnauthorized) {
		s.rejected(ctx)
		return
	}
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("Server session: %s left\n", session.FormatDuration(time.Duration(p.RemainingSecs)*time.Second))
}

// rejected handles a 401 from the server: the server session is gone.
func (s *Shell) rejected(ctx context.Context) {
	ctrl := s.sess.Controller
	ctrl.Stop()
	s.logout(ctx, ctrl.LogoutURL(), "Server ended the session")
}

func (s *Shell) println(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, text)
}

func (s *Shell) printf(format string, a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, a...)
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// COMMAND
// =============================================================================

// HandleShell runs the line-mode client.
func HandleShell(args Args, stdout io.Writer) error {
	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := portal.New(cfg.Client.ServerURL, cfg.Client.RequestTimeout(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh := NewShell(client, connectOptions(cfg, logger), stdout, cfg.Client.RequestTimeout(), logger)
	sh.markdown = IsStdoutTTY()
	if err := sh.Connect(ctx); err != nil {
		return err
	}
	defer sh.Close()
	go sh.Watch(ctx)

	ctrl := sh.Session().Controller
	sh.printf("Logged in to %s as %s. Idle timeout %s, warning %s before logout.\n",
		serverLabel(cfg.Client.ServerURL), sh.Session().Login.User,
		session.FormatDuration(ctrl.Timeout()), session.FormatDuration(ctrl.WarningLead()))
	sh.println("Type 'help' for commands.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := shellHistoryPath()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt("autologout> ")
		if sh.Expired() {
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if sh.Exec(ctx, input) {
			return nil
		}
	}
}

// shellHistoryPath returns the history file in the config directory.
func shellHistoryPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "shell_history")
}
