// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/autologout-tui/internal/session"
)

// ActivitySink receives one signal per completed exchange.
// *session.Controller satisfies it.
type ActivitySink interface {
	NotifyActivity(kind session.ActivityKind)
}

// SinkFunc adapts a function to ActivitySink.
type SinkFunc func(kind session.ActivityKind)

func (f SinkFunc) NotifyActivity(kind session.ActivityKind) { f(kind) }

// =============================================================================
// BACKGROUND TAGGING
// =============================================================================

type backgroundKey struct{}

// WithBackground marks requests made with ctx as background traffic.
func WithBackground(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundKey{}, true)
}

// IsBackground reports whether ctx was marked with WithBackground.
func IsBackground(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundKey{}).(bool)
	return v
}

// KindOf returns the activity kind a request reports.
func KindOf(req *http.Request) session.ActivityKind {
	if IsBackground(req.Context()) {
		return session.ActivityBackground
	}
	return session.ActivityUser
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport is an http.RoundTripper that reports every completed exchange
// to Sink. A response with any status is an exchange; a transport error
// is not. The exchange completes when the response body reaches EOF or is
// closed, whichever comes first.
type Transport struct {
	// Base performs the request (default: http.DefaultTransport)
	Base http.RoundTripper
	// Sink receives activity; nil disables reporting
	Sink ActivitySink
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.Sink == nil {
		return resp, nil
	}

	sink, kind := t.Sink, KindOf(req)
	notify := func() { sink.NotifyActivity(kind) }
	if resp.Body == nil || resp.StatusCode == http.StatusSwitchingProtocols {
		notify()
		return resp, nil
	}
	resp.Body = &activityBody{ReadCloser: resp.Body, done: notify}
	return resp, nil
}

// activityBody calls done once, at EOF or Close.
type activityBody struct {
	io.ReadCloser
	once sync.Once
	done func()
}

func (b *activityBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.once.Do(b.done)
	}
	return n, err
}

func (b *activityBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.done)
	return err
}

// =============================================================================
// RELAY
// =============================================================================

// Relay is an ActivitySink whose target is attached later. Signals that
// arrive before Attach are dropped. The login exchange happens before the
// controller exists, so hosts route the transport through a Relay.
type Relay struct {
	target atomic.Pointer[sinkBox]
}

type sinkBox struct{ sink ActivitySink }

// Attach sets the sink that receives subsequent signals. nil detaches.
func (r *Relay) Attach(sink ActivitySink) {
	if sink == nil {
		r.target.Store(nil)
		return
	}
	r.target.Store(&sinkBox{sink: sink})
}

// NotifyActivity forwards to the attached sink, if any.
func (r *Relay) NotifyActivity(kind session.ActivityKind) {
	if box := r.target.Load(); box != nil {
		box.sink.NotifyActivity(kind)
	}
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// NewHTTPClient returns a client with a cookie jar whose transport reports
// activity to sink. Every request a host makes should go through it so
// that the session cookie and the activity signal are shared.
func NewHTTPClient(sink ActivitySink, timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{
		Transport: &Transport{Sink: sink},
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}
