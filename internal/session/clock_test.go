// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"
	"time"
)

// =============================================================================
// MANUAL CLOCK TESTS
// =============================================================================

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock(epoch)
	var order []string

	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	c.Advance(5 * time.Second)

	if got := len(order); got != 3 {
		t.Fatalf("fired %d callbacks, want 3", got)
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
	if !c.Now().Equal(epoch.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want epoch+5s", c.Now())
	}
}

func TestManualClock_CallbackSeesItsDeadline(t *testing.T) {
	c := NewManualClock(epoch)
	var at time.Time
	c.AfterFunc(10*time.Second, func() { at = c.Now() })

	c.Advance(time.Minute)

	if !at.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("callback ran at %v, want epoch+10s", at)
	}
}

func TestManualClock_ChainedTimersWithinWindow(t *testing.T) {
	c := NewManualClock(epoch)
	fired := 0
	c.AfterFunc(time.Second, func() {
		fired++
		c.AfterFunc(time.Second, func() { fired++ })
	})

	c.Advance(2 * time.Second)

	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestManualClock_Stop(t *testing.T) {
	c := NewManualClock(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop() should report true")
	}
	if timer.Stop() {
		t.Error("second Stop() should report false")
	}

	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if _, ok := c.NextDeadline(); ok {
		t.Error("NextDeadline() should be empty")
	}
}

func TestManualClock_StopAfterFire(t *testing.T) {
	c := NewManualClock(epoch)
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)

	if timer.Stop() {
		t.Error("Stop() after firing should report false")
	}
}

func TestSystemClock_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	SystemClock().AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system clock callback did not fire")
	}
}

// =============================================================================
// STATE TESTS
// =============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateActive, "ACTIVE"},
		{StateWarning, "WARNING"},
		{StateExpired, "EXPIRED"},
		{StateStopped, "STOPPED"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestParseActivityPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ActivityPolicy
		wantErr bool
	}{
		{"", PolicyAll, false},
		{"all", PolicyAll, false},
		{"ALL", PolicyAll, false},
		{"user", PolicyUserOnly, false},
		{" user-only ", PolicyUserOnly, false},
		{"sometimes", PolicyAll, true},
	}
	for _, tt := range tests {
		got, err := ParseActivityPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseActivityPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseActivityPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{3 * time.Minute, "3m"},
		{27*time.Minute + 5*time.Second, "27m 5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
