// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

// recordingFataler captures the failure message and unwinds with a
// panic, the way t.Fatalf unwinds with runtime.Goexit.
type recordingFataler struct {
	message string
}

func (r *recordingFataler) Helper() {}

func (r *recordingFataler) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(r)
}

func expectFatal(t *testing.T, run func(Fataler)) string {
	t.Helper()
	recorder := &recordingFataler{}
	func() {
		defer func() {
			if recovered := recover(); recovered != recorder {
				t.Fatalf("recovered %v, want a Fatalf", recovered)
			}
		}()
		run(recorder)
	}()
	return recorder.message
}

func TestRequireReceive(t *testing.T) {
	values := make(chan int, 1)
	values <- 7
	if got := RequireReceive[int](t, values, time.Second, "reading"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	close(values)
	message := expectFatal(t, func(f Fataler) {
		RequireReceive[int](f, values, time.Second, "reading %s", "values")
	})
	if message != "channel closed before a value arrived: reading values" {
		t.Errorf("closed message = %q", message)
	}

	message = expectFatal(t, func(f Fataler) {
		RequireReceive[int](f, make(chan int), time.Millisecond)
	})
	if message != "nothing received after 1ms: (no message)" {
		t.Errorf("timeout message = %q", message)
	}
}

func TestRequireClosed(t *testing.T) {
	ready := make(chan struct{})
	close(ready)
	RequireClosed(t, ready, time.Second, "ready")

	message := expectFatal(t, func(f Fataler) {
		RequireClosed(f, make(chan struct{}), time.Millisecond, 42)
	})
	if message != "channel still open after 1ms: 42" {
		t.Errorf("message = %q", message)
	}
}
