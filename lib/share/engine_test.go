// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSink forwards every delivered payload to a channel. When
// gate is non-nil each Deliver blocks until a value arrives on it.
type recordingSink struct {
	payloads chan Payload
	gate     chan struct{}
	err      error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{payloads: make(chan Payload, 16)}
}

func (s *recordingSink) Deliver(ctx context.Context, payload Payload) error {
	s.payloads <- payload
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

type harness struct {
	t      *testing.T
	clock  *clock.FakeClock
	sink   *recordingSink
	engine *Engine
	polls  chan time.Time
}

func newHarness(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	sink := newRecordingSink()
	engine, err := NewEngine(Config{
		Sink:      sink,
		Clock:     fake,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Heartbeat: heartbeat,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	polls := make(chan time.Time, 64)
	engine.pollHook = func(now time.Time) {
		select {
		case polls <- now:
		default:
		}
	}
	t.Cleanup(engine.Close)
	return &harness{t: t, clock: fake, sink: sink, engine: engine, polls: polls}
}

// advance moves the fake clock forward and waits until the poll loop
// has run at the new time.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	target := h.clock.Now()
	for {
		observed := testutil.RequireReceive(h.t, h.polls, 5*time.Second, "waiting for poll at %v", target)
		if !observed.Before(target) {
			return
		}
	}
}

func (h *harness) delivered() Payload {
	h.t.Helper()
	return testutil.RequireReceive(h.t, h.sink.payloads, 5*time.Second, "waiting for delivery")
}

func (h *harness) requireNoDelivery() {
	h.t.Helper()
	select {
	case payload := <-h.sink.payloads:
		h.t.Fatalf("unexpected delivery: %+v", payload)
	default:
	}
}

func intPointer(value int) *int { return &value }

func TestRapidSubmitsEmitOnlyLatest(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "ASIA/SGP", &region.Position{X: 0.1, Y: 0.1}, intPointer(1))
	h.engine.SubmitLocalState("hyuna", "ASIA/SGP", &region.Position{X: 0.2, Y: 0.2}, intPointer(2))
	last := h.engine.SubmitLocalState("hyuna", "ASIA/SGP", &region.Position{X: 0.3, Y: 0.3}, intPointer(3))

	h.advance(DefaultPollInterval)
	got, ok := h.delivered().(Snapshot)
	if !ok {
		t.Fatal("delivered payload is not a Snapshot")
	}
	if got.Position.X != 0.3 || *got.PartySize != 3 || got.Timestamp != last.Timestamp {
		t.Errorf("delivered %+v, want the last submission", got)
	}

	// Further polls inside the heartbeat interval with an empty
	// mailbox emit nothing.
	for range 5 {
		h.advance(DefaultPollInterval)
	}
	if emitted := h.engine.Status().Emitted; emitted != 1 {
		t.Errorf("Emitted = %d, want 1", emitted)
	}
	h.requireNoDelivery()
}

func TestHeartbeatSpacing(t *testing.T) {
	h := newHarness(t, MinHeartbeat)
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	first := h.delivered()

	h.engine.SubmitLocalState("hyuna", "B", nil, nil)
	h.advance(time.Second)
	if emitted := h.engine.Status().Emitted; emitted != 1 {
		t.Fatalf("emitted inside the heartbeat interval: Emitted = %d", emitted)
	}

	h.advance(4 * time.Second)
	second, _ := h.delivered().(Snapshot)
	if second.Region != "B" {
		t.Errorf("second emission region = %q, want B", second.Region)
	}
	if second.Time().Before(first.Time()) {
		t.Errorf("emission time went backwards: %v then %v", first.Time(), second.Time())
	}

	status := h.engine.Status()
	if got := status.LastEmit.Sub(epoch); got != 5200*time.Millisecond {
		t.Errorf("LastEmit offset = %v, want 5.2s", got)
	}
}

func TestConcurrentSubmitsWhilePolling(t *testing.T) {
	h := newHarness(t, MinHeartbeat)
	h.engine.Start(context.Background())

	const (
		producers = 4
		perWorker = 200
	)
	var wg sync.WaitGroup
	for worker := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				position := &region.Position{X: float64(worker) / producers, Y: float64(i) / perWorker}
				h.engine.SubmitLocalState("hyuna", "ASIA/SGP", position, intPointer(worker+1))
				if status := h.engine.Status(); status.Submitted == 0 {
					t.Errorf("Status after a submit reports nothing submitted")
					return
				}
			}
		}()
	}
	for range 30 {
		h.advance(DefaultPollInterval)
	}
	wg.Wait()

	final := h.engine.SubmitLocalState("final", "EU/FRA", nil, nil)
	h.advance(MinHeartbeat)

	status := h.engine.Status()
	if status.Submitted != producers*perWorker+1 {
		t.Errorf("Submitted = %d, want %d", status.Submitted, producers*perWorker+1)
	}
	if !status.Enabled || status.AutoOffs != 0 {
		t.Errorf("engine switched off under concurrent load: %+v", status)
	}

	// Earlier emissions carry whichever producer submitted last; the
	// final submission is delivered after them.
	for {
		got, ok := h.delivered().(Snapshot)
		if ok && got.Label == final.Label {
			if got.Region != final.Region || got.Timestamp != final.Timestamp {
				t.Errorf("final delivery = %+v, want %+v", got, final)
			}
			break
		}
	}
}

func TestEmptyMailboxDoesNotEmit(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())

	h.advance(DefaultPollInterval)
	h.advance(DefaultHeartbeat)

	status := h.engine.Status()
	if status.Emitted != 0 || !status.LastEmit.IsZero() {
		t.Errorf("empty mailbox emitted: %+v", status)
	}
	if !status.Enabled || !status.Running {
		t.Errorf("engine stopped on empty mailbox: %+v", status)
	}
}

func TestNoReceiveAutoOff(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered()

	h.engine.SubmitLocalState("hyuna", "stale", nil, nil)
	h.advance(DefaultNoReceiveTimeout + time.Second)

	status := h.engine.Status()
	if status.Enabled || status.Running {
		t.Fatalf("engine still active after no-receive timeout: %+v", status)
	}
	if status.LastAutoOff != AutoOffNoReceive || status.AutoOffs != 1 {
		t.Errorf("auto-off = %q (%d), want %q", status.LastAutoOff, status.AutoOffs, AutoOffNoReceive)
	}
	if status.Emitted != 1 || !status.Pending {
		t.Errorf("stale payload emitted: %+v", status)
	}
	if pending := h.clock.PendingCount(); pending != 0 {
		t.Errorf("poll ticker still scheduled: %d pending timers", pending)
	}
	h.requireNoDelivery()
}

func TestNoReceiveAutoOffWithoutAnySubmission(t *testing.T) {
	h := newHarness(t, 0)
	h.clock.Advance(DefaultNoReceiveTimeout + time.Second)
	h.engine.Start(context.Background())
	h.advance(DefaultPollInterval)

	if h.engine.Enabled() {
		t.Fatal("engine started long after construction stayed enabled without submissions")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())
	h.engine.SubmitLocalState("hyuna", "A", nil, nil)

	h.engine.Stop()
	h.engine.Stop()
	h.advance(DefaultPollInterval)

	status := h.engine.Status()
	if status.Enabled || status.Running || status.Emitted != 0 {
		t.Fatalf("after Stop: %+v", status)
	}
	if pending := h.clock.PendingCount(); pending != 0 {
		t.Errorf("poll ticker still scheduled: %d pending timers", pending)
	}
}

func TestStartWhileRunningDoesNotDuplicate(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())
	h.engine.Start(context.Background())
	if pending := h.clock.PendingCount(); pending != 1 {
		t.Fatalf("PendingCount = %d, want a single poll ticker", pending)
	}

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered()

	h.engine.Start(context.Background())
	h.engine.SubmitLocalState("hyuna", "B", nil, nil)
	h.advance(DefaultPollInterval)
	h.advance(DefaultPollInterval)

	if emitted := h.engine.Status().Emitted; emitted != 1 {
		t.Errorf("Emitted = %d, want 1 within one heartbeat", emitted)
	}
	h.requireNoDelivery()
}

func TestStopThenStartBeforePollKeepsLoop(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())
	h.engine.Stop()
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered()

	if status := h.engine.Status(); !status.Running || !status.Enabled {
		t.Errorf("loop did not survive stop/start: %+v", status)
	}
}

func TestStartRestartsAfterAutoOff(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())
	h.advance(DefaultNoReceiveTimeout + time.Second)
	if h.engine.Enabled() {
		t.Fatal("expected auto-off")
	}

	h.engine.SubmitLocalState("hyuna", "fresh", nil, nil)
	h.engine.Start(context.Background())
	h.advance(DefaultPollInterval)
	got, _ := h.delivered().(Snapshot)
	if got.Region != "fresh" {
		t.Errorf("delivered %+v after restart", got)
	}
	if h.engine.Status().LastAutoOff != AutoOffNoReceive {
		t.Error("restart cleared the auto-off history")
	}
}

func TestDeliveryFailureIsCountedAndDropped(t *testing.T) {
	h := newHarness(t, MinHeartbeat)
	h.sink.err = errors.New("disk full")
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered()

	// The single worker delivers in order, so once the second delivery
	// starts the first has been accounted for.
	h.engine.SubmitLocalState("hyuna", "B", nil, nil)
	h.advance(MinHeartbeat)
	h.delivered()

	status := h.engine.Status()
	if status.Failed < 1 || status.Delivered != 0 {
		t.Errorf("Failed = %d Delivered = %d", status.Failed, status.Delivered)
	}
	if !status.Enabled {
		t.Error("a failed delivery disabled the engine")
	}
}

func TestPayloadHandedOffWhileStoppingIsDropped(t *testing.T) {
	h := newHarness(t, MinHeartbeat)
	h.sink.gate = make(chan struct{})
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered() // worker now blocked inside Deliver(A)

	h.engine.SubmitLocalState("hyuna", "B", nil, nil)
	h.advance(MinHeartbeat) // B handed off to the busy worker
	h.engine.Stop()
	h.sink.gate <- struct{}{}

	h.engine.Close()
	h.requireNoDelivery()
	status := h.engine.Status()
	if status.Emitted != 2 || status.Dropped != 1 || status.Delivered != 1 {
		t.Errorf("Emitted=%d Dropped=%d Delivered=%d, want 2/1/1",
			status.Emitted, status.Dropped, status.Delivered)
	}
}

func TestCloseCancelsInFlightDelivery(t *testing.T) {
	h := newHarness(t, 0)
	h.sink.gate = make(chan struct{})
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.advance(DefaultPollInterval)
	h.delivered()

	h.engine.Close()
	if status := h.engine.Status(); status.Failed != 1 {
		t.Errorf("Failed = %d, want the cancelled delivery counted", status.Failed)
	}

	// Start after Close is a no-op.
	h.engine.Start(context.Background())
	if h.engine.Status().Running {
		t.Error("closed engine started a loop")
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	h.engine.Start(ctx)
	cancel()
	testutil.RequireReceive(t, h.polls, 5*time.Second, "waiting for loop exit")

	if status := h.engine.Status(); status.Running || status.Enabled {
		t.Fatalf("loop survived context cancellation: %+v", status)
	}

	h.engine.SubmitLocalState("hyuna", "A", nil, nil)
	h.engine.Start(context.Background())
	h.advance(DefaultPollInterval)
	h.delivered()
}

func TestSubmitHeartbeat(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.Start(context.Background())

	h.engine.SubmitLocalState("hyuna", "A", &region.Position{X: 0.5, Y: 0.5}, nil)
	heartbeat := NewHeartbeat("hyuna", "A", "eth0", "1.2.3", h.clock.Now())
	h.engine.Submit(heartbeat)
	h.engine.Submit(nil)

	if status := h.engine.Status(); status.LastPosition != nil {
		t.Errorf("heartbeat kept position %+v", status.LastPosition)
	}

	h.advance(DefaultPollInterval)
	got, ok := h.delivered().(Heartbeat)
	if !ok || got.Interface != "eth0" || got.Type != KindHeartbeat {
		t.Errorf("delivered %+v", got)
	}
}

// jumpClock advances by step on every Now call, modelling a submission
// that stalls between its own clock reads.
type jumpClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *jumpClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *jumpClock) After(time.Duration) <-chan time.Time { panic("unused") }
func (c *jumpClock) NewTicker(time.Duration) *clock.Ticker { panic("unused") }
func (c *jumpClock) Sleep(time.Duration)                   { panic("unused") }

func newEngineWithClock(t *testing.T, clk clock.Clock) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		Sink:   newRecordingSink(),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestStationaryCheckComparesAgainstUpdatedReceive(t *testing.T) {
	fake := clock.Fake(epoch)
	engine := newEngineWithClock(t, fake)
	engine.SetEnabled(true)

	position := &region.Position{X: 0.4, Y: 0.6}
	engine.SubmitLocalState("hyuna", "A", position, nil)
	fake.Advance(DefaultStationaryTimeout + time.Hour)
	engine.SubmitLocalState("hyuna", "A", position, nil)

	// The receive timestamp is refreshed before the comparison, so a
	// long gap between submissions does not trigger the auto-off.
	if !engine.Enabled() {
		t.Fatal("stationary auto-off fired on the gap between submissions")
	}
}

func TestStationaryAutoOffWhenSubmissionStalls(t *testing.T) {
	stalling := &jumpClock{now: epoch, step: DefaultStationaryTimeout + time.Second}
	engine := newEngineWithClock(t, stalling)
	engine.SetEnabled(true)

	engine.SubmitLocalState("hyuna", "A", &region.Position{X: 0.1, Y: 0.2}, nil)
	engine.SubmitLocalState("hyuna", "A", &region.Position{X: 0.3, Y: 0.2}, nil)
	if !engine.Enabled() {
		t.Fatal("moving subject triggered the stationary auto-off")
	}

	engine.SubmitLocalState("hyuna", "A", &region.Position{X: 0.3, Y: 0.2}, nil)
	status := engine.Status()
	if status.Enabled || status.LastAutoOff != AutoOffStationary {
		t.Fatalf("identical position with stalled submission: %+v", status)
	}
}

func TestStationaryIgnoresAbsentPositions(t *testing.T) {
	stalling := &jumpClock{now: epoch, step: DefaultStationaryTimeout + time.Second}
	engine := newEngineWithClock(t, stalling)
	engine.SetEnabled(true)

	engine.SubmitLocalState("hyuna", "A", nil, nil)
	engine.SubmitLocalState("hyuna", "A", nil, nil)
	if !engine.Enabled() {
		t.Fatal("absent positions counted as stationary")
	}
}

func TestClampHeartbeat(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultHeartbeat},
		{time.Second, MinHeartbeat},
		{MinHeartbeat, MinHeartbeat},
		{30 * time.Second, 30 * time.Second},
		{-time.Second, MinHeartbeat},
	}
	for _, test := range tests {
		if got := ClampHeartbeat(test.in); got != test.want {
			t.Errorf("ClampHeartbeat(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestNewEngineRequiresSinkAndClock(t *testing.T) {
	if _, err := NewEngine(Config{Clock: clock.Fake(epoch)}); err == nil {
		t.Error("engine without sink accepted")
	}
	if _, err := NewEngine(Config{Sink: newRecordingSink()}); err == nil {
		t.Error("engine without clock accepted")
	}
}
