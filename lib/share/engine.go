// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

// Engine timing defaults.
const (
	DefaultHeartbeat         = 120 * time.Second
	MinHeartbeat             = 5 * time.Second
	DefaultNoReceiveTimeout  = 600 * time.Second
	DefaultStationaryTimeout = 1800 * time.Second
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultDeliverTimeout    = 10 * time.Second
)

// Auto-off reasons reported in [Status].
const (
	AutoOffNoReceive  = "no-receive"
	AutoOffStationary = "stationary"
)

// Config configures an Engine. Zero durations select the defaults.
type Config struct {
	Sink   Sink
	Clock  clock.Clock
	Logger *slog.Logger

	// Heartbeat is the minimum spacing between emissions. Values below
	// MinHeartbeat are raised to it.
	Heartbeat time.Duration

	NoReceiveTimeout  time.Duration
	StationaryTimeout time.Duration
	PollInterval      time.Duration

	// DeliverTimeout bounds a single Sink.Deliver call.
	DeliverTimeout time.Duration
}

// ClampHeartbeat applies the heartbeat default and floor.
func ClampHeartbeat(heartbeat time.Duration) time.Duration {
	if heartbeat == 0 {
		return DefaultHeartbeat
	}
	if heartbeat < MinHeartbeat {
		return MinHeartbeat
	}
	return heartbeat
}

// Status is a copy of the engine's relay state and counters.
type Status struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`
	Pending bool `json:"pending"`

	LastSubmit   time.Time        `json:"last_submit"`
	LastEmit     time.Time        `json:"last_emit"`
	LastPosition *region.Position `json:"last_position,omitempty"`

	// LastAutoOff is the reason for the most recent self-disable, or
	// empty if the engine never disabled itself.
	LastAutoOff string `json:"last_auto_off,omitempty"`

	Heartbeat time.Duration `json:"heartbeat"`

	Submitted uint64 `json:"submitted"`
	Emitted   uint64 `json:"emitted"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	AutoOffs  uint64 `json:"auto_offs"`
}

// Engine is the relay loop. Construct with NewEngine and release with
// Close.
type Engine struct {
	sink   Sink
	clock  clock.Clock
	logger *slog.Logger

	heartbeat         time.Duration
	noReceiveTimeout  time.Duration
	stationaryTimeout time.Duration
	pollInterval      time.Duration
	deliverTimeout    time.Duration

	// ctx bounds deliveries; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// deliveries is the hand-off slot between the poll loop and the
	// delivery worker.
	deliveries chan Payload
	workerOnce sync.Once
	workerDone chan struct{}

	// loops tracks running poll goroutines for Close.
	loops sync.WaitGroup

	mu           sync.Mutex
	enabled      bool
	running      bool
	pending      Payload
	lastSubmit   time.Time
	lastPosition *region.Position
	lastEmit     time.Time
	lastAutoOff  string

	submitted atomic.Uint64
	emitted   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	autoOffs  atomic.Uint64

	// pollHook is called after every poll with the time it observed.
	// Tests use it to synchronize with the loop goroutine.
	pollHook func(time.Time)
}

// NewEngine creates a disabled engine. The receive clock starts at
// construction, so an engine that is started without any submission
// disables itself after the no-receive timeout.
func NewEngine(config Config) (*Engine, error) {
	if config.Sink == nil {
		return nil, errors.New("share: engine requires a sink")
	}
	if config.Clock == nil {
		return nil, errors.New("share: engine requires a clock")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		sink:              config.Sink,
		clock:             config.Clock,
		logger:            logger,
		heartbeat:         ClampHeartbeat(config.Heartbeat),
		noReceiveTimeout:  durationOr(config.NoReceiveTimeout, DefaultNoReceiveTimeout),
		stationaryTimeout: durationOr(config.StationaryTimeout, DefaultStationaryTimeout),
		pollInterval:      durationOr(config.PollInterval, DefaultPollInterval),
		deliverTimeout:    durationOr(config.DeliverTimeout, DefaultDeliverTimeout),
		ctx:               ctx,
		cancel:            cancel,
		deliveries:        make(chan Payload, 1),
		workerDone:        make(chan struct{}),
	}
	engine.lastSubmit = engine.clock.Now()
	return engine, nil
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// SubmitLocalState builds a snapshot stamped with the current time,
// replaces the pending payload with it and returns it.
func (e *Engine) SubmitLocalState(label, regionLabel string, position *region.Position, partySize *int) Snapshot {
	snapshot := Snapshot{
		Label:     label,
		Region:    regionLabel,
		Position:  copyPosition(position),
		PartySize: copyInt(partySize),
		Timestamp: e.clock.Now().Unix(),
	}
	e.submit(snapshot)
	return snapshot
}

// Submit replaces the pending payload with an externally built one,
// such as a Heartbeat. Receive bookkeeping is the same as for
// SubmitLocalState; non-snapshot payloads have no position.
func (e *Engine) Submit(payload Payload) {
	if payload == nil {
		return
	}
	e.submit(payload)
}

func (e *Engine) submit(payload Payload) {
	position := positionOf(payload)

	e.mu.Lock()
	defer e.mu.Unlock()

	stationary := position != nil && e.lastPosition != nil && *position == *e.lastPosition
	e.lastPosition = copyPosition(position)
	e.lastSubmit = e.clock.Now()
	if stationary && e.clock.Now().Sub(e.lastSubmit) > e.stationaryTimeout {
		e.disableLocked(AutoOffStationary)
	}
	e.pending = payload
	e.submitted.Add(1)
}

// Start enables the engine and starts the poll loop if it is not
// already running. Starting a running engine only re-enables it. The
// loop exits when the engine is disabled, ctx is cancelled or Close
// is called. Start after Close does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return
	}
	e.workerOnce.Do(func() {
		go e.deliverLoop()
	})

	e.enabled = true
	if e.running {
		return
	}
	e.running = true

	ticker := e.clock.NewTicker(e.pollInterval)
	e.loops.Add(1)
	go e.run(ctx, ticker)
	e.logger.Info("relay started", "heartbeat", e.heartbeat)
}

// Stop disables the engine. The poll loop exits at its next poll and
// a payload already handed to the delivery worker is dropped. Stop is
// idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		e.logger.Info("relay stopped")
	}
	e.enabled = false
}

// SetEnabled sets the enabled flag without starting a loop. Disabling
// has the same effect as Stop; enabling a stopped engine does not
// start polling (use Start).
func (e *Engine) SetEnabled(enabled bool) {
	if !enabled {
		e.Stop()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
}

// Enabled reports the enabled flag.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Status returns a copy of the relay state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Enabled:      e.enabled,
		Running:      e.running,
		Pending:      e.pending != nil,
		LastSubmit:   e.lastSubmit,
		LastEmit:     e.lastEmit,
		LastPosition: copyPosition(e.lastPosition),
		LastAutoOff:  e.lastAutoOff,
		Heartbeat:    e.heartbeat,
		Submitted:    e.submitted.Load(),
		Emitted:      e.emitted.Load(),
		Delivered:    e.delivered.Load(),
		Failed:       e.failed.Load(),
		Dropped:      e.dropped.Load(),
		AutoOffs:     e.autoOffs.Load(),
	}
}

// Close stops the engine, cancels an in-flight delivery and waits for
// the poll loop and the delivery worker to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.enabled = false
	e.cancel()
	e.mu.Unlock()

	e.loops.Wait()
	// A worker that never started has nothing to wait for.
	e.workerOnce.Do(func() {
		close(e.workerDone)
	})
	<-e.workerDone
}

func (e *Engine) disableLocked(reason string) {
	e.enabled = false
	e.lastAutoOff = reason
	e.autoOffs.Add(1)
	e.logger.Warn("relay disabled itself",
		"reason", reason,
		"last_submit", e.lastSubmit,
	)
}

// run is the poll loop. It owns ticker and stops it before the final
// poll is observed.
func (e *Engine) run(ctx context.Context, ticker *clock.Ticker) {
	defer e.loops.Done()
	for {
		var now time.Time
		keep := true
		select {
		case <-ctx.Done():
			now, keep = e.exit(), false
		case <-e.ctx.Done():
			now, keep = e.exit(), false
		case <-ticker.C:
			now, keep = e.poll()
		}
		if !keep {
			ticker.Stop()
		}
		e.observePoll(now)
		if !keep {
			return
		}
	}
}

func (e *Engine) exit() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	e.running = false
	return e.clock.Now()
}

// poll runs one iteration of the loop and reports the time it observed
// and whether the loop should continue. The running flag is cleared
// under the same lock as the decision to exit, so a concurrent Start
// either sees the loop alive or starts a new one.
func (e *Engine) poll() (time.Time, bool) {
	e.mu.Lock()
	now := e.clock.Now()

	if !e.enabled {
		e.running = false
		e.mu.Unlock()
		return now, false
	}

	if now.Sub(e.lastSubmit) > e.noReceiveTimeout {
		e.disableLocked(AutoOffNoReceive)
		e.running = false
		e.mu.Unlock()
		return now, false
	}

	var payload Payload
	if now.Sub(e.lastEmit) >= e.heartbeat && e.pending != nil {
		payload = e.pending
		e.pending = nil
		e.lastEmit = now
		e.emitted.Add(1)
	}
	e.mu.Unlock()

	if payload != nil {
		e.handOff(payload)
	}
	return now, true
}

// handOff places payload in the delivery slot without blocking. If the
// worker is still busy with an earlier payload and the slot is full,
// the older undelivered payload is replaced.
func (e *Engine) handOff(payload Payload) {
	select {
	case e.deliveries <- payload:
		return
	default:
	}
	select {
	case <-e.deliveries:
		e.dropped.Add(1)
		e.logger.Warn("sink is slow, replacing undelivered payload")
	default:
	}
	select {
	case e.deliveries <- payload:
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) observePoll(now time.Time) {
	if e.pollHook != nil {
		e.pollHook(now)
	}
}

// deliverLoop is the single delivery worker.
func (e *Engine) deliverLoop() {
	defer close(e.workerDone)

	for {
		select {
		case <-e.ctx.Done():
			select {
			case <-e.deliveries:
				e.dropped.Add(1)
			default:
			}
			return
		case payload := <-e.deliveries:
			e.deliver(payload)
		}
	}
}

func (e *Engine) deliver(payload Payload) {
	if !e.Enabled() {
		e.dropped.Add(1)
		e.logger.Debug("dropping payload handed off while disabled", "kind", payload.Kind())
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.deliverTimeout)
	defer cancel()
	if err := e.sink.Deliver(ctx, payload); err != nil {
		e.failed.Add(1)
		e.logger.Warn("delivery failed, payload dropped",
			"kind", payload.Kind(),
			"ts", payload.Time(),
			"error", err,
		)
		return
	}
	e.delivered.Add(1)
	e.logger.Debug("payload delivered", "kind", payload.Kind(), "ts", payload.Time())
}

func copyPosition(position *region.Position) *region.Position {
	if position == nil {
		return nil
	}
	copied := *position
	return &copied
}

func copyInt(value *int) *int {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
