// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/capture"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/metrics"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/netiface"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/settings"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/sink"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/version"
)

// submitInterval is how often a fresh heartbeat, or the operator's
// last report, replaces the mailbox while sharing is permitted.
const submitInterval = time.Second

// apiTimeout bounds every Beacon API request.
const apiTimeout = 10 * time.Second

type agentConfig struct {
	Settings  *settings.Settings
	Clock     clock.Clock
	Logger    *slog.Logger
	SessionID string

	// Source replaces the capture source chosen from settings. Tests
	// use it to inject events.
	Source capture.Source

	// HTTPClient is used for Beacon API calls. Nil selects a client
	// with apiTimeout.
	HTTPClient *http.Client
}

// Agent holds the daemon's runtime state. Created by newAgent and
// shared between the submit loop, the capture goroutine and the
// control socket handlers.
type Agent struct {
	settings  *settings.Settings
	clock     clock.Clock
	logger    *slog.Logger
	sessionID string
	startedAt time.Time

	gate    *identity.Gate
	locator *region.Locator
	engine  *share.Engine
	metrics *metrics.Collector
	api     *beaconapi.Client

	source        capture.Source
	iface         string
	captureEvents atomic.Uint64

	controlServer *service.SocketServer

	mu            sync.Mutex
	relayCtx      context.Context
	uploadEnabled bool
	sharing       bool
	lastRegion    string
	report        *operatorReport
}

// operatorReport is the last position and party size submitted over the
// control socket. It is resubmitted on every tick in place of a
// heartbeat until the label changes.
type operatorReport struct {
	region    string
	position  *region.Position
	partySize *int
}

func newAgent(config agentConfig) (*Agent, error) {
	loaded := config.Settings
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	table, err := loadTable(loaded.RegionTable)
	if err != nil {
		return nil, err
	}
	locator, err := region.NewLocator(table, 0)
	if err != nil {
		return nil, err
	}

	var api *beaconapi.Client
	if loaded.ServerURL != "" {
		httpClient := config.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: apiTimeout}
		}
		api, err = beaconapi.NewClient(loaded.ServerURL, httpClient)
		if err != nil {
			return nil, err
		}
	}

	relaySink, err := newSink(loaded, api, config.Clock)
	if err != nil {
		return nil, err
	}
	engine, err := share.NewEngine(share.Config{
		Sink:      relaySink,
		Clock:     config.Clock,
		Logger:    logger.With("component", "relay"),
		Heartbeat: time.Duration(loaded.HeartbeatSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	gate := identity.NewGate(config.Clock)
	gate.Restore(loaded.Label, loaded.LabelVerified)

	collector, err := metrics.NewCollector(prometheus.NewRegistry(), engine, gate)
	if err != nil {
		return nil, err
	}

	iface := netiface.Resolve(loaded.InterfaceHint)
	source := config.Source
	if source == nil {
		source, err = openCapture(loaded, iface, logger)
		if err != nil {
			engine.Close()
			return nil, err
		}
	}

	agent := &Agent{
		settings:      loaded,
		clock:         config.Clock,
		logger:        logger,
		sessionID:     config.SessionID,
		startedAt:     config.Clock.Now(),
		gate:          gate,
		locator:       locator,
		engine:        engine,
		metrics:       collector,
		api:           api,
		source:        source,
		iface:         iface,
		controlServer: service.NewSocketServer(loaded.ControlSocket, logger.With("component", "control")),
		relayCtx:      context.Background(),
		uploadEnabled: loaded.UploadEnabled,
		lastRegion:    loaded.LastRegion,
	}
	agent.registerActions(agent.controlServer)
	return agent, nil
}

func loadTable(path string) (*region.Table, error) {
	if path == "" {
		return region.NewTable(nil)
	}
	return region.LoadTable(path)
}

// openCapture picks the capture source: a replay file when one is
// configured, otherwise live capture on the resolved interface. Live
// capture failing is not fatal; the agent relays without region
// inference.
func openCapture(loaded *settings.Settings, iface string, logger *slog.Logger) (capture.Source, error) {
	if loaded.CaptureFile != "" {
		return capture.OpenFile(loaded.CaptureFile)
	}
	if iface == "" {
		return nil, nil
	}
	source, err := capture.OpenLive(capture.LiveOptions{
		Interface: iface,
		Filter:    loaded.BPF,
		Logger:    logger.With("component", "capture"),
	})
	if err != nil {
		logger.Warn("live capture unavailable, relaying without region inference",
			"interface", iface,
			"error", err,
		)
		return nil, nil
	}
	return source, nil
}

// Run serves the control socket and optional metrics listener, runs
// capture and the submit loop, and returns when ctx is cancelled or a
// listener fails.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.relayCtx = ctx
	a.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failure  error
	)
	fail := func(err error) {
		failOnce.Do(func() { failure = err })
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.controlServer.Serve(ctx); err != nil {
			fail(fmt.Errorf("control socket: %w", err))
		}
	}()

	if a.settings.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.metrics.Handler())
		metricsServer := service.NewHTTPServer(service.HTTPServerConfig{
			Address: a.settings.MetricsAddr,
			Handler: mux,
			Logger:  a.logger.With("component", "metrics"),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Serve(ctx); err != nil {
				fail(fmt.Errorf("metrics listener: %w", err))
			}
		}()
	}

	if a.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runCapture(ctx)
		}()
	}

	a.logger.Info("beacon agent running",
		"version", version.Info(),
		"label", a.gate.Label(),
		"verified", a.gate.Verified(),
		"upload_enabled", a.settings.UploadEnabled,
		"heartbeat_sec", a.settings.HeartbeatSeconds,
		"interface_hint", a.settings.InterfaceHint,
		"interface", a.iface,
		"bpf", a.settings.BPF,
		"region", a.currentRegion(),
		"sink", a.settings.SinkKind,
		"control_socket", a.settings.ControlSocket,
	)

	a.runSubmitLoop(ctx)
	a.logger.Info("shutting down")

	a.engine.Close()
	wg.Wait()
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("closing capture source", "error", err)
		}
	}
	return failure
}

func (a *Agent) runSubmitLoop(ctx context.Context) {
	ticker := a.clock.NewTicker(submitInterval)
	defer ticker.Stop()

	a.tick()
	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-ctx.Done():
			return
		}
	}
}

// tick submits the current payload if sharing is permitted, then
// starts or stops the relay to match.
func (a *Agent) tick() {
	if a.permitted() {
		a.engine.Submit(a.payload())
	}
	a.reconcile(false)
}

// payload is a snapshot built from the operator's last report when
// there is one, otherwise a heartbeat.
func (a *Agent) payload() share.Payload {
	a.mu.Lock()
	report := a.report
	a.mu.Unlock()
	if report == nil {
		return a.heartbeat()
	}
	return share.Snapshot{
		Label:     a.gate.Label(),
		Region:    a.reportRegion(report),
		Position:  copyPosition(report.position),
		PartySize: copyInt(report.partySize),
		Timestamp: a.clock.Now().Unix(),
	}
}

func (a *Agent) reportRegion(report *operatorReport) string {
	if report.region != "" {
		return report.region
	}
	return a.currentRegion()
}

func (a *Agent) permitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploadEnabled && a.gate.Verified()
}

// reconcile starts the relay on the transition into permitted and
// stops it on the transition out. With restart, a permitted relay is
// started even if sharing was already on, which re-enables an engine
// that switched itself off.
func (a *Agent) reconcile(restart bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	permitted := a.uploadEnabled && a.gate.Verified()
	switch {
	case permitted && (!a.sharing || restart):
		a.engine.Start(a.relayCtx)
		if !a.sharing {
			a.logger.Info("sharing permitted, relay started", "label", a.gate.Label())
		}
		a.sharing = true
	case !permitted && a.sharing:
		a.engine.Stop()
		a.sharing = false
		a.logger.Info("sharing no longer permitted, relay stopped",
			"upload_enabled", a.uploadEnabled,
			"verified", a.gate.Verified(),
		)
	}
	return a.sharing
}

func (a *Agent) setUpload(enabled bool) (uploadEnabled, sharing bool) {
	a.mu.Lock()
	a.uploadEnabled = enabled
	a.mu.Unlock()
	sharing = a.reconcile(enabled)
	return enabled, sharing
}

func (a *Agent) heartbeat() share.Heartbeat {
	return share.NewHeartbeat(a.gate.Label(), a.currentRegion(), a.iface, version.Tag(), a.clock.Now())
}

// currentRegion is the settings hint, else the last region seen in
// capture, else the configured region.
func (a *Agent) currentRegion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return region.PickRegion(a.settings.RegionHint, a.lastRegion, a.settings.ConfiguredRegion)
}

func (a *Agent) runCapture(ctx context.Context) {
	err := a.source.Run(ctx, a.observe)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		a.logger.Warn("capture stopped", "error", err)
	case ctx.Err() == nil:
		a.logger.Info("capture source exhausted", "events", a.captureEvents.Load())
	}
}

func (a *Agent) observe(event capture.Event) {
	a.captureEvents.Add(1)
	hint := a.locator.Infer(event)
	a.metrics.ObserveEvent(hint.Region)
	if hint.Region == "" {
		return
	}

	a.mu.Lock()
	previous := a.lastRegion
	a.lastRegion = hint.Region
	a.mu.Unlock()
	if previous != hint.Region {
		a.logger.Info("region changed",
			"region", hint.Region,
			"previous", previous,
			"destination", event.Destination,
		)
	}
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

func newSink(loaded *settings.Settings, api *beaconapi.Client, clk clock.Clock) (share.Sink, error) {
	switch loaded.SinkKind {
	case settings.SinkOutbox:
		return sink.NewOutbox(loaded.OutboxDir, clk)
	case settings.SinkHTTP:
		if api == nil {
			return nil, errors.New("http sink requires server_url")
		}
		return sink.NewHTTP(api), nil
	case settings.SinkSocket:
		return sink.NewSocket(loaded.SinkSocket), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", loaded.SinkKind)
	}
}
