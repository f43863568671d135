// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/capture"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/codec"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/control"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/settings"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/sink"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const regionTable = `ip_prefixes:
  52.76.0.0/16: ASIA/SGP
  18.197.0.0/16: EU/FRA
`

const captureLog = `{"dst":"18.197.3.4:5056"}
{"dst":"10.0.0.1:53"}
{"dst":"52.76.10.1:5056"}
`

type testHarness struct {
	agent *Agent
	clock *clock.FakeClock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(t *testing.T, configure func(*settings.Settings)) *testHarness {
	t.Helper()
	directory := t.TempDir()
	loaded := settings.Default()
	loaded.Label = "hyuna"
	loaded.LabelVerified = true
	loaded.UploadEnabled = true
	loaded.OutboxDir = filepath.Join(directory, "outbox")
	loaded.ControlSocket = filepath.Join(testutil.SocketDir(t), "agent.sock")
	if configure != nil {
		configure(loaded)
	}

	fake := clock.Fake(epoch)
	agent, err := newAgent(agentConfig{
		Settings:  loaded,
		Clock:     fake,
		Logger:    testLogger(),
		SessionID: "session-1",
		Source:    capture.NewJSONLSource(strings.NewReader("")),
	})
	if err != nil {
		t.Fatalf("newAgent: %v", err)
	}
	t.Cleanup(agent.engine.Close)
	return &testHarness{agent: agent, clock: fake}
}

// call runs a control handler directly with fields encoded the way
// service.Client sends them.
func call[T any](t *testing.T, handler service.ActionFunc, fields map[string]any) T {
	t.Helper()
	raw, err := codec.Marshal(fields)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	result, err := handler(context.Background(), raw)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	typed, ok := result.(T)
	if !ok {
		t.Fatalf("handler returned %T", result)
	}
	return typed
}

func TestTickStartsRelayWhenPermitted(t *testing.T) {
	harness := newTestAgent(t, nil)
	harness.agent.tick()

	status := harness.agent.engine.Status()
	if !status.Enabled || !status.Running {
		t.Fatalf("relay not started: %+v", status)
	}
	if !status.Pending || status.Submitted != 1 {
		t.Errorf("heartbeat not submitted: %+v", status)
	}
}

func TestTickWithoutUploadDoesNothing(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.UploadEnabled = false })
	harness.agent.tick()

	status := harness.agent.engine.Status()
	if status.Enabled || status.Submitted != 0 {
		t.Errorf("relay active without upload: %+v", status)
	}
}

func TestTickWithoutVerificationDoesNothing(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.LabelVerified = false })
	harness.agent.tick()

	if status := harness.agent.engine.Status(); status.Enabled || status.Submitted != 0 {
		t.Errorf("relay active for an unverified label: %+v", status)
	}
}

func TestSetLabelStopsRelay(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent
	agent.tick()

	snapshot := call[identity.Snapshot](t, agent.handleSetLabel, map[string]any{"label": "other"})
	if snapshot.Verified || snapshot.State() != identity.StatePending {
		t.Fatalf("set-label snapshot = %+v", snapshot)
	}
	if agent.engine.Status().Enabled {
		t.Fatal("relay still enabled after the label changed")
	}

	agent.tick()
	if submitted := agent.engine.Status().Submitted; submitted != 1 {
		t.Errorf("submitted = %d after losing permission, want 1", submitted)
	}

	snapshot = call[identity.Snapshot](t, agent.handleVerifyOCR, map[string]any{"text": "OTHER has joined"})
	if !snapshot.Verified || snapshot.Method != identity.MethodOCR {
		t.Fatalf("verify-ocr snapshot = %+v", snapshot)
	}
	if !agent.engine.Status().Enabled {
		t.Error("relay not restarted after verification")
	}
}

func TestRelayToggle(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent
	agent.tick()

	response := call[control.RelayResponse](t, agent.handleRelayDisable, nil)
	if response.UploadEnabled || response.Sharing {
		t.Fatalf("relay-disable = %+v", response)
	}
	if agent.engine.Status().Enabled {
		t.Fatal("engine enabled after relay-disable")
	}

	response = call[control.RelayResponse](t, agent.handleRelayEnable, nil)
	if !response.UploadEnabled || !response.Sharing {
		t.Fatalf("relay-enable = %+v", response)
	}
	if !agent.engine.Status().Enabled {
		t.Error("engine disabled after relay-enable")
	}
}

func TestRelayEnableRestartsStoppedEngine(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent
	agent.tick()

	// The engine switches itself off independently of the agent.
	agent.engine.Stop()
	agent.tick()
	if agent.engine.Status().Enabled {
		t.Fatal("tick restarted an engine that switched itself off")
	}

	call[control.RelayResponse](t, agent.handleRelayEnable, nil)
	if !agent.engine.Status().Enabled {
		t.Error("relay-enable did not restart the engine")
	}
}

func TestCaptureDrivesHeartbeatRegion(t *testing.T) {
	directory := t.TempDir()
	tablePath := testutil.WriteFile(t, directory, "regions.yaml", regionTable)
	harness := newTestAgent(t, func(s *settings.Settings) { s.RegionTable = tablePath })
	agent := harness.agent
	agent.source = capture.NewJSONLSource(strings.NewReader(captureLog))

	if got := agent.heartbeat().Region; got != settings.DefaultRegion {
		t.Fatalf("region before capture = %q, want %q", got, settings.DefaultRegion)
	}

	agent.runCapture(context.Background())

	heartbeat := agent.heartbeat()
	if heartbeat.Region != "ASIA/SGP" {
		t.Errorf("region = %q, want ASIA/SGP (last matched event)", heartbeat.Region)
	}
	if heartbeat.Label != "hyuna" || heartbeat.Type != share.KindHeartbeat || heartbeat.Timestamp != epoch.Unix() {
		t.Errorf("heartbeat = %+v", heartbeat)
	}
	if agent.captureEvents.Load() != 3 {
		t.Errorf("capture events = %d, want 3", agent.captureEvents.Load())
	}
}

func TestRegionHintWins(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) {
		s.RegionHint = "US/EAST"
		s.LastRegion = "EU/AMS"
	})
	if got := harness.agent.currentRegion(); got != "US/EAST" {
		t.Errorf("currentRegion = %q, want US/EAST", got)
	}
}

func TestLastRegionFromSettings(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.LastRegion = "EU/AMS" })
	if got := harness.agent.currentRegion(); got != "EU/AMS" {
		t.Errorf("currentRegion = %q, want EU/AMS", got)
	}
}

func TestHeartbeatInterface(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) {
		s.InterfaceHint = "{3F2504E0-4F89-11D3-9A0C-0305E82C3301}"
	})
	if got := harness.agent.heartbeat().Interface; got != `\Device\NPF_3F2504E0-4F89-11D3-9A0C-0305E82C3301` {
		t.Errorf("interface = %q", got)
	}
}

func TestSubmitAction(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.ConfiguredRegion = "EU/AMS" })
	agent := harness.agent

	snapshot := call[share.Snapshot](t, agent.handleSubmit, map[string]any{
		"pos":   region.Position{X: 0.5, Y: 0.5},
		"party": 5,
	})
	if snapshot.Label != "hyuna" || snapshot.Region != "EU/AMS" {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.PartySize == nil || *snapshot.PartySize != 5 {
		t.Errorf("party = %v", snapshot.PartySize)
	}
	status := agent.engine.Status()
	if !status.Pending || status.LastPosition == nil {
		t.Errorf("status = %+v", status)
	}
}

func TestSubmitActionValidates(t *testing.T) {
	harness := newTestAgent(t, nil)
	tests := []map[string]any{
		{"pos": region.Position{X: 1.5, Y: 0}},
		{"party": 0},
		{"party": 21},
	}
	for _, fields := range tests {
		raw, err := codec.Marshal(fields)
		if err != nil {
			t.Fatalf("encoding: %v", err)
		}
		if _, err := harness.agent.handleSubmit(context.Background(), raw); err == nil {
			t.Errorf("submit %v accepted", fields)
		}
	}
	if harness.agent.engine.Status().Submitted != 0 {
		t.Error("invalid submission reached the mailbox")
	}
}

func TestSubmitRequiresPermission(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*settings.Settings)
	}{
		{"unverified", func(s *settings.Settings) { s.LabelVerified = false }},
		{"upload disabled", func(s *settings.Settings) { s.UploadEnabled = false }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			harness := newTestAgent(t, test.configure)
			raw, err := codec.Marshal(map[string]any{"pos": region.Position{X: 0.5, Y: 0.5}})
			if err != nil {
				t.Fatalf("encoding: %v", err)
			}
			if _, err := harness.agent.handleSubmit(context.Background(), raw); err == nil {
				t.Fatal("submit accepted while sharing is not permitted")
			}
			status := harness.agent.engine.Status()
			if status.Submitted != 0 || status.Pending || !status.LastSubmit.Equal(epoch) {
				t.Errorf("rejected submit touched the mailbox: %+v", status)
			}
		})
	}
}

func TestSubmitRejectsForeignLabel(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent
	agent.tick()

	raw, err := codec.Marshal(map[string]any{"label": "mallory", "pos": region.Position{X: 0.1, Y: 0.1}})
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if _, err := agent.handleSubmit(context.Background(), raw); err == nil || !strings.Contains(err.Error(), "mallory") {
		t.Fatalf("submit under a foreign label: err = %v", err)
	}
	if submitted := agent.engine.Status().Submitted; submitted != 1 {
		t.Errorf("submitted = %d, want only the heartbeat", submitted)
	}

	snapshot := call[share.Snapshot](t, agent.handleSubmit, map[string]any{"label": "hyuna"})
	if snapshot.Label != "hyuna" {
		t.Errorf("matching label snapshot = %+v", snapshot)
	}
}

// useRecordingEngine swaps the agent's engine for one delivering into
// the returned channel.
func useRecordingEngine(t *testing.T, harness *testHarness) <-chan share.Payload {
	t.Helper()
	deliveries := make(chan share.Payload, 8)
	engine, err := share.NewEngine(share.Config{
		Sink: share.SinkFunc(func(_ context.Context, payload share.Payload) error {
			deliveries <- payload
			return nil
		}),
		Clock:     harness.clock,
		Logger:    testLogger(),
		Heartbeat: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(engine.Close)
	harness.agent.engine = engine
	return deliveries
}

func TestOperatorReportOutlivesHeartbeats(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.ConfiguredRegion = "EU/AMS" })
	agent := harness.agent
	deliveries := useRecordingEngine(t, harness)

	agent.tick()
	call[share.Snapshot](t, agent.handleSubmit, map[string]any{
		"pos":   region.Position{X: 0.4, Y: 0.6},
		"party": 3,
	})
	agent.tick()

	status := agent.engine.Status()
	if status.LastPosition == nil || *status.LastPosition != (region.Position{X: 0.4, Y: 0.6}) {
		t.Fatalf("tick replaced the operator report: last position = %v", status.LastPosition)
	}

	harness.clock.Advance(share.DefaultPollInterval)
	payload := testutil.RequireReceive(t, deliveries, 5*time.Second, "waiting for delivery")
	snapshot, ok := payload.(share.Snapshot)
	if !ok {
		t.Fatalf("delivered %T, want share.Snapshot", payload)
	}
	if snapshot.Label != "hyuna" || snapshot.Region != "EU/AMS" {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.Position == nil || *snapshot.Position != (region.Position{X: 0.4, Y: 0.6}) {
		t.Errorf("position = %v", snapshot.Position)
	}
	if snapshot.PartySize == nil || *snapshot.PartySize != 3 {
		t.Errorf("party = %v", snapshot.PartySize)
	}
}

func TestSetLabelClearsOperatorReport(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent
	call[share.Snapshot](t, agent.handleSubmit, map[string]any{"party": 2})

	call[identity.Snapshot](t, agent.handleSetLabel, map[string]any{"label": "other"})
	call[identity.Snapshot](t, agent.handleVerifyManual, map[string]any{"confirm": true})

	if _, ok := agent.payload().(share.Heartbeat); !ok {
		t.Errorf("payload after relabel = %T, want share.Heartbeat", agent.payload())
	}
}

func TestVerifyServerWithoutAPI(t *testing.T) {
	harness := newTestAgent(t, func(s *settings.Settings) { s.LabelVerified = false })
	raw, _ := codec.Marshal(map[string]any{})
	if _, err := harness.agent.handleVerifyServer(context.Background(), raw); err == nil {
		t.Fatal("verify-server without a verdict or API succeeded")
	}

	snapshot := call[identity.Snapshot](t, harness.agent.handleVerifyServer, map[string]any{"ok": true})
	if !snapshot.Verified || snapshot.Method != identity.MethodServer {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestVerifyServerUsesAuthGate(t *testing.T) {
	mock := beaconapi.NewMock(beaconapi.MockConfig{Clock: clock.Fake(epoch), Logger: testLogger()})
	server := httptest.NewServer(mock.Handler())
	t.Cleanup(server.Close)

	harness := newTestAgent(t, func(s *settings.Settings) {
		s.LabelVerified = false
		s.ServerURL = server.URL
	})
	snapshot := call[identity.Snapshot](t, harness.agent.handleVerifyServer, map[string]any{})
	if !snapshot.Verified || snapshot.Method != identity.MethodServer {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestNewSinkKinds(t *testing.T) {
	api, err := beaconapi.NewClient("http://127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	tests := []struct {
		kind  string
		check func(share.Sink) bool
	}{
		{settings.SinkOutbox, func(s share.Sink) bool { _, ok := s.(*sink.Outbox); return ok }},
		{settings.SinkHTTP, func(s share.Sink) bool { _, ok := s.(*sink.HTTP); return ok }},
		{settings.SinkSocket, func(s share.Sink) bool { _, ok := s.(*sink.Socket); return ok }},
	}
	for _, test := range tests {
		loaded := settings.Default()
		loaded.SinkKind = test.kind
		loaded.OutboxDir = t.TempDir()
		loaded.SinkSocket = "/tmp/ingest.sock"
		built, err := newSink(loaded, api, clock.Fake(epoch))
		if err != nil {
			t.Fatalf("newSink(%s): %v", test.kind, err)
		}
		if !test.check(built) {
			t.Errorf("newSink(%s) = %T", test.kind, built)
		}
	}

	loaded := settings.Default()
	loaded.SinkKind = settings.SinkHTTP
	if _, err := newSink(loaded, nil, clock.Fake(epoch)); err == nil {
		t.Error("http sink built without an API client")
	}
}

func TestRunServesControlSocket(t *testing.T) {
	harness := newTestAgent(t, nil)
	agent := harness.agent

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- agent.Run(ctx) }()
	testutil.RequireClosed(t, agent.controlServer.Ready(), 5*time.Second, "control socket ready")

	client := control.NewClient(agent.settings.ControlSocket)
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Session != "session-1" || status.Identity.Label != "hyuna" || !status.Identity.Verified {
		t.Errorf("status = %+v", status)
	}
	if !status.UploadEnabled || !status.Sharing || !status.Relay.Enabled {
		t.Errorf("relay state = %+v", status)
	}
	if status.Region != settings.DefaultRegion || status.Sink != settings.SinkOutbox {
		t.Errorf("region/sink = %q/%q", status.Region, status.Sink)
	}

	snapshot, err := client.SetLabel(context.Background(), "")
	if err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if snapshot.State() != identity.StateUnset {
		t.Errorf("state = %v, want unset", snapshot.State())
	}
	snapshot, err = client.VerifyManual(context.Background(), true)
	if err != nil || snapshot.Verified {
		t.Errorf("VerifyManual with empty label = %+v, %v", snapshot, err)
	}

	cancel()
	err = testutil.RequireReceive(t, runDone, 5*time.Second, "agent shutdown")
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
}
