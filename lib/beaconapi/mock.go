// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package beaconapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

// maxRequestBody bounds request bodies the mock accepts.
const maxRequestBody = 64 * 1024

// MockConfig configures a Mock.
type MockConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Rand drives the jitter on nearby positions. Nil selects a
	// randomly seeded source.
	Rand *rand.Rand

	// DefaultLabel is echoed by the auth gate when a request carries
	// no label.
	DefaultLabel string
}

// Mock is an in-process implementation of the Beacon API for local
// development and tests. It accepts every well-formed heartbeat and
// answers nearby queries with two fixed allies whose positions jitter
// around the map center.
type Mock struct {
	clock        clock.Clock
	logger       *slog.Logger
	defaultLabel string

	mu         sync.Mutex
	random     *rand.Rand
	heartbeats []HeartbeatRequest
}

// NewMock returns a mock API.
func NewMock(config MockConfig) *Mock {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	random := config.Rand
	if random == nil {
		random = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	label := config.DefaultLabel
	if label == "" {
		label = "hyuna"
	}
	return &Mock{
		clock:        config.Clock,
		logger:       logger,
		defaultLabel: label,
		random:       random,
	}
}

// Handler returns the HTTP routes.
func (m *Mock) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", m.handleHealth)
	mux.HandleFunc("POST /v1/auth/gate", m.handleAuthGate)
	mux.HandleFunc("POST /v1/heartbeat", m.handleHeartbeat)
	mux.HandleFunc("GET /v1/events/nearby", m.handleNearby)
	return mux
}

// Heartbeats returns a copy of every heartbeat accepted so far.
func (m *Mock) Heartbeats() []HeartbeatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HeartbeatRequest(nil), m.heartbeats...)
}

func (m *Mock) handleHealth(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, HealthResponse{OK: true, Timestamp: m.clock.Now().Unix()})
}

func (m *Mock) handleAuthGate(writer http.ResponseWriter, request *http.Request) {
	var body AuthGateRequest
	if !decodeBody(writer, request, &body) {
		return
	}
	label := body.Label
	if label == "" {
		label = m.defaultLabel
	}
	m.logger.Info("auth gate", "nick", label, "gm", body.GM)
	writeJSON(writer, http.StatusOK, AuthGateResponse{Label: label, GM: body.GM})
}

func (m *Mock) handleHeartbeat(writer http.ResponseWriter, request *http.Request) {
	var body HeartbeatRequest
	if !decodeBody(writer, request, &body) {
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(writer, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	m.mu.Lock()
	m.heartbeats = append(m.heartbeats, body)
	m.mu.Unlock()

	m.logger.Info("heartbeat", "nick", body.Label, "region", body.Region, "ts", body.Timestamp)
	writeJSON(writer, http.StatusOK, HeartbeatResponse{OK: true, Echo: body})
}

func (m *Mock) handleNearby(writer http.ResponseWriter, request *http.Request) {
	hop := DefaultNearbyHop
	if raw := request.URL.Query().Get("hop"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(writer, http.StatusUnprocessableEntity, map[string]string{"detail": "hop must be a non-negative integer"})
			return
		}
		hop = parsed
	}
	m.logger.Debug("nearby", "hop", hop)

	writeJSON(writer, http.StatusOK, []NearbyEvent{
		{Label: "ally1", Distance: 120, Region: "ASIA/SGP", Position: m.jitteredPosition()},
		{Label: "ally2", Distance: 180, Region: "ASIA/SGP", Position: m.jitteredPosition()},
	})
}

// jitteredPosition returns a position in [0.38, 0.62] on both axes,
// rounded to two decimals.
func (m *Mock) jitteredPosition() *region.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	jitter := func() float64 {
		return math.Round((0.38+m.random.Float64()*0.24)*100) / 100
	}
	return &region.Position{X: jitter(), Y: jitter()}
}

func decodeBody(writer http.ResponseWriter, request *http.Request, v any) bool {
	data, err := io.ReadAll(io.LimitReader(request.Body, maxRequestBody))
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"detail": "reading body: " + err.Error()})
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeJSON(writer, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(v)
}
