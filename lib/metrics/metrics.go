// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the agent's relay, identity and capture
// state as Prometheus metrics. Relay and identity values are read from
// their owners at scrape time; capture counters are pushed by the
// agent as events arrive.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// unmatchedRegion labels capture events no prefix matched.
const unmatchedRegion = "none"

// RelaySource reports relay engine state. *share.Engine satisfies it.
type RelaySource interface {
	Status() share.Status
}

// IdentitySource reports identity gate state. *identity.Gate
// satisfies it.
type IdentitySource interface {
	Snapshot() identity.Snapshot
}

// Collector owns the agent's metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	CaptureEvents *prometheus.CounterVec
}

// NewCollector registers every metric against reg. A nil reg selects
// the default registerer. Registering twice against the same registry
// reuses the existing collectors.
func NewCollector(reg prometheus.Registerer, relay RelaySource, gate IdentitySource) (*Collector, error) {
	if relay == nil || gate == nil {
		return nil, errors.New("metrics: relay and identity sources are required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	counters := []struct {
		name  string
		help  string
		value func(share.Status) uint64
	}{
		{"beacon_relay_submitted_total", "Payloads submitted to the relay mailbox.", func(s share.Status) uint64 { return s.Submitted }},
		{"beacon_relay_emitted_total", "Payloads taken from the mailbox for delivery.", func(s share.Status) uint64 { return s.Emitted }},
		{"beacon_relay_delivered_total", "Payloads the sink accepted.", func(s share.Status) uint64 { return s.Delivered }},
		{"beacon_relay_failed_total", "Payloads the sink rejected.", func(s share.Status) uint64 { return s.Failed }},
		{"beacon_relay_dropped_total", "Payloads discarded without a delivery attempt.", func(s share.Status) uint64 { return s.Dropped }},
		{"beacon_relay_auto_offs_total", "Times the relay disabled itself.", func(s share.Status) uint64 { return s.AutoOffs }},
	}
	for _, counter := range counters {
		value := counter.value
		collector := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: counter.name,
			Help: counter.help,
		}, func() float64 { return float64(value(relay.Status())) })
		if _, err := register(reg, collector, counter.name); err != nil {
			return nil, err
		}
	}

	gauges := []struct {
		name  string
		help  string
		value func() float64
	}{
		{"beacon_relay_enabled", "Whether the relay is enabled.", func() float64 { return boolValue(relay.Status().Enabled) }},
		{"beacon_relay_running", "Whether the relay poll loop is running.", func() float64 { return boolValue(relay.Status().Running) }},
		{"beacon_relay_pending", "Whether a payload is waiting in the mailbox.", func() float64 { return boolValue(relay.Status().Pending) }},
		{"beacon_relay_heartbeat_seconds", "Minimum spacing between emissions.", func() float64 { return relay.Status().Heartbeat.Seconds() }},
		{"beacon_relay_last_emit_timestamp_seconds", "Unix time of the last emission, 0 if none.", func() float64 {
			lastEmit := relay.Status().LastEmit
			if lastEmit.IsZero() {
				return 0
			}
			return float64(lastEmit.Unix())
		}},
		{"beacon_identity_verified", "Whether the relay label is verified.", func() float64 { return boolValue(gate.Snapshot().Verified) }},
	}
	for _, gauge := range gauges {
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: gauge.name,
			Help: gauge.help,
		}, gauge.value)
		if _, err := register(reg, collector, gauge.name); err != nil {
			return nil, err
		}
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_capture_events_total",
		Help: "Capture events seen, by inferred region.",
	}, []string{"region"})
	events, err := register(reg, events, "beacon_capture_events_total")
	if err != nil {
		return nil, err
	}

	return &Collector{gatherer: gatherer, CaptureEvents: events}, nil
}

// ObserveEvent counts one capture event under its inferred region. An
// empty region counts as unmatched.
func (c *Collector) ObserveEvent(region string) {
	if c == nil || c.CaptureEvents == nil {
		return
	}
	if region == "" {
		region = unmatchedRegion
	}
	c.CaptureEvents.WithLabelValues(region).Inc()
}

// Gatherer returns the gatherer the collector registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler serves the gathered metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func boolValue(value bool) float64 {
	if value {
		return 1
	}
	return 0
}

// register registers collector, returning an already registered
// collector of the same type in its place.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C, name string) (C, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return collector, nil
}
