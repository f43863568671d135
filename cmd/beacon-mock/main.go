// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon-mock stands in for the Beacon API and for a socket sink's
// receiving service during local testing.
//
// The HTTP listener serves /v1/health, /v1/auth/gate, /v1/heartbeat
// and /v1/events/nearby with canned data. With --ingest-socket it also
// accepts the agent's socket sink deliveries ("ingest" action) and
// exposes what it received through "status".
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/codec"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/process"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/sink"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("beacon-mock", pflag.ContinueOnError)
	listen := flagSet.String("listen", "127.0.0.1:8787", "HTTP listen address")
	ingestSocket := flagSet.String("ingest-socket", "", "also accept socket sink deliveries on this Unix socket")
	label := flagSet.String("label", "", "label the auth gate echoes for an empty request")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("beacon-mock %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := beaconapi.NewMock(beaconapi.MockConfig{
		Clock:        clock.Real(),
		Logger:       logger.With("component", "api"),
		DefaultLabel: *label,
	})
	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         *listen,
		Handler:         mock.Handler(),
		ShutdownTimeout: 5 * time.Second,
		Logger:          logger.With("component", "http"),
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			errs <- fmt.Errorf("http: %w", err)
			stop()
		}
	}()

	if *ingestSocket != "" {
		ingest := newIngestStore(clock.Real(), logger.With("component", "ingest"))
		socketServer := service.NewSocketServer(*ingestSocket, logger.With("component", "socket"))
		ingest.register(socketServer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := socketServer.Serve(ctx); err != nil {
				errs <- fmt.Errorf("ingest socket: %w", err)
				stop()
			}
		}()
	}

	wg.Wait()
	close(errs)
	var failures []error
	for err := range errs {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// ingestRequest is the socket sink's request body.
type ingestRequest struct {
	Kind    string           `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload"`
}

// ingestStatus is the "status" result.
type ingestStatus struct {
	Received      int              `cbor:"received"`
	ByKind        map[string]int   `cbor:"by_kind"`
	LastReceived  time.Time        `cbor:"last_received"`
	LastHeartbeat *share.Heartbeat `cbor:"last_heartbeat,omitempty"`
	LastSnapshot  *share.Snapshot  `cbor:"last_snapshot,omitempty"`
}

// ingestStore keeps counts and the most recent payload of each kind.
type ingestStore struct {
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	received     int
	byKind       map[string]int
	lastReceived time.Time
	heartbeat    *share.Heartbeat
	snapshot     *share.Snapshot
}

func newIngestStore(clk clock.Clock, logger *slog.Logger) *ingestStore {
	return &ingestStore{clock: clk, logger: logger, byKind: make(map[string]int)}
}

func (s *ingestStore) register(server *service.SocketServer) {
	server.Handle(sink.IngestAction, s.handleIngest)
	server.Handle("status", s.handleStatus)
}

func (s *ingestStore) handleIngest(_ context.Context, raw []byte) (any, error) {
	var request ingestRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid ingest request: %w", err)
	}

	var (
		heartbeat *share.Heartbeat
		snapshot  *share.Snapshot
	)
	switch request.Kind {
	case share.KindHeartbeat:
		heartbeat = new(share.Heartbeat)
		if err := codec.Unmarshal(request.Payload, heartbeat); err != nil {
			return nil, fmt.Errorf("decoding heartbeat: %w", err)
		}
	case share.KindSnapshot:
		snapshot = new(share.Snapshot)
		if err := codec.Unmarshal(request.Payload, snapshot); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", request.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
	s.byKind[request.Kind]++
	s.lastReceived = s.clock.Now()
	if heartbeat != nil {
		s.heartbeat = heartbeat
		s.logger.Info("heartbeat", "nick", heartbeat.Label, "region", heartbeat.Region, "ts", heartbeat.Timestamp)
	}
	if snapshot != nil {
		s.snapshot = snapshot
		s.logger.Info("snapshot", "nick", snapshot.Label, "region", snapshot.Region, "ts", snapshot.Timestamp)
	}
	return nil, nil
}

func (s *ingestStore) handleStatus(context.Context, []byte) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKind := make(map[string]int, len(s.byKind))
	for kind, count := range s.byKind {
		byKind[kind] = count
	}
	return ingestStatus{
		Received:      s.received,
		ByKind:        byKind,
		LastReceived:  s.lastReceived,
		LastHeartbeat: s.heartbeat,
		LastSnapshot:  s.snapshot,
	}, nil
}
