// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/codec"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/testutil"
)

type ingestRequest struct {
	Kind    string          `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload"`
}

func startIngest(t *testing.T, handler service.ActionFunc) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "ingest.sock")
	server := service.NewSocketServer(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server.Handle(IngestAction, handler)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "ingest server ready")
	return socketPath
}

func TestSocketDeliversCBOR(t *testing.T) {
	received := make(chan ingestRequest, 1)
	socketPath := startIngest(t, func(ctx context.Context, raw []byte) (any, error) {
		var request ingestRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		received <- request
		return nil, nil
	})

	heartbeat := share.NewHeartbeat("hyuna", "ASIA/SGP", "", "v1", epoch)
	if err := NewSocket(socketPath).Deliver(context.Background(), heartbeat); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	request := testutil.RequireReceive(t, received, 5*time.Second, "ingest request")
	if request.Kind != share.KindHeartbeat {
		t.Errorf("kind = %q", request.Kind)
	}
	var decoded share.Heartbeat
	if err := codec.Unmarshal(request.Payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded != heartbeat {
		t.Errorf("payload = %+v, want %+v", decoded, heartbeat)
	}
}

func TestSocketReturnsServiceError(t *testing.T) {
	socketPath := startIngest(t, func(context.Context, []byte) (any, error) {
		return nil, errors.New("queue full")
	})

	err := NewSocket(socketPath).Deliver(context.Background(), share.Snapshot{Label: "hyuna"})
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Message != "queue full" {
		t.Fatalf("Deliver error = %v, want ServiceError(queue full)", err)
	}
}

func TestSocketUnreachable(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "missing.sock")
	if err := NewSocket(socketPath).Deliver(context.Background(), share.Snapshot{}); err == nil {
		t.Fatal("Deliver succeeded without a listener")
	}
}
