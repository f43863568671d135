// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestClientCall(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"enabled": true, "emitted": 3}, nil
	})
	startServer(t, server)

	var result struct {
		Enabled bool `cbor:"enabled"`
		Emitted int  `cbor:"emitted"`
	}
	if err := NewClient(socketPath).Call(context.Background(), "status", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !result.Enabled || result.Emitted != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestClientCallNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"ignored": true}, nil
	})
	startServer(t, server)

	if err := NewClient(socketPath).Call(context.Background(), "status", nil, nil); err != nil {
		t.Fatalf("Call with nil result: %v", err)
	}
}

func TestClientCallServiceError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("verify-ocr", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("text is required")
	})
	startServer(t, server)

	err := NewClient(socketPath).Call(context.Background(), "verify-ocr", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("error = %v (%T), want *ServiceError", err, err)
	}
	if serviceErr.Action != "verify-ocr" || serviceErr.Message != "text is required" {
		t.Errorf("ServiceError = %+v", serviceErr)
	}
}

func TestClientCallConnectionRefused(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	err := client.Call(context.Background(), "status", nil, nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Errorf("connection failure reported as ServiceError: %v", err)
	}
}

func TestClientDoesNotMutateFields(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("submit", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
	startServer(t, server)

	fields := map[string]any{"label": "hyuna"}
	if err := NewClient(socketPath).Call(context.Background(), "submit", fields, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, ok := fields["action"]; ok {
		t.Error("Call added action to the caller's map")
	}
}
