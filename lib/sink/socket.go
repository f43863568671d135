// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// IngestAction is the action the socket sink calls on its peer.
const IngestAction = "ingest"

// Socket forwards payloads to a local service socket as
// {action: "ingest", kind: <kind>, payload: <payload>}.
type Socket struct {
	client *service.Client
}

// NewSocket returns a sink calling the service at socketPath.
func NewSocket(socketPath string) *Socket {
	return &Socket{client: service.NewClient(socketPath)}
}

// Deliver implements share.Sink.
func (s *Socket) Deliver(ctx context.Context, payload share.Payload) error {
	return s.client.Call(ctx, IngestAction, map[string]any{
		"kind":    payload.Kind(),
		"payload": payload,
	}, nil)
}
