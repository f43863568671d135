// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// Client calls a running agent's control socket.
type Client struct {
	service *service.Client
}

// NewClient returns a client for the agent listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{service: service.NewClient(socketPath)}
}

// SocketPath returns the agent socket path.
func (c *Client) SocketPath() string {
	return c.service.SocketPath()
}

// Status returns the agent's state.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var response StatusResponse
	err := c.service.Call(ctx, ActionStatus, nil, &response)
	return response, err
}

// Identity returns the identity gate snapshot.
func (c *Client) Identity(ctx context.Context) (identity.Snapshot, error) {
	return c.identityCall(ctx, ActionIdentity, nil)
}

// SetLabel replaces the label and resets verification.
func (c *Client) SetLabel(ctx context.Context, label string) (identity.Snapshot, error) {
	return c.identityCall(ctx, ActionSetLabel, map[string]any{"label": label})
}

// VerifyManual records the user's confirmation.
func (c *Client) VerifyManual(ctx context.Context, confirm bool) (identity.Snapshot, error) {
	return c.identityCall(ctx, ActionVerifyManual, map[string]any{"confirm": confirm})
}

// VerifyOCR verifies when text contains the label.
func (c *Client) VerifyOCR(ctx context.Context, text string) (identity.Snapshot, error) {
	return c.identityCall(ctx, ActionVerifyOCR, map[string]any{"text": text})
}

// VerifyServer records a server verdict. A nil ok has the agent ask
// the Beacon API.
func (c *Client) VerifyServer(ctx context.Context, ok *bool) (identity.Snapshot, error) {
	var fields map[string]any
	if ok != nil {
		fields = map[string]any{"ok": *ok}
	}
	return c.identityCall(ctx, ActionVerifyServer, fields)
}

// Submit places a snapshot in the relay mailbox.
func (c *Client) Submit(ctx context.Context, request SubmitRequest) (share.Snapshot, error) {
	fields := map[string]any{}
	if request.Label != "" {
		fields["label"] = request.Label
	}
	if request.Region != "" {
		fields["region"] = request.Region
	}
	if request.Position != nil {
		fields["pos"] = request.Position
	}
	if request.PartySize != nil {
		fields["party"] = *request.PartySize
	}
	var snapshot share.Snapshot
	err := c.service.Call(ctx, ActionSubmit, fields, &snapshot)
	return snapshot, err
}

// SetRelay flips the upload switch.
func (c *Client) SetRelay(ctx context.Context, enabled bool) (RelayResponse, error) {
	action := ActionRelayDisable
	if enabled {
		action = ActionRelayEnable
	}
	var response RelayResponse
	err := c.service.Call(ctx, action, nil, &response)
	return response, err
}

func (c *Client) identityCall(ctx context.Context, action string, fields map[string]any) (identity.Snapshot, error) {
	var snapshot identity.Snapshot
	err := c.service.Call(ctx, action, fields, &snapshot)
	return snapshot, err
}
