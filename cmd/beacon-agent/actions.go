// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/codec"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/control"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/service"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/version"
)

func (a *Agent) registerActions(server *service.SocketServer) {
	server.Handle(control.ActionStatus, a.handleStatus)
	server.Handle(control.ActionIdentity, a.handleIdentity)
	server.Handle(control.ActionSetLabel, a.handleSetLabel)
	server.Handle(control.ActionVerifyManual, a.handleVerifyManual)
	server.Handle(control.ActionVerifyOCR, a.handleVerifyOCR)
	server.Handle(control.ActionVerifyServer, a.handleVerifyServer)
	server.Handle(control.ActionSubmit, a.handleSubmit)
	server.Handle(control.ActionRelayEnable, a.handleRelayEnable)
	server.Handle(control.ActionRelayDisable, a.handleRelayDisable)
}

func (a *Agent) handleStatus(_ context.Context, _ []byte) (any, error) {
	a.mu.Lock()
	uploadEnabled := a.uploadEnabled
	sharing := a.sharing
	lastRegion := a.lastRegion
	a.mu.Unlock()

	return control.StatusResponse{
		Session:       a.sessionID,
		Version:       version.Info(),
		StartedAt:     a.startedAt,
		Identity:      a.gate.Snapshot(),
		UploadEnabled: uploadEnabled,
		Sharing:       sharing,
		Region:        a.currentRegion(),
		LastRegion:    lastRegion,
		Interface:     a.iface,
		Sink:          a.settings.SinkKind,
		CaptureEvents: a.captureEvents.Load(),
		Relay:         a.engine.Status(),
	}, nil
}

func (a *Agent) handleIdentity(_ context.Context, _ []byte) (any, error) {
	return a.gate.Snapshot(), nil
}

func (a *Agent) handleSetLabel(_ context.Context, raw []byte) (any, error) {
	var request control.SetLabelRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, errors.New("invalid set-label request")
	}
	a.mu.Lock()
	a.report = nil
	a.mu.Unlock()
	return a.afterIdentityChange(a.gate.SetLabel(request.Label)), nil
}

func (a *Agent) handleVerifyManual(_ context.Context, raw []byte) (any, error) {
	var request control.VerifyManualRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, errors.New("invalid verify-manual request")
	}
	return a.afterIdentityChange(a.gate.VerifyManual(request.Confirm)), nil
}

func (a *Agent) handleVerifyOCR(_ context.Context, raw []byte) (any, error) {
	var request control.VerifyOCRRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, errors.New("invalid verify-ocr request")
	}
	return a.afterIdentityChange(a.gate.VerifyOCR(request.Text)), nil
}

// handleVerifyServer records an explicit verdict, or asks the Beacon
// API's auth gate whether it recognizes the current label.
func (a *Agent) handleVerifyServer(ctx context.Context, raw []byte) (any, error) {
	var request control.VerifyServerRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, errors.New("invalid verify-server request")
	}
	if request.OK != nil {
		return a.afterIdentityChange(a.gate.VerifyServer(*request.OK)), nil
	}

	if a.api == nil {
		return nil, errors.New("no server_url configured; pass an explicit verdict")
	}
	label := a.gate.Label()
	if label == "" {
		return a.gate.Snapshot(), nil
	}
	response, ok, err := a.api.AuthGate(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("auth gate: %w", err)
	}
	if !ok {
		a.logger.Warn("auth gate did not recognize label", "label", label, "echo", response.Label)
	}
	return a.afterIdentityChange(a.gate.VerifyServer(ok)), nil
}

func (a *Agent) afterIdentityChange(snapshot identity.Snapshot) identity.Snapshot {
	a.logger.Info("identity updated",
		"label", snapshot.Label,
		"state", snapshot.State().String(),
		"method", snapshot.Method.String(),
	)
	a.reconcile(false)
	return snapshot
}

// handleSubmit records an operator report and places it in the
// mailbox. Positions and party sizes are checked against the API's
// ranges so a bad value fails here rather than at the sink. Reports are
// only accepted while sharing is permitted, and only under the gate's
// verified label.
func (a *Agent) handleSubmit(_ context.Context, raw []byte) (any, error) {
	var request control.SubmitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, errors.New("invalid submit request")
	}
	if err := beaconapi.ValidatePosition(request.Position); err != nil {
		return nil, err
	}
	if request.PartySize != nil && (*request.PartySize < beaconapi.MinPartySize || *request.PartySize > beaconapi.MaxPartySize) {
		return nil, fmt.Errorf("party size %d outside %d..%d", *request.PartySize, beaconapi.MinPartySize, beaconapi.MaxPartySize)
	}
	if !a.permitted() {
		return nil, errors.New("sharing is not permitted: upload must be enabled and the label verified")
	}
	label := a.gate.Label()
	if request.Label != "" && request.Label != label {
		return nil, fmt.Errorf("label %q does not match the verified label %q", request.Label, label)
	}

	report := &operatorReport{
		region:    request.Region,
		position:  copyPosition(request.Position),
		partySize: copyInt(request.PartySize),
	}
	a.mu.Lock()
	a.report = report
	a.mu.Unlock()
	return a.engine.SubmitLocalState(label, a.reportRegion(report), report.position, report.partySize), nil
}

func (a *Agent) handleRelayEnable(_ context.Context, _ []byte) (any, error) {
	uploadEnabled, sharing := a.setUpload(true)
	return control.RelayResponse{UploadEnabled: uploadEnabled, Sharing: sharing}, nil
}

func (a *Agent) handleRelayDisable(_ context.Context, _ []byte) (any, error) {
	uploadEnabled, sharing := a.setUpload(false)
	return control.RelayResponse{UploadEnabled: uploadEnabled, Sharing: sharing}, nil
}
