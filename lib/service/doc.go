// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the local transports Beacon processes use
// to talk to each other and to expose metrics:
//
//   - [SocketServer]: a CBOR request-response protocol on a Unix
//     socket. Each connection carries exactly one request and one
//     response. Requests are CBOR maps with an "action" field; the
//     server routes on it and wraps the handler's result in a
//     [Response] envelope {ok, error, data}.
//   - [Client]: the matching caller. One connection per Call.
//   - [HTTPServer]: a TCP HTTP listener with Ready/Addr and graceful
//     shutdown, used for the agent's /metrics endpoint and the mock
//     API.
//
// # Authentication
//
// The control socket accepts only connections from the user the
// server runs as. On Linux the peer's UID is read with SO_PEERCRED
// and compared before the request is decoded; elsewhere the check is
// skipped and filesystem permissions on the socket (0600) are the only
// gate.
//
// Handlers receive the raw CBOR request and decode their own fields:
//
//	server.Handle("set-label", func(ctx context.Context, raw []byte) (any, error) {
//	    var request struct {
//	        Label string `cbor:"label"`
//	    }
//	    if err := codec.Unmarshal(raw, &request); err != nil {
//	        return nil, err
//	    }
//	    return gate.SetLabel(request.Label), nil
//	})
package service
