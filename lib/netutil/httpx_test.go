// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil || string(data) != `{"ok":true}` {
		t.Fatalf("ReadResponse = %q, %v", data, err)
	}
	if _, err := ReadResponse(failReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestDecodeResponse(t *testing.T) {
	var health struct {
		OK bool  `json:"ok"`
		TS int64 `json:"ts"`
	}
	if err := DecodeResponse(strings.NewReader(`{"ok":true,"ts":1755300000}`), &health); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !health.OK || health.TS != 1755300000 {
		t.Errorf("decoded %+v", health)
	}

	if err := DecodeResponse(strings.NewReader(`<html>`), &health); err == nil {
		t.Error("expected error for non-JSON body")
	}
	if err := DecodeResponse(failReader{}, &health); err == nil {
		t.Error("expected error from failing reader")
	}
}

func TestErrorBodyTruncates(t *testing.T) {
	body := ErrorBody(bytes.NewReader(bytes.Repeat([]byte("x"), 2*maxErrorBody)))
	if len(body) != maxErrorBody {
		t.Errorf("len = %d, want %d", len(body), maxErrorBody)
	}
	if got := ErrorBody(strings.NewReader("  bad party size \n")); got != "bad party size" {
		t.Errorf("ErrorBody = %q", got)
	}
}

func TestCheckStatus(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}
	if err := CheckStatus(ok); err != nil {
		t.Errorf("200: %v", err)
	}

	rejected := &http.Response{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       io.NopCloser(strings.NewReader(`{"detail":"party out of range"}`)),
	}
	err := CheckStatus(rejected)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != 422 || !strings.Contains(err.Error(), "party out of range") {
		t.Errorf("StatusError = %v", err)
	}

	empty := &StatusError{StatusCode: http.StatusBadGateway}
	if empty.Error() != "HTTP 502 Bad Gateway" {
		t.Errorf("empty body message = %q", empty.Error())
	}
}
