// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// outboxPrefix starts every outbox file name.
const outboxPrefix = "hb-"

// Outbox writes each payload to <dir>/hb-<unix seconds>-<6 hex>.json.
// The hex suffix is the start of the BLAKE3 digest of the file
// content, so two different payloads written in the same second get
// different names and an identical payload rewrites the same file.
// Files are UTF-8 without a BOM, indented, and appear atomically.
type Outbox struct {
	directory string
	clock     clock.Clock
}

// NewOutbox creates directory if needed and returns a sink writing
// into it.
func NewOutbox(directory string, clk clock.Clock) (*Outbox, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating outbox %s: %w", directory, err)
	}
	return &Outbox{directory: directory, clock: clk}, nil
}

// Directory returns the outbox path.
func (o *Outbox) Directory() string {
	return o.directory
}

// Deliver implements share.Sink.
func (o *Outbox) Deliver(ctx context.Context, payload share.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := encodeIndented(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", payload.Kind(), err)
	}

	name := OutboxFileName(o.clock.Now().Unix(), content)
	path := filepath.Join(o.directory, name)
	if err := writeAtomic(path, content); err != nil {
		return fmt.Errorf("writing outbox file: %w", err)
	}
	return nil
}

// OutboxFileName returns the file name for content written at unix.
func OutboxFileName(unix int64, content []byte) string {
	digest := blake3.Sum256(content)
	return outboxPrefix + strconv.FormatInt(unix, 10) + "-" + hex.EncodeToString(digest[:3]) + ".json"
}

func encodeIndented(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// writeAtomic writes content to a temporary file in the target
// directory and renames it into place, so readers never see a
// partial file.
func writeAtomic(path string, content []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()
	if _, err := temporary.Write(content); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Chmod(temporaryPath, 0o644); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	return nil
}
