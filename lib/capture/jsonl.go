// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
)

// maxLineBytes bounds a single JSONL record. Capture logs hold one
// small object per packet; anything longer is corrupt.
const maxLineBytes = 1 << 20

// destinationKeys are the field names capture logs have used for the
// destination endpoint, in precedence order.
var destinationKeys = []string{"dst", "dst_ip", "ip_dst"}

// JSONLSource replays a newline-delimited JSON capture log. Each line
// is an object with "src", one of "dst"/"dst_ip"/"ip_dst", "len",
// "proto" and optionally "ts" (epoch seconds). Blank lines, lines that
// are not JSON objects and lines without a destination are skipped.
type JSONLSource struct {
	reader  io.Reader
	closers []func() error
}

// NewJSONLSource reads records from r. Close does not close r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	return &JSONLSource{reader: r}
}

// OpenJSONL opens a capture log file, decompressing by extension
// (see [CompressionForPath]).
func OpenJSONL(path string) (*JSONLSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture log: %w", err)
	}
	reader, release, err := decompressReader(file, CompressionForPath(path))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("capture log %s: %w", path, err)
	}
	return &JSONLSource{
		reader: reader,
		closers: []func() error{
			func() error { release(); return nil },
			file.Close,
		},
	}, nil
}

// Run implements [Source].
func (s *JSONLSource) Run(ctx context.Context, handle func(Event)) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		event, ok := ParseJSONLine(scanner.Bytes())
		if !ok {
			continue
		}
		handle(event)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading capture log: %w", err)
	}
	return nil
}

// Close implements [Source].
func (s *JSONLSource) Close() error {
	var first error
	for _, closer := range s.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// ParseJSONLine decodes one capture log record. The second result is
// false for blank, malformed or destination-less lines.
func ParseJSONLine(line []byte) (Event, bool) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return Event{}, false
	}
	var record map[string]any
	if err := json.Unmarshal(line, &record); err != nil {
		return Event{}, false
	}

	var event Event
	for _, key := range destinationKeys {
		if value, ok := record[key].(string); ok && value != "" {
			event.Destination = value
			break
		}
	}
	if event.Destination == "" {
		return Event{}, false
	}
	event.Source, _ = record["src"].(string)
	event.Protocol = strings.ToLower(stringField(record["proto"]))
	if length, ok := record["len"].(float64); ok && length > 0 {
		event.Length = int(length)
	}
	if ts, ok := record["ts"].(float64); ok && ts > 0 {
		seconds, fraction := math.Modf(ts)
		event.Time = time.Unix(int64(seconds), int64(fraction*1e9)).UTC()
	}
	return event, true
}

// stringField accepts protocol values logged either as names or as
// IP protocol numbers.
func stringField(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		switch int(typed) {
		case 6:
			return "tcp"
		case 17:
			return "udp"
		default:
			return fmt.Sprintf("%d", int(typed))
		}
	default:
		return ""
	}
}
