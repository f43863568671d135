// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a capture log on disk is compressed.
// Long captures are rotated and compressed by the operator; replay
// reads them without an intermediate decompression step.
type Compression uint8

const (
	// CompressionNone is a plain JSONL file.
	CompressionNone Compression = iota

	// CompressionZstd is a zstd stream (".zst", ".zstd").
	CompressionZstd

	// CompressionLZ4 is an LZ4 frame stream (".lz4").
	CompressionLZ4
)

// String returns the name used in log lines and flags.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// CompressionForPath infers the compression from a file extension.
func CompressionForPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompressReader wraps r so reads yield decompressed bytes. The
// returned closer releases decoder state but does not close r.
func decompressReader(r io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return r, func() {}, nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoder, decoder.Close, nil

	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}
