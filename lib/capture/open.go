// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"path/filepath"
	"strings"
)

// OpenFile opens a recorded capture for replay. Uncompressed ".pcap"
// files are decoded as packets; everything else, including compressed
// files, is read as a JSONL log.
func OpenFile(path string) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pcap") {
		return OpenPcap(path)
	}
	return OpenJSONL(path)
}
