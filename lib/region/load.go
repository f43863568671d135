// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadTable reads a region table from a JSON, JSONC or YAML file. The
// prefixes live under an "ip_prefixes" key or form the whole document.
// The format is chosen by extension: ".yaml"/".yml" parse as YAML,
// everything else as JSON with comments and trailing commas allowed.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region table: %w", err)
	}
	table, err := ParseTable(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("region table %s: %w", path, err)
	}
	return table, nil
}

// ParseTable parses region table content. ext selects the format as in
// LoadTable and may be empty for JSON.
func ParseTable(data []byte, ext string) (*Table, error) {
	var raw map[string]any
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}

	source := raw
	if wrapped, ok := raw["ip_prefixes"]; ok {
		mapping, ok := wrapped.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ip_prefixes must be a mapping, got %T", wrapped)
		}
		source = mapping
	}

	prefixes := make(map[string]string, len(source))
	for key, value := range source {
		label, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("prefix %s: label must be a string, got %T", key, value)
		}
		prefixes[key] = label
	}
	return NewTable(prefixes)
}
