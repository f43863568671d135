// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultHeartbeatSeconds = 120
	MaxHeartbeatSeconds     = 24 * 60 * 60
	DefaultRegion           = "UNKNOWN"
	DefaultOutboxDir        = "outbox"
	DefaultSinkKind         = SinkOutbox
)

// Sink kinds.
const (
	SinkOutbox = "outbox"
	SinkHTTP   = "http"
	SinkSocket = "socket"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BEACON_"

// ErrNotFound is returned by [Load] when the settings file does not
// exist.
var ErrNotFound = errors.New("settings file not found")

// Settings is the resolved agent configuration.
type Settings struct {
	// Label is the player label whose activity is relayed.
	Label string `env:"LABEL"`

	// LabelVerified seeds the identity gate: a true value restores the
	// label as already verified.
	LabelVerified bool `env:"LABEL_VERIFIED"`

	UploadEnabled    bool `env:"UPLOAD_ENABLED"`
	HeartbeatSeconds int  `env:"HEARTBEAT_SEC"`

	RegionHint       string `env:"REGION_HINT"`
	LastRegion       string `env:"LAST_REGION"`
	ConfiguredRegion string `env:"REGION"`

	// InterfaceHint is the capture interface as the user wrote it.
	// netiface.Resolve normalizes it.
	InterfaceHint string `env:"INTERFACE"`

	// BPF is recorded and logged. Capture does not compile it.
	BPF string `env:"BPF"`

	// CaptureFile replays a JSONL or pcap capture instead of live
	// capture when set.
	CaptureFile string `env:"CAPTURE_FILE"`

	// RegionTable is the path of the prefix table. Empty means no
	// region can be inferred.
	RegionTable string `env:"REGION_TABLE"`

	SinkKind   string `env:"SINK"`
	OutboxDir  string `env:"OUTBOX_DIR"`
	ServerURL  string `env:"SERVER_URL"`
	SinkSocket string `env:"SINK_SOCKET"`

	ControlSocket string `env:"CONTROL_SOCKET"`

	// MetricsAddr is the listen address for /metrics. Empty disables
	// the metrics listener.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Default returns settings with every default applied and nothing
// else set.
func Default() *Settings {
	return &Settings{
		LabelVerified:    true,
		HeartbeatSeconds: DefaultHeartbeatSeconds,
		ConfiguredRegion: DefaultRegion,
		SinkKind:         DefaultSinkKind,
		OutboxDir:        DefaultOutboxDir,
		ControlSocket:    filepath.Join(os.TempDir(), "beacon-agent.sock"),
	}
}

// Load reads path, applies BEACON_* overrides from the process
// environment, fills defaults and validates.
func Load(path string) (*Settings, error) {
	return load(path, nil)
}

// load is Load with an explicit environment. A nil environment reads
// the process environment.
func load(path string, environment map[string]string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	options := env.Options{Prefix: EnvPrefix, Environment: environment}
	if err := env.ParseWithOptions(settings, options); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Parse decodes a settings document and collapses its aliases. ext
// selects the format: ".yaml" and ".yml" are YAML, anything else is
// JSON with comments. Defaults for absent keys are applied; the
// environment is not consulted.
func Parse(data []byte, ext string) (*Settings, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, fmt.Errorf("decoding text: %w", err)
	}

	document := map[string]any{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(decoded, &document); err != nil {
			return nil, err
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(decoded)))
		decoder.UseNumber()
		if err := decoder.Decode(&document); err != nil {
			return nil, err
		}
	}
	if document == nil {
		document = map[string]any{}
	}
	return fromDocument(document)
}

// fromDocument collapses aliases. Where two spellings exist, the
// first one with a non-empty value wins, except the BPF expression
// and heartbeat seconds, where the nested key wins whenever it is
// present at all.
func fromDocument(document map[string]any) (*Settings, error) {
	settings := Default()
	upload := section(document, "upload")
	heartbeat := section(document, "heartbeat")
	capture := section(document, "capture")
	hint := section(document, "hint")

	settings.Label = firstString(document["nick"], document["Nick"])
	settings.UploadEnabled = truthy(upload["enabled"]) || truthy(document["UploadEnabled"])

	seconds, present := heartbeat["sec"]
	if !present {
		seconds, present = document["HeartbeatSec"]
	}
	if present {
		value, err := toInt(seconds)
		if err != nil {
			return nil, fmt.Errorf("heartbeat seconds: %w", err)
		}
		if value != 0 {
			settings.HeartbeatSeconds = value
		}
	}

	settings.InterfaceHint = firstString(capture["interface"], document["Interface"])
	if value, ok := capture["bpf"]; ok {
		settings.BPF = stringOf(value)
	} else {
		settings.BPF = stringOf(document["BPF"])
	}
	settings.CaptureFile = stringOf(capture["file"])

	if region := firstString(document["region"], document["Region"]); region != "" {
		settings.ConfiguredRegion = region
	}
	if value, ok := document["NickValidated"]; ok {
		settings.LabelVerified = truthy(value)
	}
	settings.LastRegion = stringOf(document["last_region"])
	settings.RegionHint = stringOf(hint["region"])

	settings.RegionTable = stringOf(document["region_table"])
	if value := stringOf(document["sink"]); value != "" {
		settings.SinkKind = value
	}
	if value := stringOf(document["outbox_dir"]); value != "" {
		settings.OutboxDir = value
	}
	settings.ServerURL = stringOf(document["server_url"])
	settings.SinkSocket = stringOf(document["sink_socket"])
	if value := stringOf(document["control_socket"]); value != "" {
		settings.ControlSocket = value
	}
	settings.MetricsAddr = stringOf(document["metrics_addr"])
	return settings, nil
}

// applyDefaults restores defaults cleared by environment overrides
// such as BEACON_REGION="".
func (s *Settings) applyDefaults() {
	defaults := Default()
	if s.HeartbeatSeconds == 0 {
		s.HeartbeatSeconds = defaults.HeartbeatSeconds
	}
	if s.ConfiguredRegion == "" {
		s.ConfiguredRegion = defaults.ConfiguredRegion
	}
	if s.SinkKind == "" {
		s.SinkKind = defaults.SinkKind
	}
	if s.OutboxDir == "" {
		s.OutboxDir = defaults.OutboxDir
	}
	if s.ControlSocket == "" {
		s.ControlSocket = defaults.ControlSocket
	}
}

// Validate checks the sink selection and numeric ranges.
func (s *Settings) Validate() error {
	var errs []error
	switch {
	case s.HeartbeatSeconds < 0:
		errs = append(errs, fmt.Errorf("heartbeat seconds must not be negative, got %d", s.HeartbeatSeconds))
	case s.HeartbeatSeconds > MaxHeartbeatSeconds:
		errs = append(errs, fmt.Errorf("heartbeat seconds must not exceed %d, got %d", MaxHeartbeatSeconds, s.HeartbeatSeconds))
	}
	if s.ConfiguredRegion == "" {
		errs = append(errs, errors.New("configured region is required"))
	}
	switch s.SinkKind {
	case SinkOutbox:
		if s.OutboxDir == "" {
			errs = append(errs, errors.New("outbox sink requires outbox_dir"))
		}
	case SinkHTTP:
		if s.ServerURL == "" {
			errs = append(errs, errors.New("http sink requires server_url"))
		}
	case SinkSocket:
		if s.SinkSocket == "" {
			errs = append(errs, errors.New("socket sink requires sink_socket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q (want %s, %s or %s)", s.SinkKind, SinkOutbox, SinkHTTP, SinkSocket))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

func section(document map[string]any, key string) map[string]any {
	if nested, ok := document[key].(map[string]any); ok {
		return nested
	}
	return map[string]any{}
}

func firstString(values ...any) string {
	for _, value := range values {
		if text := stringOf(value); text != "" {
			return text
		}
	}
	return ""
}

func stringOf(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	default:
		return fmt.Sprint(typed)
	}
}

// truthy treats false, zero, empty strings and the strings accepted
// by strconv.ParseBool as false as false. Any other value is true.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		text := strings.TrimSpace(typed)
		if parsed, err := strconv.ParseBool(text); err == nil {
			return parsed
		}
		return text != ""
	case json.Number:
		number, err := typed.Float64()
		return err != nil || number != 0
	case int:
		return typed != 0
	case float64:
		return typed != 0
	default:
		return true
	}
}

func floatToInt(value float64) (int, error) {
	if value != math.Trunc(value) {
		return 0, fmt.Errorf("%v is not a whole number", value)
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		return 0, fmt.Errorf("%v is out of range", value)
	}
	return int(value), nil
}

func toInt(value any) (int, error) {
	switch typed := value.(type) {
	case nil:
		return 0, nil
	case int:
		return typed, nil
	case float64:
		return floatToInt(typed)
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return int(integer), nil
		}
		number, err := typed.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a whole number", typed)
		}
		return floatToInt(number)
	case string:
		text := strings.TrimSpace(typed)
		if text == "" {
			return 0, nil
		}
		integer, err := strconv.Atoi(text)
		if err != nil {
			return 0, fmt.Errorf("%q is not a whole number", typed)
		}
		return integer, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", typed)
	}
}
