// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings loads the agent's settings file into a canonical
// [Settings] value.
//
// The file is JSON (comments and trailing commas allowed) or YAML,
// chosen by extension. It may start with a byte order mark; UTF-16
// files with a BOM are decoded too. Several historical spellings are
// accepted for the same setting and collapsed here, so nothing past
// [Load] ever sees an alias:
//
//	label              nick, Nick
//	upload enabled     upload.enabled, UploadEnabled
//	heartbeat seconds  heartbeat.sec, HeartbeatSec
//	interface hint     capture.interface, Interface
//	BPF expression     capture.bpf, BPF
//	configured region  region, Region
//	label verified     NickValidated
//	last region        last_region
//	region hint        hint.region
//
// After the file, BEACON_* environment variables override individual
// fields (see the env tags on [Settings]). Defaults fill whatever is
// still unset, then [Settings.Validate] runs.
package settings
