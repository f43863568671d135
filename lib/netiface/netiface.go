// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netiface normalizes the capture interface a user typed into
// settings. Windows users paste adapter GUIDs, device paths or
// localized adapter names; Linux users give plain interface names.
package netiface

import (
	"strings"
)

// DevicePrefix is the Npcap device path prefix on Windows.
const DevicePrefix = `\Device\NPF_`

// Names substituted for recognized friendly adapter names.
const (
	WiFi     = "Wi-Fi"
	Ethernet = "Ethernet"
)

// minimumBareGUID is the shortest hint treated as a GUID pasted
// without braces.
const minimumBareGUID = 32

var (
	wifiMarkers     = []string{"wi-fi", "wifi", "무선"}
	ethernetMarkers = []string{"ethernet", "이더넷", "lan"}
)

// Resolve maps a hint to the device name capture should open:
//
//	""                          ""
//	\Device\NPF_{...}           unchanged
//	{GUID}                      \Device\NPF_GUID
//	contains wi-fi/wifi/무선     Wi-Fi
//	contains ethernet/이더넷/lan Ethernet
//	32+ hex digits and dashes   \Device\NPF_GUID
//	anything else               the trimmed hint
//
// Friendly-name matching is case-insensitive and checked before the
// bare GUID rule.
func Resolve(hint string) string {
	trimmed := strings.TrimSpace(hint)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, DevicePrefix) {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && len(trimmed) > 20 {
		return DevicePrefix + strings.Trim(trimmed, "{}")
	}

	lower := strings.ToLower(trimmed)
	if containsAny(lower, wifiMarkers) {
		return WiFi
	}
	if containsAny(lower, ethernetMarkers) {
		return Ethernet
	}
	if len(trimmed) >= minimumBareGUID && onlyGUIDCharacters(lower) {
		return DevicePrefix + strings.Trim(trimmed, "{}")
	}
	return trimmed
}

// IsDevicePath reports whether name is an Npcap device path.
func IsDevicePath(name string) bool {
	return strings.HasPrefix(name, DevicePrefix)
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func onlyGUIDCharacters(text string) bool {
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r == '-', r == '{', r == '}':
		default:
			return false
		}
	}
	return true
}
