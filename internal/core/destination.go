// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core

import "strings"

// Destination is a message target. Kind is provider specific ("channel",
// "room", "email", "user", ...).
type Destination struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// ParseDestination reads a destination from a decoded JSON value. A string
// yields {id, defaultKind}; an object yields {id, kind} with both trimmed and
// the kind defaulting to defaultKind. Blank ids are rejected.
func ParseDestination(v any, defaultKind string) (Destination, bool) {
	switch val := v.(type) {
	case string:
		id := strings.TrimSpace(val)
		if id == "" {
			return Destination{}, false
		}
		return Destination{ID: id, Kind: defaultKind}, true
	case map[string]any:
		id, _ := val["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			return Destination{}, false
		}
		kind, _ := val["kind"].(string)
		kind = strings.TrimSpace(kind)
		if kind == "" {
			kind = defaultKind
		}
		return Destination{ID: id, Kind: kind}, true
	default:
		return Destination{}, false
	}
}
