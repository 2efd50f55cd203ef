package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// EventTypeProbe is a fault/recovery signal reported by a deployed probe.
	EventTypeProbe = "probe"
	// EventTypeFake is a synthetic event injected by tooling and test suites.
	EventTypeFake = "fake"
)

// KnownEventType reports whether t is one of the recognized event types.
// Events arrive from a trusted transport, so an unknown type indicates a
// bug upstream rather than caller error.
func KnownEventType(t string) bool {
	return t == EventTypeProbe || t == EventTypeFake
}

// Event is a single immutable fault or recovery signal reported for a probe.
// The transport layer parses and validates required fields before handing
// the event to the correlation engine, which treats it read-only.
type Event struct {
	ID        uuid.UUID       `json:"uuid"`
	Type      string          `json:"type"`
	User      string          `json:"user"`
	ProbeUUID string          `json:"probeUuid,omitempty"`
	Machine   string          `json:"machine,omitempty"`
	Clear     bool            `json:"clear"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data,omitempty"`
}
