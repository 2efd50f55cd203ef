package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Fault is one probe failure folded into an alarm's history.
type Fault struct {
	ProbeUUID string          `json:"probeUuid,omitempty"`
	Machine   string          `json:"machine,omitempty"`
	EventID   uuid.UUID       `json:"eventUuid"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Alarm is the stateful record of an ongoing or past incident correlating
// one or more events. While Closed is false, at most one alarm exists for a
// given (user, probe) or (user, probe group) pair; the correlation engine,
// not storage, enforces that.
type Alarm struct {
	ID   int64  `db:"id"   json:"id"`
	User string `db:"owner" json:"user"`
	// Probe and ProbeGroup are the association keys. At most one is set:
	// an alarm correlates by group when its probe belongs to one, by probe
	// otherwise, and by neither for probe-less events.
	Probe      string `db:"probe"       json:"probe,omitempty"`
	ProbeGroup string `db:"probe_group" json:"probeGroup,omitempty"`
	Closed     bool   `db:"closed"      json:"closed"`
	Suppressed bool   `db:"suppressed"  json:"suppressed"`
	NumEvents  int    `db:"num_events"  json:"numEvents"`
	// Faults are live failures; MaintFaults are failures that occurred
	// inside a maintenance window and were not notified.
	Faults      []Fault    `db:"faults"       json:"faults"`
	MaintFaults []Fault    `db:"maint_faults" json:"maintFaults,omitempty"`
	TimeOpened  time.Time  `db:"time_opened"  json:"timeOpened"`
	TimeClosed  *time.Time `db:"time_closed"  json:"timeClosed,omitempty"`
	// TimeLastEvent is the time of the most recent folded event. Nil for
	// an alarm that has never absorbed an event.
	TimeLastEvent *time.Time `db:"time_last_event" json:"timeLastEvent,omitempty"`
}

// HasFault reports whether the alarm already tracks a live fault for the
// given probe.
func (a *Alarm) HasFault(probeUUID string) bool {
	for _, f := range a.Faults {
		if f.ProbeUUID == probeUUID {
			return true
		}
	}
	return false
}
