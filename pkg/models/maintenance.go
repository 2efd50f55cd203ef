package models

import "time"

// Maintenance is a scheduled window during which faults for the covered
// probes or machines are recorded but not notified. Windows are managed by
// an external scheduler; the master only consults them when deciding whether
// a suppressed fault is still covered.
type Maintenance struct {
	ID       int64     `json:"id"`
	User     string    `json:"user"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Notes    string    `json:"notes,omitempty"`
	All      bool      `json:"all,omitempty"`
	Probes   []string  `json:"probes,omitempty"`
	Machines []string  `json:"machines,omitempty"`
}

// Active reports whether the window covers the instant t.
func (m *Maintenance) Active(t time.Time) bool {
	return !t.Before(m.Start) && t.Before(m.End)
}

// Covers reports whether the window applies to the given fault.
func (m *Maintenance) Covers(f Fault) bool {
	if m.All {
		return true
	}
	for _, p := range m.Probes {
		if p == f.ProbeUUID {
			return true
		}
	}
	for _, mach := range m.Machines {
		if mach != "" && mach == f.Machine {
			return true
		}
	}
	return false
}
