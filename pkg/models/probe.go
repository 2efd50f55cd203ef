package models

// Probe is a configured health check owned by a user, optionally a member
// of a ProbeGroup. Probes are owned by the directory service; the master
// caches them read-only.
type Probe struct {
	UUID  string `json:"uuid"`
	User  string `json:"user"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Agent string `json:"agent"`
	// Group links to the owning ProbeGroup, if any. The reference may be
	// stale: the group can be deleted while probes still point at it.
	Group string `json:"group,omitempty"`
	// GroupEvents controls correlation. When false, every event from this
	// probe opens a fresh alarm instead of folding into an existing one.
	GroupEvents bool     `json:"groupEvents"`
	Contacts    []string `json:"contacts,omitempty"`
	Machine     string   `json:"machine,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
}

// ProbeGroup is a named grouping of probes sharing one escalation identity.
type ProbeGroup struct {
	UUID     string   `json:"uuid"`
	User     string   `json:"user"`
	Name     string   `json:"name"`
	Contacts []string `json:"contacts,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
}
