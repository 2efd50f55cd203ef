package store

import (
	"context"
	"errors"

	"github.com/vigilhq/vigil-master/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// State filters alarm listings.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	// StateRecent matches open alarms plus alarms closed within the last
	// hour, the default view for dashboards.
	StateRecent State = "recent"
	StateAll    State = "all"
)

// ValidState reports whether s is an accepted listing state.
func ValidState(s State) bool {
	switch s {
	case StateOpen, StateClosed, StateRecent, StateAll:
		return true
	}
	return false
}

// AlarmFilter narrows a listing. Owner is required; the rest are optional.
type AlarmFilter struct {
	Owner      string
	State      State
	Probe      string
	ProbeGroup string
}

// AlarmStore is the alarm persistence interface. Alarm ids are numeric and
// scoped per owner, so (owner, id) names one alarm.
type AlarmStore interface {
	Ping(ctx context.Context) error

	// Create assigns the next id for the alarm's owner and persists it.
	Create(ctx context.Context, alarm *models.Alarm) error
	Get(ctx context.Context, owner string, id int64) (*models.Alarm, error)
	List(ctx context.Context, filter AlarmFilter) ([]*models.Alarm, error)
	// ListOpen returns every open alarm for the owner, most recent event
	// first, which is the order the correlation engine consumes.
	ListOpen(ctx context.Context, owner string) ([]*models.Alarm, error)

	// Update persists the mutable alarm fields after event folding.
	Update(ctx context.Context, alarm *models.Alarm) error
	SetClosed(ctx context.Context, owner string, id int64, closed bool) error
	SetSuppressed(ctx context.Context, owner string, id int64, suppressed bool) error
	Delete(ctx context.Context, owner string, id int64) error
}
