package correlate

import (
	"sort"
	"time"

	"github.com/vigilhq/vigil-master/pkg/models"
)

// CorrelationWindow is how long after an alarm's last event a new event for
// the same association still folds into it. Longer than a day on purpose: a
// failing daily job must keep correlating to one incident instead of opening
// a fresh alarm every run.
const CorrelationWindow = 25 * time.Hour

// ChooseRelatedAlarm picks which open alarm, if any, the incoming event
// belongs to. Candidates are the open alarms already filtered to the event's
// association. The most recently active candidate wins if the event is a
// clear (a recovery always targets the live incident) or if it falls inside
// the correlation window; otherwise there is no match and the event is a new
// incident.
//
// Pure function of (candidates, eventTime, clear); no side effects.
func ChooseRelatedAlarm(candidates []*models.Alarm, eventTime time.Time, clear bool) *models.Alarm {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]*models.Alarm, len(candidates))
	copy(sorted, candidates)
	// Alarms that never absorbed an event sort last.
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].TimeLastEvent, sorted[j].TimeLastEvent
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	best := sorted[0]
	if clear {
		return best
	}
	if best.TimeLastEvent != nil && eventTime.Sub(*best.TimeLastEvent) < CorrelationWindow {
		return best
	}
	return nil
}
