// Package correlate turns the event stream into alarms: deciding whether an
// event belongs to an existing incident or opens a new one, folding faults
// into alarm history, and fanning out notifications.
package correlate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/notify"
	"github.com/vigilhq/vigil-master/internal/store"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// UserResolver resolves a user id (uuid or login) to a user record.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
}

// ProbeGetter loads one probe by owner and uuid.
type ProbeGetter interface {
	Get(ctx context.Context, user, probeUUID string) (*models.Probe, error)
}

// GroupGetter loads one probe group by owner and uuid.
type GroupGetter interface {
	Get(ctx context.Context, user, groupUUID string) (*models.ProbeGroup, error)
}

// Notifier fans an alarm update out to the given contacts. Best effort;
// implementations log failures rather than returning them.
type Notifier interface {
	NotifyContacts(ctx context.Context, user *models.User, contacts []string, alarm *models.Alarm, event *models.Event)
}

// MaintenanceSource lists the maintenance windows currently active for a
// user. Faults raised under an active window are recorded but not notified.
type MaintenanceSource interface {
	ActiveWindows(ctx context.Context, user string) ([]*models.Maintenance, error)
}

// Engine runs the correlation pipeline.
type Engine struct {
	users  UserResolver
	probes ProbeGetter
	groups GroupGetter
	alarms store.AlarmStore
	notify Notifier
	maint  MaintenanceSource
	log    *slog.Logger

	// Per-(user, association) locks serialize correlation and folding so
	// two concurrent events for the same incident cannot both decide "no
	// open alarm" and each create one.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds an engine. maint may be nil when no maintenance scheduler is
// deployed; everything then counts as uncovered.
func New(users UserResolver, probes ProbeGetter, groups GroupGetter, alarms store.AlarmStore, notifier Notifier, maint MaintenanceSource, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		users:  users,
		probes: probes,
		groups: groups,
		alarms: alarms,
		notify: notifier,
		maint:  maint,
		log:    log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// ProcessEvent runs one event through the pipeline. A nil return means the
// event was either folded into an alarm or intentionally dropped (a clear
// with nothing to clear).
func (e *Engine) ProcessEvent(ctx context.Context, event *models.Event) error {
	if !models.KnownEventType(event.Type) {
		// The transport validates events before handing them over, so an
		// unknown type means a bug upstream, not caller error.
		return apperr.New(apperr.Internal, "unknown event type %q", event.Type)
	}

	user, err := e.users.Resolve(ctx, event.User)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return apperr.Wrap(apperr.InvalidArgument, err, "no such user %q", event.User)
		}
		return err
	}

	var probe *models.Probe
	if event.ProbeUUID != "" {
		probe, err = e.probes.Get(ctx, user.UUID, event.ProbeUUID)
		if err != nil {
			// Without the probe's grouping the event cannot be correlated.
			return err
		}
	}

	var group *models.ProbeGroup
	if probe != nil && probe.Group != "" {
		group, err = e.groups.Get(ctx, user.UUID, probe.Group)
		if err != nil {
			// Stale group references are tolerated: correlate by probe.
			e.log.Warn("probe references unloadable group, correlating without it",
				"probe", probe.UUID, "group", probe.Group, "error", err)
			group = nil
		}
	}

	// An alarm associates with the group when its probe belongs to one,
	// with the probe otherwise, never both.
	var assocProbe, assocGroup string
	if group != nil {
		assocGroup = group.UUID
	} else if probe != nil {
		assocProbe = probe.UUID
	}

	// The lock covers both the correlation decision and the fold, so a
	// concurrent event for the same association always sees the previous
	// event's committed state.
	lock := e.lockFor(user.UUID + "|" + assocProbe + "|" + assocGroup)
	lock.Lock()
	defer lock.Unlock()

	alarm, err := e.getOrCreateAlarm(ctx, event, user, probe, assocProbe, assocGroup)
	if err != nil {
		return err
	}
	if alarm == nil {
		e.log.Debug("dropping clear event with no open alarm",
			"user", user.UUID, "probe", event.ProbeUUID)
		return nil
	}

	return e.handleEvent(ctx, alarm, event, user, probe, group)
}

func (e *Engine) getOrCreateAlarm(ctx context.Context, event *models.Event, user *models.User, probe *models.Probe, assocProbe, assocGroup string) (*models.Alarm, error) {
	// groupEvents=false means every event is its own incident.
	if probe != nil && !probe.GroupEvents {
		return e.createAlarm(ctx, event, user, assocProbe, assocGroup)
	}

	open, err := e.alarms.ListOpen(ctx, user.UUID)
	if err != nil {
		return nil, err
	}
	var candidates []*models.Alarm
	for _, a := range open {
		if a.Probe == assocProbe && a.ProbeGroup == assocGroup {
			candidates = append(candidates, a)
		}
	}

	if chosen := ChooseRelatedAlarm(candidates, event.Time, event.Clear); chosen != nil {
		return chosen, nil
	}
	if event.Clear {
		// A recovery with nothing to recover is dropped, not alarmed.
		return nil, nil
	}
	return e.createAlarm(ctx, event, user, assocProbe, assocGroup)
}

func (e *Engine) createAlarm(ctx context.Context, event *models.Event, user *models.User, assocProbe, assocGroup string) (*models.Alarm, error) {
	alarm := &models.Alarm{
		User:       user.UUID,
		Probe:      assocProbe,
		ProbeGroup: assocGroup,
		TimeOpened: event.Time.UTC(),
	}
	if err := e.alarms.Create(ctx, alarm); err != nil {
		return nil, err
	}
	e.log.Info("opened alarm", "user", user.UUID, "alarm", alarm.ID,
		"probe", assocProbe, "group", assocGroup)
	return alarm, nil
}

// handleEvent folds the event into the alarm's fault history, persists, and
// dispatches notifications. Notification is best effort relative to the
// committed state change.
func (e *Engine) handleEvent(ctx context.Context, alarm *models.Alarm, event *models.Event, user *models.User, probe *models.Probe, group *models.ProbeGroup) error {
	alarm.NumEvents++

	suppressed := false
	if event.Clear {
		alarm.Faults = removeFaults(alarm.Faults, event.ProbeUUID)
		alarm.MaintFaults = removeFaults(alarm.MaintFaults, event.ProbeUUID)
		if len(alarm.Faults) == 0 && len(alarm.MaintFaults) == 0 {
			alarm.Closed = true
			now := time.Now().UTC()
			alarm.TimeClosed = &now
		}
	} else {
		fault := models.Fault{
			ProbeUUID: event.ProbeUUID,
			Machine:   event.Machine,
			EventID:   event.ID,
			Time:      event.Time.UTC(),
			Data:      event.Data,
		}
		suppressed = e.inMaintenance(ctx, alarm.User, fault)
		if !alarm.HasFault(event.ProbeUUID) {
			if suppressed {
				alarm.MaintFaults = append(alarm.MaintFaults, fault)
			} else {
				alarm.Faults = append(alarm.Faults, fault)
			}
		}
	}

	// TimeLastEvent only moves forward; an out-of-order late event must not
	// rewind the correlation window.
	t := event.Time.UTC()
	if alarm.TimeLastEvent == nil || t.After(*alarm.TimeLastEvent) {
		alarm.TimeLastEvent = &t
	}

	if err := e.alarms.Update(ctx, alarm); err != nil {
		return err
	}

	if !suppressed && !alarm.Suppressed {
		if contacts := contactsFor(probe, group); len(contacts) > 0 {
			e.notify.NotifyContacts(ctx, user, contacts, alarm, event)
		}
	}
	return nil
}

// inMaintenance reports whether the fault is covered by an active window.
// Maintenance lookup failures err toward notifying.
func (e *Engine) inMaintenance(ctx context.Context, user string, fault models.Fault) bool {
	if e.maint == nil {
		return false
	}
	windows, err := e.maint.ActiveWindows(ctx, user)
	if err != nil {
		e.log.Warn("maintenance lookup failed, treating fault as uncovered",
			"user", user, "error", err)
		return false
	}
	for _, w := range windows {
		if w.Covers(fault) {
			return true
		}
	}
	return false
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// contactsFor picks the notification contact list: the group's when the
// alarm correlates by group, the probe's otherwise.
func contactsFor(probe *models.Probe, group *models.ProbeGroup) []string {
	if group != nil {
		return group.Contacts
	}
	if probe != nil {
		return probe.Contacts
	}
	return nil
}

func removeFaults(faults []models.Fault, probeUUID string) []models.Fault {
	out := faults[:0]
	for _, f := range faults {
		if f.ProbeUUID != probeUUID {
			out = append(out, f)
		}
	}
	return out
}

// interface satisfaction checks for the default wiring
var _ Notifier = (*notify.Dispatcher)(nil)
