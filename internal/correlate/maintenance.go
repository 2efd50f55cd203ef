package correlate

import (
	"context"

	"github.com/vigilhq/vigil-master/pkg/models"
)

// HandleMaintenanceEnd is the entry point the maintenance scheduler invokes
// when a window expires. Faults that were suppressed under the window and
// are no longer covered by any still-active window move into the live fault
// set and go through the standard notify path.
func (e *Engine) HandleMaintenanceEnd(ctx context.Context, m *models.Maintenance) error {
	open, err := e.alarms.ListOpen(ctx, m.User)
	if err != nil {
		return err
	}

	var windows []*models.Maintenance
	if e.maint != nil {
		windows, err = e.maint.ActiveWindows(ctx, m.User)
		if err != nil {
			e.log.Warn("maintenance lookup failed, promoting all suppressed faults",
				"user", m.User, "error", err)
			windows = nil
		}
	}

	for _, alarm := range open {
		if len(alarm.MaintFaults) == 0 {
			continue
		}
		var still, promoted []models.Fault
		for _, f := range alarm.MaintFaults {
			if coveredByAny(windows, f) {
				still = append(still, f)
			} else {
				promoted = append(promoted, f)
			}
		}
		if len(promoted) == 0 {
			continue
		}
		alarm.MaintFaults = still
		alarm.Faults = append(alarm.Faults, promoted...)
		if err := e.alarms.Update(ctx, alarm); err != nil {
			return err
		}
		e.log.Info("maintenance ended, promoted suppressed faults",
			"user", m.User, "alarm", alarm.ID, "promoted", len(promoted))
		e.notifyPromoted(ctx, alarm)
	}
	return nil
}

// notifyPromoted re-resolves the alarm's contacts and dispatches. Lookup
// failures are logged, not propagated: the fault promotion is already
// committed.
func (e *Engine) notifyPromoted(ctx context.Context, alarm *models.Alarm) {
	user, err := e.users.Resolve(ctx, alarm.User)
	if err != nil {
		e.log.Warn("cannot resolve alarm owner for notification",
			"user", alarm.User, "alarm", alarm.ID, "error", err)
		return
	}

	var probe *models.Probe
	var group *models.ProbeGroup
	switch {
	case alarm.ProbeGroup != "":
		group, err = e.groups.Get(ctx, alarm.User, alarm.ProbeGroup)
	case alarm.Probe != "":
		probe, err = e.probes.Get(ctx, alarm.User, alarm.Probe)
	}
	if err != nil {
		e.log.Warn("cannot resolve alarm contacts for notification",
			"user", alarm.User, "alarm", alarm.ID, "error", err)
		return
	}
	if contacts := contactsFor(probe, group); len(contacts) > 0 {
		e.notify.NotifyContacts(ctx, user, contacts, alarm, nil)
	}
}

func coveredByAny(windows []*models.Maintenance, f models.Fault) bool {
	for _, w := range windows {
		if w.Covers(f) {
			return true
		}
	}
	return false
}
