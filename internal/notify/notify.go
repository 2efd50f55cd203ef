// Package notify delivers alarm notifications to user contacts through an
// ordered set of medium plugins.
package notify

import (
	"context"
	"log/slog"

	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// Notification is one delivery: the contact to reach and the alarm state
// that triggered it.
type Notification struct {
	Contact models.Contact
	User    *models.User
	Alarm   *models.Alarm
	Event   *models.Event
}

// Plugin delivers notifications for the media it accepts.
type Plugin interface {
	// AcceptsMedium reports whether this plugin handles the given medium.
	AcceptsMedium(medium string) bool
	Notify(ctx context.Context, n Notification) error
}

// Registry holds plugins in registration order. Medium dispatch picks the
// first plugin that accepts, so registration order is part of the contract.
type Registry struct {
	plugins []Plugin
}

// NewRegistry builds a registry with the given plugins, in order.
func NewRegistry(plugins ...Plugin) *Registry {
	return &Registry{plugins: plugins}
}

// PluginFor returns the first plugin accepting medium.
func (r *Registry) PluginFor(medium string) (Plugin, error) {
	for _, p := range r.plugins {
		if p.AcceptsMedium(medium) {
			return p, nil
		}
	}
	return nil, apperr.New(apperr.InvalidArgument, "unsupported contact medium %q", medium)
}

// Dispatcher resolves each contact name against the user's profile and hands
// it to the matching plugin. Delivery failures are logged and swallowed;
// one dead address must not block the others or fail event processing.
type Dispatcher struct {
	reg *Registry
	log *slog.Logger
}

// NewDispatcher builds a dispatcher over the plugin registry.
func NewDispatcher(reg *Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{reg: reg, log: log}
}

// NotifyContacts fans one alarm update out to every named contact.
func (d *Dispatcher) NotifyContacts(ctx context.Context, user *models.User, contacts []string, alarm *models.Alarm, event *models.Event) {
	for _, name := range contacts {
		if err := d.notifyOne(ctx, user, name, alarm, event); err != nil {
			d.log.Warn("notification delivery failed",
				"user", user.UUID, "contact", name, "alarm", alarm.ID, "error", err)
		}
	}
}

func (d *Dispatcher) notifyOne(ctx context.Context, user *models.User, contactName string, alarm *models.Alarm, event *models.Event) error {
	contact, err := models.ContactForMedium(user, contactName)
	if err != nil {
		return err
	}
	plugin, err := d.reg.PluginFor(contact.Medium)
	if err != nil {
		return err
	}
	return plugin.Notify(ctx, Notification{
		Contact: *contact,
		User:    user,
		Alarm:   alarm,
		Event:   event,
	})
}
