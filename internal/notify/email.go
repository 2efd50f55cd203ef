package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailPlugin sends alarm mail through a relay. It claims any medium whose
// name ends in "email" ("email", "secondaryEmail", ...).
type EmailPlugin struct {
	addr string
	from string
	// send is swapped out in tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewEmailPlugin builds the plugin against the given SMTP relay address.
func NewEmailPlugin(relayAddr, from string) *EmailPlugin {
	return &EmailPlugin{
		addr: relayAddr,
		from: from,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (p *EmailPlugin) AcceptsMedium(medium string) bool {
	return strings.HasSuffix(strings.ToLower(medium), "email")
}

func (p *EmailPlugin) Notify(ctx context.Context, n Notification) error {
	state := "ALERT"
	if n.Alarm.Closed || (n.Event != nil && n.Event.Clear) {
		state = "CLEAR"
	}
	subject := fmt.Sprintf("[%s] alarm %d for %s", state, n.Alarm.ID, n.Alarm.User)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.from)
	fmt.Fprintf(&b, "To: %s\r\n", n.Contact.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n\r\n", subject)
	fmt.Fprintf(&b, "Alarm %d has seen %d event(s).\r\n", n.Alarm.ID, n.Alarm.NumEvents)
	for _, f := range n.Alarm.Faults {
		fmt.Fprintf(&b, "  probe %s at %s\r\n", f.ProbeUUID, f.Time.UTC().Format("2006-01-02 15:04:05"))
	}

	if err := p.send(p.addr, p.from, []string{n.Contact.Address}, []byte(b.String())); err != nil {
		return fmt.Errorf("sending mail to %q: %w", n.Contact.Address, err)
	}
	return nil
}
