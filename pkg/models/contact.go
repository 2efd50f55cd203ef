package models

import (
	"github.com/vigilhq/vigil-master/internal/apperr"
)

// Contact is a notification target bound to a user. The medium is the name
// of the directory attribute holding the address ("email", "secondaryEmail",
// "pagerUrl", ...); notification plugins claim mediums by naming convention.
type Contact struct {
	Medium  string `json:"medium"`
	Address string `json:"address"`
}

// ContactForMedium resolves a contact of the given user. A user without the
// named attribute cannot be notified on that medium.
func ContactForMedium(u *User, medium string) (*Contact, error) {
	if u == nil {
		return nil, apperr.New(apperr.InvalidArgument, "user is required")
	}
	addr := u.Field(medium)
	if addr == "" {
		return nil, apperr.New(apperr.InvalidArgument,
			"user %q has no %q contact field", u.UUID, medium)
	}
	return &Contact{Medium: medium, Address: addr}, nil
}
