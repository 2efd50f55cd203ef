package models

import (
	"regexp"

	"github.com/google/uuid"
)

// loginRE is the allow-list for login strings. Anything outside this set is
// rejected before the login is interpolated into a directory search filter,
// which keeps filter metacharacters out of queries.
var loginRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.@]+$`)

// IsUserUUID reports whether id parses as a UUID.
func IsUserUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidLogin reports whether login contains only allow-listed characters.
func ValidLogin(login string) bool {
	return loginRE.MatchString(login)
}

// User is a directory person record. Attrs carries the remaining directory
// attributes verbatim; contact mediums (e.g. "email", "secondaryEmail") are
// resolved out of it by naming convention.
type User struct {
	UUID      string            `json:"uuid"`
	Login     string            `json:"login"`
	Email     string            `json:"email"`
	FirstName string            `json:"firstName,omitempty"`
	LastName  string            `json:"lastName,omitempty"`
	Attrs     map[string]string `json:"-"`
}

// Field returns the named directory attribute of the user. The well-known
// fields are served from the struct, anything else from Attrs.
func (u *User) Field(name string) string {
	switch name {
	case "uuid":
		return u.UUID
	case "login":
		return u.Login
	case "email":
		return u.Email
	default:
		return u.Attrs[name]
	}
}
