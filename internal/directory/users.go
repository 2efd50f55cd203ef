package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-ldap/ldap/v3"

	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/cache"
	"github.com/vigilhq/vigil-master/pkg/models"
)

const (
	userBase     = "ou=users, o=vigil"
	operatorBase = "cn=operators, ou=groups, o=vigil"
	personClass  = "sdcperson"
)

// userCacheEntry caches both outcomes of a lookup, so a previous "no such
// user" is served without re-querying the backend.
type userCacheEntry struct {
	user *models.User
	err  error
}

// UserDirectory resolves user identifiers and operator membership, layering
// the UserGet/IsOperator cache scopes in front of the gateway.
type UserDirectory struct {
	gw  API
	reg *cache.Registry
	log *slog.Logger
}

// NewUserDirectory builds a resolver over the gateway and cache registry.
func NewUserDirectory(gw API, reg *cache.Registry, log *slog.Logger) *UserDirectory {
	if log == nil {
		log = slog.Default()
	}
	return &UserDirectory{gw: gw, reg: reg, log: log}
}

// Resolve looks up a user by UUID or login. A confirmed-absent user returns
// NotFound and is cached; an Unavailable backend is never cached, so the
// next call retries. On success the record is cached under both the uuid
// and the login so either alias hits.
func (d *UserDirectory) Resolve(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "user id is required")
	}

	if cached, ok := d.reg.Get(cache.ScopeUserGet, userID); ok {
		ent := cached.(userCacheEntry)
		return ent.user, ent.err
	}

	var filter string
	switch {
	case models.IsUserUUID(userID):
		filter = fmt.Sprintf("(&(uuid=%s)(objectclass=%s))", userID, personClass)
	case models.ValidLogin(userID):
		filter = fmt.Sprintf("(&(login=%s)(objectclass=%s))", userID, personClass)
	default:
		return nil, apperr.New(apperr.InvalidArgument,
			"user id is not a valid UUID or login: %q", userID)
	}

	entries, err := d.gw.Search(ctx, userBase, SearchOpts{
		Filter: filter,
		Scope:  ldap.ScopeSingleLevel,
	})
	if err != nil {
		if apperr.IsKind(err, apperr.Unavailable) {
			return nil, err // never cache a couldn't-check result
		}
		d.reg.Set(cache.ScopeUserGet, userID, userCacheEntry{err: err})
		return nil, err
	}

	switch len(entries) {
	case 0:
		nf := apperr.New(apperr.NotFound, "no such user: %q", userID)
		d.reg.Set(cache.ScopeUserGet, userID, userCacheEntry{err: nf})
		return nil, nf
	case 1:
		user := userFromEntry(entries[0])
		ent := userCacheEntry{user: user}
		d.reg.Set(cache.ScopeUserGet, user.UUID, ent)
		if user.Login != "" {
			d.reg.Set(cache.ScopeUserGet, user.Login, ent)
		}
		return user, nil
	default:
		d.log.Error("multiple directory entries match one user id",
			"user_id", userID, "count", len(entries))
		return nil, apperr.New(apperr.Internal,
			"error determining user for %q", userID)
	}
}

// IsOperator reports whether the user belongs to the operators group.
func (d *UserDirectory) IsOperator(ctx context.Context, userUUID string) (bool, error) {
	if !models.IsUserUUID(userUUID) {
		return false, apperr.New(apperr.InvalidArgument,
			"not a valid user uuid: %q", userUUID)
	}

	if cached, ok := d.reg.Get(cache.ScopeIsOperator, userUUID); ok {
		return cached.(bool), nil
	}

	filter := fmt.Sprintf("(uniquemember=uuid=%s, %s)", userUUID, userBase)
	entries, err := d.gw.Search(ctx, operatorBase, SearchOpts{
		Filter:     filter,
		Scope:      ldap.ScopeBaseObject,
		Attributes: []string{"dn"},
	})
	if err != nil {
		return false, err
	}
	isOp := len(entries) > 0
	d.reg.Set(cache.ScopeIsOperator, userUUID, isOp)
	return isOp, nil
}

func userFromEntry(e *Entry) *models.User {
	u := &models.User{
		UUID:      e.First("uuid"),
		Login:     e.First("login"),
		Email:     e.First("email"),
		FirstName: e.First("givenname"),
		LastName:  e.First("sn"),
		Attrs:     make(map[string]string),
	}
	for name, vals := range e.Attrs {
		if len(vals) > 0 {
			u.Attrs[name] = vals[0]
		}
	}
	return u
}
