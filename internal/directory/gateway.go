package directory

import (
	"context"
	"log/slog"

	"github.com/go-ldap/ldap/v3"

	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/resilient"
)

// Entry is one directory record: its DN plus attribute values.
type Entry struct {
	DN    string
	Attrs map[string][]string
}

// First returns the first value of the named attribute, or "".
func (e *Entry) First(attr string) string {
	if vals := e.Attrs[attr]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// SearchOpts narrows a subtree search.
type SearchOpts struct {
	Filter string
	// Scope is one of the ldap scope constants; defaults to WholeSubtree.
	Scope      int
	Attributes []string
}

// API is the gateway surface the stores consume.
type API interface {
	Get(ctx context.Context, dn string) (*Entry, error)
	Search(ctx context.Context, base string, opts SearchOpts) ([]*Entry, error)
	Add(ctx context.Context, dn string, attrs map[string][]string) error
	Modify(ctx context.Context, dn string, attrs map[string][]string) error
	Delete(ctx context.Context, dn string) error
}

// Gateway exposes typed directory operations over the resilient client and
// translates backend failures into the apperr taxonomy. It performs no
// caching; callers that write through it own the matching cache
// invalidation.
type Gateway struct {
	client *resilient.Client[Conn]
	log    *slog.Logger
}

// NewGateway wraps a resilient directory client.
func NewGateway(client *resilient.Client[Conn], log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{client: client, log: log}
}

// Get fetches exactly the entry at dn. Zero entries is NotFound; more than
// one is Conflict, which indicates backend inconsistency rather than caller
// error.
func (g *Gateway) Get(ctx context.Context, dn string) (*Entry, error) {
	h, err := g.client.Handle()
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "directory not connected")
	}
	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject,
		ldap.NeverDerefAliases, 0, 0, false, "(objectclass=*)", nil, nil)
	res, err := h.Conn.Search(req)
	if err != nil {
		return nil, g.translate(h, err, "get %q", dn)
	}
	switch len(res.Entries) {
	case 0:
		return nil, apperr.New(apperr.NotFound, "%q not found", dn)
	case 1:
		return entryFromLDAP(res.Entries[0]), nil
	default:
		g.log.Warn("multiple directory entries for one dn",
			"dn", dn, "count", len(res.Entries))
		return nil, apperr.New(apperr.Conflict, "conflicting entries for %q", dn)
	}
}

// Search runs a filtered search under base and returns all matches.
func (g *Gateway) Search(ctx context.Context, base string, opts SearchOpts) ([]*Entry, error) {
	h, err := g.client.Handle()
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "directory not connected")
	}
	scope := opts.Scope
	if scope == 0 {
		scope = ldap.ScopeWholeSubtree
	}
	filter := opts.Filter
	if filter == "" {
		filter = "(objectclass=*)"
	}
	req := ldap.NewSearchRequest(base, scope, ldap.NeverDerefAliases,
		0, 0, false, filter, opts.Attributes, nil)
	res, err := h.Conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			// An absent subtree reads as an empty result set.
			return nil, nil
		}
		return nil, g.translate(h, err, "search %q filter %q", base, filter)
	}
	entries := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, entryFromLDAP(e))
	}
	return entries, nil
}

// Add creates the entry at dn with the given attribute values.
func (g *Gateway) Add(ctx context.Context, dn string, attrs map[string][]string) error {
	h, err := g.client.Handle()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "directory not connected")
	}
	req := ldap.NewAddRequest(dn, nil)
	for name, vals := range attrs {
		req.Attribute(name, vals)
	}
	if err := h.Conn.Add(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return apperr.Wrap(apperr.Conflict, err, "%q already exists", dn)
		}
		return g.translate(h, err, "add %q", dn)
	}
	return nil
}

// Modify replaces the given attribute values on the entry at dn.
func (g *Gateway) Modify(ctx context.Context, dn string, attrs map[string][]string) error {
	h, err := g.client.Handle()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "directory not connected")
	}
	req := ldap.NewModifyRequest(dn, nil)
	for name, vals := range attrs {
		req.Replace(name, vals)
	}
	if err := h.Conn.Modify(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return apperr.Wrap(apperr.NotFound, err, "%q not found", dn)
		}
		return g.translate(h, err, "modify %q", dn)
	}
	return nil
}

// Delete removes the entry at dn. Deleting a nonexistent dn is NotFound.
func (g *Gateway) Delete(ctx context.Context, dn string) error {
	h, err := g.client.Handle()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "directory not connected")
	}
	if err := h.Conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return apperr.Wrap(apperr.NotFound, err, "%q not found", dn)
		}
		return g.translate(h, err, "delete %q", dn)
	}
	return nil
}

// translate maps a backend failure to the taxonomy. Network-class errors
// report the handle lost so the reconnect loop replaces it, and surface as
// Unavailable; everything else is Internal.
func (g *Gateway) translate(h resilient.Handle[Conn], err error, format string, args ...any) error {
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		g.client.Lost(h)
		return apperr.Wrap(apperr.Unavailable, err, format, args...)
	}
	return apperr.Wrap(apperr.Internal, err, format, args...)
}

func entryFromLDAP(e *ldap.Entry) *Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return &Entry{DN: e.DN, Attrs: attrs}
}
