// Package directory speaks to the directory service, the system of record
// for users, probes, probe groups and contacts. It layers three things: a
// resilient LDAP connection, a typed gateway with a small error taxonomy,
// and read-through cached stores for the entities the correlation engine
// needs.
package directory

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/vigilhq/vigil-master/internal/resilient"
)

// Conn is the subset of *ldap.Conn the gateway uses. Narrowed so tests can
// substitute a fake backend.
type Conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	Close() error
}

// ClientConfig holds connection settings for the directory service.
type ClientConfig struct {
	URL            string
	BindDN         string
	BindPassword   string
	ConnectTimeout time.Duration
	// OpTimeout bounds every outbound operation so a stalled directory
	// call cannot hang a request handler.
	OpTimeout time.Duration
}

// NewClient dials the directory service behind a resilient reconnect loop.
// Each successful connect re-binds and re-arms the operation timeout, so a
// replaced handle needs no further setup by callers.
func NewClient(cfg ClientConfig, log *slog.Logger) *resilient.Client[Conn] {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	connect := func(ctx context.Context) (Conn, error) {
		conn, err := ldap.DialURL(cfg.URL,
			ldap.DialWithDialer(&net.Dialer{Timeout: cfg.ConnectTimeout}))
		if err != nil {
			return nil, err
		}
		conn.SetTimeout(cfg.OpTimeout)
		if cfg.BindDN != "" {
			if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
	closeFn := func(c Conn) { _ = c.Close() }
	return resilient.New[Conn](resilient.Config{Name: "directory"}, connect, closeFn, log)
}
