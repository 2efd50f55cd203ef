// Package respcache is the redis-backed secondary cache: rendered response
// bodies, rate-limit counters, and a liveness signal for the health
// endpoint. Redis here is an accelerator, not a system of record; when it is
// down every lookup is a miss and the service keeps working.
package respcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigilhq/vigil-master/internal/resilient"
)

// ClientConfig holds connection settings for the cache service.
type ClientConfig struct {
	URL string
	// DB is the redis database to SELECT after connecting. The master keeps
	// its keys out of DB 0 so an operator FLUSHDB on the default database
	// cannot wipe them.
	DB             int
	ConnectTimeout time.Duration
}

// NewClient dials redis behind a resilient reconnect loop. Each connect
// verifies the server answers PING before the handle is published.
func NewClient(cfg ClientConfig, log *slog.Logger) (*resilient.Client[*redis.Client], error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	connect := func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}
	closeFn := func(c *redis.Client) { _ = c.Close() }
	return resilient.New[*redis.Client](resilient.Config{Name: "respcache"}, connect, closeFn, log), nil
}
