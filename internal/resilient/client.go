// Package resilient wraps a single external dependency with automatic
// reconnect and exponential backoff. Callers get the current live handle or
// fail fast; they never block waiting for a reconnect. The reconnect loop
// runs independently of request traffic and owns its own timer.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrUnavailable means no live handle exists right now. Retryable by
	// the caller's own policy.
	ErrUnavailable = errors.New("backend not available")
	// ErrClosed means Shutdown was called; the client is terminal.
	ErrClosed = errors.New("client closed")
)

// ConnectFunc dials the backend and prepares the handle for use (bind,
// namespace/database select, and so on). It is called by the reconnect
// loop, never by request traffic.
type ConnectFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc releases a handle.
type CloseFunc[T any] func(T)

// Config tunes the reconnect loop.
type Config struct {
	// Name tags log lines.
	Name string
	// InitialDelay is the first backoff delay. Default 100ms.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Default 10s.
	MaxDelay time.Duration
	// MaxAttempts bounds connect attempts per outage; 0 retries forever.
	MaxAttempts int

	// sleep is a test seam for the backoff wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// Handle is a leased view of the live connection. The generation lets Lost
// ignore reports about handles that have already been replaced.
type Handle[T any] struct {
	Conn T
	gen  uint64
}

// Client keeps one live handle to a backend and replaces it in the
// background when it is lost. Safe for concurrent use; reconnect state
// transitions are serialized so concurrent callers never trigger their own
// connect attempts.
type Client[T any] struct {
	cfg     Config
	connect ConnectFunc[T]
	closeFn CloseFunc[T]
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	handle     T
	hasHandle  bool
	gen        uint64
	connecting bool
	closed     bool
}

// New builds the client and starts its first connect attempt.
func New[T any](cfg Config, connect ConnectFunc[T], closeFn CloseFunc[T], log *slog.Logger) *Client[T] {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	if log == nil {
		log = slog.Default()
	}
	if closeFn == nil {
		closeFn = func(T) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client[T]{
		cfg:     cfg,
		connect: connect,
		closeFn: closeFn,
		log:     log.With("client", cfg.Name),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.mu.Lock()
	c.startReconnectLocked()
	c.mu.Unlock()
	return c
}

// Handle returns the live handle, ErrUnavailable while disconnected, or
// ErrClosed after Shutdown. Never blocks on reconnection.
func (c *Client[T]) Handle() (Handle[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Handle[T]{}, ErrClosed
	}
	if !c.hasHandle {
		return Handle[T]{}, ErrUnavailable
	}
	return Handle[T]{Conn: c.handle, gen: c.gen}, nil
}

// Lost reports that an operation on h failed fatally. The handle is closed
// and the backoff loop restarted. Reports about a handle that has already
// been replaced are ignored.
func (c *Client[T]) Lost(h Handle[T]) {
	c.mu.Lock()
	if c.closed || !c.hasHandle || h.gen != c.gen {
		c.mu.Unlock()
		return
	}
	old := c.handle
	var zero T
	c.handle = zero
	c.hasHandle = false
	c.log.Warn("handle lost; reconnecting")
	c.startReconnectLocked()
	c.mu.Unlock()
	c.closeFn(old)
}

// Shutdown makes the client terminal: the backoff timer is cancelled and
// the live handle, if any, closed. Handle always fails with ErrClosed
// afterwards.
func (c *Client[T]) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	var old T
	had := c.hasHandle
	if had {
		old = c.handle
		var zero T
		c.handle = zero
		c.hasHandle = false
	}
	c.mu.Unlock()
	if had {
		c.closeFn(old)
	}
}

// startReconnectLocked launches the reconnect loop unless one is already in
// flight. Caller must hold the lock.
func (c *Client[T]) startReconnectLocked() {
	if c.connecting || c.closed || c.hasHandle {
		return
	}
	c.connecting = true
	go c.reconnectLoop()
}

func (c *Client[T]) reconnectLoop() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialDelay
	bo.MaxInterval = c.cfg.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}
		attempt++
		h, err := c.connect(c.ctx)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				c.closeFn(h)
				return
			}
			c.handle = h
			c.hasHandle = true
			c.gen++
			c.connecting = false
			c.mu.Unlock()
			c.log.Info("connected", "attempt", attempt)
			return
		}
		if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
			c.mu.Lock()
			c.connecting = false
			c.mu.Unlock()
			c.log.Error("giving up after max connect attempts",
				"attempts", attempt, "error", err)
			return
		}
		delay := bo.NextBackOff()
		c.log.Warn("connect failed; backing off",
			"attempt", attempt, "delay", delay, "error", err)
		if err := c.cfg.sleep(c.ctx, delay); err != nil {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
