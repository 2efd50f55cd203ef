// Package inventory talks to the fleet inventory service, which knows every
// compute server in the datacenter. The master only needs one question
// answered: does a given server exist.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for inventory client failures.
var (
	ErrInventoryUnreachable = errors.New("inventory unreachable")
	ErrInventoryQueryError  = errors.New("inventory query error")
	ErrInventoryTimeout     = errors.New("inventory query timeout")
)

// Server is one compute server record.
type Server struct {
	UUID     string `json:"uuid"`
	Hostname string `json:"hostname"`
	Setup    bool   `json:"setup"`
}

// Client is the interface for querying the inventory service.
type Client interface {
	ListServers(ctx context.Context) ([]Server, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client using the inventory HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new inventory HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListServers(ctx context.Context) ([]Server, error) {
	u := fmt.Sprintf("%s/servers", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInventoryQueryError, resp.StatusCode)
	}

	var servers []Server
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decoding inventory response: %w", err)
	}
	return servers, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ping", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInventoryUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: inventory not ready (status %d)", ErrInventoryUnreachable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInventoryTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInventoryTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrInventoryUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrInventoryUnreachable, err)
}
