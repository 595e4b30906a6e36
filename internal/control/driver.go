package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Driver switches the physical spray pump. Implementations must be safe for
// one caller at a time; the sprayer serializes all access.
type Driver interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
}

// HTTPRelayDriver drives a pump relay exposed by a relay bridge service
// (e.g. a GPIO daemon on the gateway box).
type HTTPRelayDriver struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRelayDriver creates a driver for the relay bridge at endpoint.
func NewHTTPRelayDriver(endpoint string) *HTTPRelayDriver {
	return &HTTPRelayDriver{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (d *HTTPRelayDriver) On(ctx context.Context) error  { return d.set(ctx, "on") }
func (d *HTTPRelayDriver) Off(ctx context.Context) error { return d.set(ctx, "off") }

func (d *HTTPRelayDriver) set(ctx context.Context, state string) error {
	body, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/relay", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}

// NopDriver is used when no local relay is attached and actuation happens
// only on the remote node.
type NopDriver struct{}

func (NopDriver) On(ctx context.Context) error  { return nil }
func (NopDriver) Off(ctx context.Context) error { return nil }
