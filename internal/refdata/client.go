// Package refdata resolves routing and reference entities through a
// read-through TTL cache backed by the reference-data service.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"fieldrouter/internal/models"
)

// ErrNotFound is returned when the reference-data service has no entity for
// the requested id. Never cached.
var ErrNotFound = errors.New("refdata: not found")

// Client is the read-only lookup surface of the reference-data service.
type Client interface {
	Connection(ctx context.Context, id string) (*models.Connection, error)
	Route(ctx context.Context, id string) (*models.Route, error)
	Destination(ctx context.Context, id string) (*models.Destination, error)
	Integration(ctx context.Context, id string) (*models.Integration, error)
	Device(ctx context.Context, integrationID, deviceID string) (*models.Device, error)
	OutboundsByDevice(ctx context.Context, integrationID, deviceID string) ([]models.Destination, error)
}

// HTTPConfig holds settings for the HTTP reference-data client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// httpClient reaches the reference-data service over HTTP. Calls run behind
// a circuit breaker so a down service fails fast instead of holding every
// in-flight envelope on a timeout.
type httpClient struct {
	base    *url.URL
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPClient builds the HTTP implementation of Client.
func NewHTTPClient(cfg HTTPConfig) (Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("refdata: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "refdata",
			Timeout: 30 * time.Second,
		}),
	}, nil
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		u := *c.base
		joined, err := url.JoinPath(u.Path, path)
		if err != nil {
			return nil, err
		}
		u.Path = joined
		if query != nil {
			u.RawQuery = query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("refdata: %s returned %d", path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
}

func getEntity[T any](ctx context.Context, c *httpClient, path string, query url.Values) (*T, error) {
	data, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, ErrNotFound
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("refdata: decoding %s: %w", path, err)
	}
	return out, nil
}

func (c *httpClient) Connection(ctx context.Context, id string) (*models.Connection, error) {
	return getEntity[models.Connection](ctx, c, "v2/connections/"+id, nil)
}

func (c *httpClient) Route(ctx context.Context, id string) (*models.Route, error) {
	return getEntity[models.Route](ctx, c, "v2/routes/"+id, nil)
}

func (c *httpClient) Destination(ctx context.Context, id string) (*models.Destination, error) {
	return getEntity[models.Destination](ctx, c, "v2/integrations/"+id, nil)
}

func (c *httpClient) Integration(ctx context.Context, id string) (*models.Integration, error) {
	return getEntity[models.Integration](ctx, c, "v1/integrations/inbound/"+id, nil)
}

func (c *httpClient) Device(ctx context.Context, integrationID, deviceID string) (*models.Device, error) {
	q := url.Values{"integration_id": {integrationID}, "external_id": {deviceID}}
	return getEntity[models.Device](ctx, c, "v1/devices", q)
}

func (c *httpClient) OutboundsByDevice(ctx context.Context, integrationID, deviceID string) ([]models.Destination, error) {
	q := url.Values{"integration_id": {integrationID}, "device_id": {deviceID}}
	data, err := c.get(ctx, "v1/integrations/outbound", q)
	if err != nil {
		return nil, err
	}
	var out []models.Destination
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("refdata: decoding outbound list: %w", err)
	}
	return out, nil
}
