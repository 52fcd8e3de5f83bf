package transform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

type smartHTTPClient struct {
	http *http.Client
}

// NewSmartHTTPClient builds the data-model download client. Only the
// data-model read is implemented here; all other destination operations
// belong to the per-destination dispatchers.
func NewSmartHTTPClient(timeout time.Duration) SmartClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &smartHTTPClient{http: &http.Client{Timeout: timeout}}
}

func (c *smartHTTPClient) DataModel(ctx context.Context, endpoint, token, caUUID string) (*DataModel, error) {
	u := strings.TrimRight(endpoint, "/") + "/api/data/datamodel?ca_uuid=" + url.QueryEscape(caUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data model download for %s returned %d", caUUID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	dm := &DataModel{}
	if err := json.Unmarshal(body, dm); err != nil {
		return nil, fmt.Errorf("decoding data model for %s: %w", caUUID, err)
	}
	if dm.Attributes == nil {
		dm.Attributes = map[string]DMAttribute{}
	}
	return dm, nil
}
