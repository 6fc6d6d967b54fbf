// Package catalog reads the laundry service catalog from the API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"washday/api/listcache"
	"washday/api/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL. A nil httpClient
// gets one with a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("catalog base URL cannot be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

// NewClientFromEnv reads CATALOG_URL, falling back to ANALYTICS_COLLECTOR_URL
// since both are served by the same API in the default deployment.
func NewClientFromEnv() (*Client, error) {
	base := os.Getenv("CATALOG_URL")
	if base == "" {
		base = os.Getenv("ANALYTICS_COLLECTOR_URL")
	}
	return NewClient(base, nil)
}

// ListServices fetches the full catalog ordered by position.
func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/services", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch services: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog responded with status %d", resp.StatusCode)
	}

	var services []models.Service
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

// CloseIdleConnections releases pooled connections held by the client.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// NewCache fronts the client's service list with a process-wide cache. Build
// it once and hand it to every page that renders the catalog.
func NewCache(c *Client) *listcache.Cache[models.Service] {
	return listcache.New(c.ListServices)
}
