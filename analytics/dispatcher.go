// Package analytics sends site instrumentation events to the collector and
// fronts the dispatcher and tag-manager bridge with a lazily loaded façade.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"washday/api/metrics"
	"washday/api/models"
	"washday/api/utils"
)

// Sender delivers a named event. Implementations never report failures to
// the caller.
type Sender interface {
	Send(ctx context.Context, name string, attrs map[string]any, actor *models.Actor)
}

const deliveryTimeout = 10 * time.Second

// Dispatcher posts events to the collector's /api/track endpoint. Each Send
// is delivered on its own goroutine; failures are logged and dropped.
type Dispatcher struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	sessionID string
	pagePath  func() string
	metrics   *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithAPIKey sets the X-API-KEY header the collector expects.
func WithAPIKey(key string) DispatcherOption {
	return func(d *Dispatcher) { d.apiKey = key }
}

// WithPagePath supplies the page path recorded on every event.
func WithPagePath(fn func() string) DispatcherOption {
	return func(d *Dispatcher) { d.pagePath = fn }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher for the collector at baseURL.
func NewDispatcher(baseURL string, opts ...DispatcherOption) (*Dispatcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("collector URL is not set")
	}

	d := &Dispatcher{
		endpoint:  baseURL + "/api/track",
		client:    &http.Client{Timeout: deliveryTimeout},
		sessionID: utils.GenerateSessionID(),
		pagePath:  func() string { return "/" },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewDispatcherFromEnv reads ANALYTICS_COLLECTOR_URL and AUTH_DEFAULT.
func NewDispatcherFromEnv(opts ...DispatcherOption) (*Dispatcher, error) {
	base := os.Getenv("ANALYTICS_COLLECTOR_URL")
	if base == "" {
		return nil, fmt.Errorf("ANALYTICS_COLLECTOR_URL environment variable is not set")
	}
	if key := os.Getenv("AUTH_DEFAULT"); key != "" {
		opts = append([]DispatcherOption{WithAPIKey(key)}, opts...)
	}
	return NewDispatcher(base, opts...)
}

// SessionID is the id stamped on every event from this dispatcher.
func (d *Dispatcher) SessionID() string {
	return d.sessionID
}

// Send delivers the event in the background. It never blocks on the network
// and never returns an error.
func (d *Dispatcher) Send(ctx context.Context, name string, attrs map[string]any, actor *models.Actor) {
	if name == "" {
		log.Println("analytics: dropping event with empty name")
		return
	}

	event, err := d.buildEvent(name, attrs, actor)
	if err != nil {
		log.Printf("analytics: failed to build event %q: %v", name, err)
		d.recordFailure()
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Printf("analytics: dispatcher closed, dropping event %q", name)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := d.deliver(ctx, event); err != nil {
			log.Printf("analytics: failed to deliver event %q: %v", name, err)
			d.recordFailure()
		}
	}()
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	d.client.CloseIdleConnections()
}

func (d *Dispatcher) buildEvent(name string, attrs map[string]any, actor *models.Actor) (models.AnalyticsEvent, error) {
	data := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		data[k] = v
	}
	event := models.AnalyticsEvent{
		EventID:   uuid.NewString(),
		EventType: name,
		SessionID: d.sessionID,
		Timestamp: time.Now().UTC(),
		PagePath:  utils.NormalizePagePath(d.pagePath()),
	}
	if actor != nil {
		event.UserID = actor.ID
		data["actor_id"] = actor.ID
		data["actor_name"] = actor.Name
		if actor.Phone != "" {
			data["actor_phone"] = actor.Phone
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return models.AnalyticsEvent{}, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	event.EventData = raw
	return event, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event models.AnalyticsEvent) error {
	body, err := json.Marshal([]models.AnalyticsEvent{event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-KEY", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) recordFailure() {
	if d.metrics != nil {
		d.metrics.DispatchFailures.Inc()
	}
}
