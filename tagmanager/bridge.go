// Package tagmanager forwards page views, conversions and events to the
// externally loaded tag-manager global once it reports ready.
package tagmanager

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

type State int

const (
	StateUninitialized State = iota
	StateWaiting
	StateReady
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

const (
	PollInterval = 100 * time.Millisecond
	WaitTimeout  = 5 * time.Second
)

// Global is the page-scoped tag-manager function and its readiness flag.
// The bridge never loads the script itself.
type Global interface {
	Loaded() bool
	Push(args ...any)
}

// Bridge waits for the global once per page session. Every caller shares the
// same outcome; READY and TIMED_OUT are terminal.
type Bridge struct {
	global        Global
	measurementID string
	clock         quartz.Clock

	start sync.Once
	done  chan struct{}

	mu    sync.Mutex
	state State
}

type Option func(*Bridge)

func WithClock(c quartz.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithMeasurementID sets the property id page views are configured against.
func WithMeasurementID(id string) Option {
	return func(b *Bridge) { b.measurementID = id }
}

func New(global Global, opts ...Option) *Bridge {
	b := &Bridge{
		global: global,
		clock:  quartz.NewReal(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Wait starts the readiness wait on first use and blocks until it resolves or
// ctx is done. It returns the state observed when it stopped waiting.
func (b *Bridge) Wait(ctx context.Context) State {
	b.start.Do(b.begin)
	select {
	case <-b.done:
	case <-ctx.Done():
	}
	return b.State()
}

func (b *Bridge) begin() {
	b.setState(StateWaiting)
	if b.global == nil {
		b.resolve(StateTimedOut)
		return
	}
	if b.global.Loaded() {
		b.resolve(StateReady)
		return
	}
	go b.poll()
}

func (b *Bridge) poll() {
	ticker := b.clock.NewTicker(PollInterval, "tagmanager", "poll")
	defer ticker.Stop()
	timeout := b.clock.NewTimer(WaitTimeout, "tagmanager", "timeout")
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			if b.global.Loaded() {
				b.resolve(StateReady)
				return
			}
		case <-timeout.C:
			if b.global.Loaded() {
				b.resolve(StateReady)
			} else {
				b.resolve(StateTimedOut)
			}
			return
		}
	}
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bridge) resolve(s State) {
	b.setState(s)
	close(b.done)
}

// Event forwards gtag('event', name, params).
func (b *Bridge) Event(ctx context.Context, name string, params map[string]any) {
	if b.Wait(ctx) != StateReady {
		return
	}
	if params == nil {
		params = map[string]any{}
	}
	b.global.Push("event", name, params)
}

// PageView configures the measurement id with the new page, or sends a plain
// page_view event when no measurement id is set.
func (b *Bridge) PageView(ctx context.Context, path, title string) {
	if b.Wait(ctx) != StateReady {
		return
	}
	params := map[string]any{"page_path": path, "page_title": title}
	if b.measurementID == "" {
		b.global.Push("event", "page_view", params)
		return
	}
	b.global.Push("config", b.measurementID, params)
}

// Conversion forwards a conversion for the given send_to target.
func (b *Bridge) Conversion(ctx context.Context, sendTo string, value float64, currency string) {
	if b.Wait(ctx) != StateReady {
		return
	}
	b.global.Push("event", "conversion", map[string]any{
		"send_to":  sendTo,
		"value":    value,
		"currency": currency,
	})
}
