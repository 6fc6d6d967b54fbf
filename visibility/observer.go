// Package visibility reports the first time a page section enters the
// viewport.
package visibility

import (
	"context"
	"sync"

	"github.com/coder/quartz"

	"washday/api/analytics"
	"washday/api/gate"
	"washday/api/models"
)

const (
	DefaultThreshold = 0.1
	DefaultMarginPx  = -50
	DefaultEventName = "section_viewed"
)

// Entry is one intersection callback for an observed region.
type Entry struct {
	Intersecting bool
	Ratio        float64
}

// Options configure the underlying intersection primitive. MarginPx shrinks
// (negative) or grows the viewport before intersections are computed.
type Options struct {
	Threshold float64
	MarginPx  int
}

// Source is the viewport-intersection primitive. Observe starts delivering
// entries for one region until the returned release func is called.
type Source interface {
	Observe(opts Options, callback func(Entry)) (release func())
}

// ActorFunc returns the current actor, or nil when nobody is signed in.
type ActorFunc func() *models.Actor

// Observer fires one view event for its section, then lets go of the
// observation.
type Observer struct {
	ctx       context.Context
	section   string
	eventName string
	sender    analytics.Sender
	actor     ActorFunc
	clock     quartz.Clock
	opts      Options
	fired     *gate.Gate

	mu      sync.Mutex
	closed  bool
	release func()
}

type Option func(*Observer)

func WithThreshold(ratio float64) Option {
	return func(o *Observer) { o.opts.Threshold = ratio }
}

func WithMargin(px int) Option {
	return func(o *Observer) { o.opts.MarginPx = px }
}

func WithEventName(name string) Option {
	return func(o *Observer) { o.eventName = name }
}

func WithActor(fn ActorFunc) Option {
	return func(o *Observer) { o.actor = fn }
}

func WithClock(c quartz.Clock) Option {
	return func(o *Observer) { o.clock = c }
}

// Watch starts observing section through src. The caller must Close the
// observer when the section unmounts.
func Watch(ctx context.Context, src Source, section string, sender analytics.Sender, opts ...Option) *Observer {
	o := &Observer{
		ctx:       ctx,
		section:   section,
		eventName: DefaultEventName,
		sender:    sender,
		clock:     quartz.NewReal(),
		opts:      Options{Threshold: DefaultThreshold, MarginPx: DefaultMarginPx},
		fired:     gate.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	// The primitive may call back before Observe returns.
	release := src.Observe(o.opts, o.handle)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		if release != nil {
			release()
		}
		return o
	}
	o.release = release
	o.mu.Unlock()
	return o
}

// Fired reports whether the view event has been sent.
func (o *Observer) Fired() bool {
	return o.fired.Fired()
}

// Close disconnects the observation. Safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	o.closed = true
	release := o.release
	o.release = nil
	o.mu.Unlock()
	if release != nil {
		release()
	}
}

func (o *Observer) handle(e Entry) {
	if !e.Intersecting {
		return
	}
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed || !o.fired.Fire() {
		return
	}

	anon := models.AnonymousActor
	actor := &anon
	if o.actor != nil {
		if a := o.actor(); a != nil {
			actor = a
		}
	}
	if o.sender != nil {
		o.sender.Send(o.ctx, o.eventName, map[string]any{
			"section": o.section,
			"time":    o.clock.Now().Local().Format("15:04"),
		}, actor)
	}
	o.Close()
}
