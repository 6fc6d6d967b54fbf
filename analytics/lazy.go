package analytics

import (
	"context"
	"fmt"
	"log"
	"sync"

	"washday/api/models"
)

// TagManager is the subset of the tag-manager bridge the façade drives.
type TagManager interface {
	Event(ctx context.Context, name string, params map[string]any)
	PageView(ctx context.Context, path, title string)
	Conversion(ctx context.Context, sendTo string, value float64, currency string)
}

// Backends are the implementations the façade defers acquiring.
type Backends struct {
	Sender     Sender
	TagManager TagManager
}

// Loader builds the backends on first use.
type Loader func(ctx context.Context) (Backends, error)

// Lazy defers loading the dispatcher and tag-manager bridge until one of its
// operations is first called. Load failures are logged and the call becomes a
// no-op; the next call tries to load again.
//
// Tag-manager calls run in the background, in call order, so a slow or
// missing tag-manager script never holds up the caller.
type Lazy struct {
	load Loader

	mu       sync.Mutex
	loaded   bool
	backends Backends
	inflight chan struct{}
	lastErr  error
	closed   bool
	tagTail  chan struct{}
	tagWG    sync.WaitGroup
}

func NewLazy(load Loader) *Lazy {
	return &Lazy{load: load}
}

var _ Sender = (*Lazy)(nil)

func (l *Lazy) acquire(ctx context.Context) (Backends, error) {
	l.mu.Lock()
	if l.loaded {
		b := l.backends
		l.mu.Unlock()
		return b, nil
	}
	if wait := l.inflight; wait != nil {
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return Backends{}, ctx.Err()
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.loaded {
			return Backends{}, l.lastErr
		}
		return l.backends, nil
	}
	wait := make(chan struct{})
	l.inflight = wait
	l.mu.Unlock()

	b, err := l.runLoad(ctx)

	l.mu.Lock()
	if err == nil {
		l.loaded = true
		l.backends = b
	}
	l.lastErr = err
	l.inflight = nil
	l.mu.Unlock()
	close(wait)
	return b, err
}

func (l *Lazy) runLoad(ctx context.Context) (b Backends, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	if l.load == nil {
		return Backends{}, fmt.Errorf("no loader configured")
	}
	return l.load(ctx)
}

func (l *Lazy) backendsFor(ctx context.Context, op string) (Backends, bool) {
	b, err := l.acquire(ctx)
	if err != nil {
		log.Printf("analytics: failed to load tracking for %s: %v", op, err)
		return Backends{}, false
	}
	return b, true
}

// Send tracks a named event.
func (l *Lazy) Send(ctx context.Context, name string, attrs map[string]any, actor *models.Actor) {
	b, ok := l.backendsFor(ctx, name)
	if !ok || b.Sender == nil {
		return
	}
	b.Sender.Send(ctx, name, attrs, actor)
}

// PageView tracks a page view with the collector and the tag manager.
func (l *Lazy) PageView(ctx context.Context, path, title string, actor *models.Actor) {
	b, ok := l.backendsFor(ctx, "page_view")
	if !ok {
		return
	}
	if b.Sender != nil {
		b.Sender.Send(ctx, "page_view", map[string]any{"path": path, "title": title}, actor)
	}
	if tm := b.TagManager; tm != nil {
		l.tag(ctx, func(ctx context.Context) { tm.PageView(ctx, path, title) })
	}
}

// Order describes a pickup order placed through a scheduling CTA.
type Order struct {
	ID       string
	Service  string
	Value    float64
	Currency string
	// SendTo is the tag-manager conversion target; empty skips the conversion.
	SendTo string
}

// Order tracks a placed order and reports it as a conversion.
func (l *Lazy) Order(ctx context.Context, order Order, actor *models.Actor) {
	b, ok := l.backendsFor(ctx, "order_placed")
	if !ok {
		return
	}
	if b.Sender != nil {
		b.Sender.Send(ctx, "order_placed", map[string]any{
			"order_id": order.ID,
			"service":  order.Service,
			"value":    order.Value,
			"currency": order.Currency,
		}, actor)
	}
	if tm := b.TagManager; tm != nil && order.SendTo != "" {
		l.tag(ctx, func(ctx context.Context) { tm.Conversion(ctx, order.SendTo, order.Value, order.Currency) })
	}
}

// Service tracks a visit to a service detail page.
func (l *Lazy) Service(ctx context.Context, slug string, actor *models.Actor) {
	b, ok := l.backendsFor(ctx, "service_viewed")
	if !ok || b.Sender == nil {
		return
	}
	b.Sender.Send(ctx, "service_viewed", map[string]any{"service": slug}, actor)
}

func (l *Lazy) TagEvent(ctx context.Context, name string, params map[string]any) {
	b, ok := l.backendsFor(ctx, name)
	if !ok || b.TagManager == nil {
		return
	}
	tm := b.TagManager
	l.tag(ctx, func(ctx context.Context) { tm.Event(ctx, name, params) })
}

func (l *Lazy) TagPageView(ctx context.Context, path, title string) {
	b, ok := l.backendsFor(ctx, "tag_page_view")
	if !ok || b.TagManager == nil {
		return
	}
	tm := b.TagManager
	l.tag(ctx, func(ctx context.Context) { tm.PageView(ctx, path, title) })
}

func (l *Lazy) TagConversion(ctx context.Context, sendTo string, value float64, currency string) {
	b, ok := l.backendsFor(ctx, "tag_conversion")
	if !ok || b.TagManager == nil {
		return
	}
	tm := b.TagManager
	l.tag(ctx, func(ctx context.Context) { tm.Conversion(ctx, sendTo, value, currency) })
}

// Loaded reports whether the backends have been acquired.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// tag queues fn behind earlier tag-manager calls and returns immediately.
// The call outlives the caller's context; the bridge bounds its own wait.
func (l *Lazy) tag(ctx context.Context, fn func(context.Context)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		log.Println("analytics: closed, dropping tag-manager call")
		return
	}
	prev := l.tagTail
	done := make(chan struct{})
	l.tagTail = done
	l.tagWG.Add(1)
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer l.tagWG.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn(ctx)
	}()
}

// Close stops accepting tag-manager calls, waits for the queued ones, then
// waits for the loaded sender's pending deliveries when it supports that. It
// does not trigger a load.
func (l *Lazy) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.tagWG.Wait()

	l.mu.Lock()
	b, loaded := l.backends, l.loaded
	l.mu.Unlock()
	if !loaded {
		return
	}
	if c, ok := b.Sender.(interface{ Close() }); ok {
		c.Close()
	}
}
