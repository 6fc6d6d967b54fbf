// Package scroll reports scroll-depth milestones for a page.
package scroll

import (
	"context"
	"sync"

	"washday/api/analytics"
	"washday/api/gate"
	"washday/api/models"
)

// Document is the page being scrolled.
type Document interface {
	// ScrollHeight is the full height of the document content.
	ScrollHeight() float64
	ViewportHeight() float64
	// OnScroll registers a scroll listener; remove unregisters it.
	OnScroll(fn func(scrollTop float64)) (remove func())
	// OnResize observes document size changes; disconnect stops observing.
	OnResize(fn func()) (disconnect func())
}

// Scheduler defers work off the scroll path.
type Scheduler interface {
	RequestFrame(fn func())
	RequestIdle(fn func())
}

type Threshold struct {
	Percent   float64
	EventName string
}

// Thresholds are evaluated in this order on every frame. The last milestone
// fires at 90% but is reported as scroll_100_percent, which is what the
// existing dashboards query for.
var Thresholds = [...]Threshold{
	{Percent: 25, EventName: models.EventScroll25},
	{Percent: 50, EventName: models.EventScroll50},
	{Percent: 75, EventName: models.EventScroll75},
	{Percent: 90, EventName: models.EventScroll100},
}

type ActorFunc func() *models.Actor

// Tracker owns the scroll state of one page. It is not shared between pages;
// Navigate starts a fresh state for the next one.
type Tracker struct {
	ctx    context.Context
	doc    Document
	sched  Scheduler
	sender analytics.Sender
	actor  ActorFunc

	mu           sync.Mutex
	page         string
	crossed      [len(Thresholds)]*gate.Gate
	scrollable   float64
	measured     bool
	framePending bool
	scrollTop    float64
	closed       bool

	removeScroll     func()
	disconnectResize func()
}

type Option func(*Tracker)

func WithActor(fn ActorFunc) Option {
	return func(t *Tracker) { t.actor = fn }
}

// NewTracker starts tracking page. Height measurement is deferred to the next
// idle callback. Close must be called when the page goes away.
func NewTracker(ctx context.Context, page string, doc Document, sched Scheduler, sender analytics.Sender, opts ...Option) *Tracker {
	t := &Tracker{
		ctx:    ctx,
		doc:    doc,
		sched:  sched,
		sender: sender,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.reset(page)

	t.removeScroll = doc.OnScroll(t.onScroll)
	t.disconnectResize = doc.OnResize(t.onResize)
	sched.RequestIdle(t.measure)
	return t
}

// Navigate resets every milestone for a new page.
func (t *Tracker) Navigate(page string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.reset(page)
	t.mu.Unlock()
	t.sched.RequestIdle(t.measure)
}

// Page is the page currently tracked.
func (t *Tracker) Page() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

// Close removes the scroll listener and disconnects the resize observer.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	removeScroll, disconnectResize := t.removeScroll, t.disconnectResize
	t.removeScroll, t.disconnectResize = nil, nil
	t.mu.Unlock()

	if removeScroll != nil {
		removeScroll()
	}
	if disconnectResize != nil {
		disconnectResize()
	}
}

// reset must be called with mu held (or before the tracker is shared).
func (t *Tracker) reset(page string) {
	t.page = page
	for i := range t.crossed {
		t.crossed[i] = gate.New()
	}
	t.measured = false
	t.scrollable = 0
	t.scrollTop = 0
}

func (t *Tracker) measure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.measureLocked()
}

func (t *Tracker) measureLocked() {
	t.scrollable = t.doc.ScrollHeight() - t.doc.ViewportHeight()
	t.measured = true
}

func (t *Tracker) onResize() {
	t.measure()
}

func (t *Tracker) onScroll(scrollTop float64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.scrollTop = scrollTop
	if t.framePending {
		t.mu.Unlock()
		return
	}
	t.framePending = true
	t.mu.Unlock()

	t.sched.RequestFrame(t.frame)
}

func (t *Tracker) frame() {
	t.mu.Lock()
	t.framePending = false
	if t.closed {
		t.mu.Unlock()
		return
	}
	if !t.measured {
		// Scrolled before the idle measurement ran.
		t.measureLocked()
	}
	if t.scrollable <= 0 {
		t.mu.Unlock()
		return
	}

	pct := t.scrollTop / t.scrollable * 100
	var crossed []Threshold
	for i, th := range Thresholds {
		if pct >= th.Percent && t.crossed[i].Fire() {
			crossed = append(crossed, th)
		}
	}
	page := t.page
	t.mu.Unlock()

	if len(crossed) == 0 || t.sender == nil {
		return
	}
	var actor *models.Actor
	if t.actor != nil {
		actor = t.actor()
	}
	for _, th := range crossed {
		t.sender.Send(t.ctx, th.EventName, map[string]any{
			"page":      page,
			"threshold": th.Percent,
		}, actor)
	}
}
