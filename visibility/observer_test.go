package visibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washday/api/models"
)

type fakeSource struct {
	mu       sync.Mutex
	opts     Options
	callback func(Entry)
	released int
	// initial is delivered synchronously from Observe, like a primitive that
	// reports the current state on subscription.
	initial *Entry
}

func (s *fakeSource) Observe(opts Options, callback func(Entry)) func() {
	s.mu.Lock()
	s.opts = opts
	s.callback = callback
	initial := s.initial
	s.mu.Unlock()
	if initial != nil {
		callback(*initial)
	}
	return func() {
		s.mu.Lock()
		s.released++
		s.callback = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(e Entry) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb != nil {
		cb(e)
	}
}

func (s *fakeSource) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type sent struct {
	name  string
	attrs map[string]any
	actor *models.Actor
}

type recordingSender struct {
	mu     sync.Mutex
	events []sent
}

func (r *recordingSender) Send(_ context.Context, name string, attrs map[string]any, actor *models.Actor) {
	r.mu.Lock()
	r.events = append(r.events, sent{name, attrs, actor})
	r.mu.Unlock()
}

func mockClockAt(t *testing.T, hour, minute int) *quartz.Mock {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 3, 14, hour, minute, 30, 0, time.Local))
	return mClock
}

func TestObserverFiresOncePerMount(t *testing.T) {
	src := &fakeSource{}
	sender := &recordingSender{}
	o := Watch(context.Background(), src, "how-it-works", sender,
		WithClock(mockClockAt(t, 9, 5)),
		WithThreshold(0.3),
		WithMargin(-100),
	)
	assert.Equal(t, Options{Threshold: 0.3, MarginPx: -100}, src.opts)

	src.emit(Entry{Intersecting: false, Ratio: 0})
	require.Empty(t, sender.events)
	require.False(t, o.Fired())

	src.emit(Entry{Intersecting: true, Ratio: 0.4})
	for i := 0; i < 5; i++ {
		src.emit(Entry{Intersecting: false})
		src.emit(Entry{Intersecting: true, Ratio: 1})
	}

	require.Len(t, sender.events, 1)
	ev := sender.events[0]
	assert.Equal(t, DefaultEventName, ev.name)
	assert.Equal(t, map[string]any{"section": "how-it-works", "time": "09:05"}, ev.attrs)
	assert.Equal(t, models.AnonymousActor, *ev.actor)
	assert.True(t, o.Fired())
	assert.Equal(t, 1, src.Released(), "observer is released after firing")

	o.Close()
	assert.Equal(t, 1, src.Released())
}

func TestObserverUsesActorAndTwentyFourHourClock(t *testing.T) {
	src := &fakeSource{}
	sender := &recordingSender{}
	actor := &models.Actor{ID: "9", Name: "Noor", Phone: "+15550199"}
	Watch(context.Background(), src, "pricing", sender,
		WithClock(mockClockAt(t, 21, 47)),
		WithEventName("pricing_section_viewed"),
		WithActor(func() *models.Actor { return actor }),
	)
	assert.Equal(t, Options{Threshold: DefaultThreshold, MarginPx: DefaultMarginPx}, src.opts)

	src.emit(Entry{Intersecting: true, Ratio: 0.2})
	require.Len(t, sender.events, 1)
	assert.Equal(t, "pricing_section_viewed", sender.events[0].name)
	assert.Equal(t, "21:47", sender.events[0].attrs["time"])
	assert.Equal(t, actor, sender.events[0].actor)
}

func TestObserverNilActorFallsBackToAnonymous(t *testing.T) {
	src := &fakeSource{}
	sender := &recordingSender{}
	Watch(context.Background(), src, "faq", sender,
		WithClock(mockClockAt(t, 0, 0)),
		WithActor(func() *models.Actor { return nil }),
	)
	src.emit(Entry{Intersecting: true})
	require.Len(t, sender.events, 1)
	assert.Equal(t, "anonymous", sender.events[0].actor.ID)
	assert.Equal(t, "00:00", sender.events[0].attrs["time"])
}

func TestObserverCloseBeforeFiring(t *testing.T) {
	src := &fakeSource{}
	sender := &recordingSender{}
	o := Watch(context.Background(), src, "hero", sender, WithClock(mockClockAt(t, 12, 0)))

	o.Close()
	o.Close()
	assert.Equal(t, 1, src.Released())

	src.emit(Entry{Intersecting: true})
	assert.Empty(t, sender.events)
	assert.False(t, o.Fired())
}

func TestObserverSynchronousInitialCallback(t *testing.T) {
	src := &fakeSource{initial: &Entry{Intersecting: true, Ratio: 1}}
	sender := &recordingSender{}
	o := Watch(context.Background(), src, "hero", sender, WithClock(mockClockAt(t, 8, 30)))

	require.Len(t, sender.events, 1)
	assert.True(t, o.Fired())
	assert.Equal(t, 1, src.Released())
	o.Close()
	assert.Equal(t, 1, src.Released())
}

func TestRemountFiresAgain(t *testing.T) {
	src := &fakeSource{}
	sender := &recordingSender{}
	clock := mockClockAt(t, 10, 10)

	first := Watch(context.Background(), src, "reviews", sender, WithClock(clock))
	src.emit(Entry{Intersecting: true})
	first.Close()

	second := Watch(context.Background(), src, "reviews", sender, WithClock(clock))
	src.emit(Entry{Intersecting: true})
	second.Close()

	assert.Len(t, sender.events, 2)
}
