package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washday/api/models"
	"washday/api/preference"
)

type fakeAPI struct {
	mu            sync.Mutex
	events        []models.AnalyticsEvent
	catalogHits   atomic.Int32
	catalogFailed atomic.Int32
	failFirst     int32
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, _ *http.Request) {
		if f.catalogFailed.Load() < f.failFirst {
			f.catalogFailed.Add(1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		f.catalogHits.Add(1)
		_ = json.NewEncoder(w).Encode([]models.Service{
			{ID: 1, Slug: "wash-and-fold", Name: "Wash & Fold", PriceCents: 199},
		})
	})
	mux.HandleFunc("POST /api/track", func(w http.ResponseWriter, r *http.Request) {
		var batch []models.AnalyticsEvent
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.events = append(f.events, batch...)
		f.mu.Unlock()
	})
	return mux
}

func (f *fakeAPI) eventTypes() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, e := range f.events {
		out[e.EventType]++
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runOnMock runs the visit while advancing the mock clock to each pending
// timer, so retries and step pauses elapse without real waiting.
func runOnMock(t *testing.T, cfg config) error {
	t.Helper()
	ctx := testContext(t)
	mClock := cfg.Clock.(*quartz.Mock)

	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg) }()
	for {
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Millisecond):
			if d, ok := mClock.Peek(); ok {
				mClock.Advance(d).MustWait(ctx)
			}
		}
	}
}

func testConfig(t *testing.T, api *fakeAPI) config {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	t.Setenv("ANALYTICS_COLLECTOR_URL", srv.URL)
	t.Setenv("CATALOG_URL", "")
	t.Setenv("AUTH_DEFAULT", "")

	cfg := defaultConfig()
	cfg.PrefsPath = filepath.Join(t.TempDir(), "prefs.db")
	cfg.Clock = quartz.NewMock(t)
	return cfg
}

func TestRunFullVisit(t *testing.T) {
	api := &fakeAPI{}
	cfg := testConfig(t, api)
	cfg.PlaceOrder = true
	cfg.ActorID = "cust-1"
	cfg.ToggleTheme = true

	require.NoError(t, runOnMock(t, cfg))

	types := api.eventTypes()
	assert.Equal(t, 2, types["page_view"])
	assert.Equal(t, 1, types["service_viewed"])
	assert.Equal(t, 1, types["order_placed"])
	// Both pages are scrolled to the bottom.
	for _, name := range []string{"scroll_25_percent", "scroll_50_percent", "scroll_75_percent", "scroll_100_percent"} {
		assert.Equal(t, 2, types[name], name)
	}
	assert.Equal(t, len(landingSections)+3, types["section_viewed"])
	assert.Equal(t, int32(1), api.catalogHits.Load())

	prefs, err := preference.OpenSQLite(context.Background(), cfg.PrefsPath)
	require.NoError(t, err)
	defer prefs.Close()
	theme, ok, err := prefs.Get(context.Background(), preference.ThemeKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, preference.ThemeDark, theme)
}

func TestRunRetriesCatalog(t *testing.T) {
	api := &fakeAPI{failFirst: 2}
	cfg := testConfig(t, api)

	require.NoError(t, runOnMock(t, cfg))
	assert.Equal(t, int32(2), api.catalogFailed.Load())
	assert.Equal(t, int32(1), api.catalogHits.Load())
	assert.Equal(t, 1, api.eventTypes()["service_viewed"])
}

func TestRunWithoutCatalogStaysOnLanding(t *testing.T) {
	api := &fakeAPI{failFirst: 100}
	cfg := testConfig(t, api)
	cfg.CatalogRetries = 1

	require.NoError(t, runOnMock(t, cfg))
	types := api.eventTypes()
	assert.Equal(t, 1, types["page_view"])
	assert.Zero(t, types["service_viewed"])
}

func TestRunRejectsBadViewport(t *testing.T) {
	cfg := defaultConfig()
	cfg.Viewport = 0
	assert.Error(t, run(context.Background(), cfg))
}

type flakyList struct {
	calls int
	err   error
}

func (f *flakyList) Get(context.Context) ([]models.Service, error) {
	f.calls++
	return nil, f.err
}

func TestLoadCatalogStopsOnCancel(t *testing.T) {
	l := &flakyList{err: context.Canceled}
	_, err := loadCatalog(context.Background(), quartz.NewMock(t), l, 5)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, l.calls)
}

func TestLoadCatalogRetriesOnClock(t *testing.T) {
	ctx := testContext(t)
	mClock := quartz.NewMock(t)
	l := &flakyList{err: errors.New("bad gateway")}

	errc := make(chan error, 1)
	go func() {
		_, err := loadCatalog(ctx, mClock, l, 2)
		errc <- err
	}()
	for i := 0; i < 2; i++ {
		for {
			if _, ok := mClock.Peek(); ok {
				break
			}
			time.Sleep(time.Millisecond)
		}
		d, _ := mClock.Peek()
		mClock.Advance(d).MustWait(ctx)
	}

	select {
	case err := <-errc:
		require.ErrorContains(t, err, "bad gateway")
	case <-ctx.Done():
		t.Fatal("loadCatalog did not give up")
	}
	assert.Equal(t, 3, l.calls)
}

func TestConsoleGlobal(t *testing.T) {
	ctx := testContext(t)

	g := newConsoleGlobal(quartz.NewMock(t), 0)
	defer g.Stop()
	assert.True(t, g.Loaded())
	g.Push("event", "x", map[string]any{"a": 1})
	require.Len(t, g.Pushes(), 1)

	mClock := quartz.NewMock(t)
	later := newConsoleGlobal(mClock, 400*time.Millisecond)
	defer later.Stop()
	assert.False(t, later.Loaded())
	mClock.Advance(399 * time.Millisecond).MustWait(ctx)
	assert.False(t, later.Loaded())
	mClock.Advance(time.Millisecond).MustWait(ctx)
	assert.True(t, later.Loaded())
}

func TestSleepFollowsClock(t *testing.T) {
	ctx := testContext(t)
	mClock := quartz.NewMock(t)
	trap := mClock.Trap().NewTimer("visitor", "step")
	defer trap.Close()

	errc := make(chan error, 1)
	go func() { errc <- sleep(ctx, mClock, time.Second) }()
	trap.MustWait(ctx).MustRelease(ctx)
	mClock.Advance(time.Second).MustWait(ctx)
	require.NoError(t, <-errc)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, sleep(cancelled, mClock, time.Second), context.Canceled)
	assert.ErrorIs(t, sleep(cancelled, mClock, 0), context.Canceled)
}
