package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"washday/api/analytics"
	"washday/api/catalog"
	"washday/api/models"
	"washday/api/page"
	"washday/api/preference"
	"washday/api/scroll"
	"washday/api/tagmanager"
	"washday/api/visibility"
)

type config struct {
	PrefsPath        string
	Viewport         float64
	StepDelay        time.Duration
	TagDelay         time.Duration
	ToggleTheme      bool
	PlaceOrder       bool
	ActorID          string
	ActorName        string
	ConversionTarget string
	CatalogRetries   uint64
	Clock            quartz.Clock
}

func defaultConfig() config {
	return config{
		PrefsPath:      "washday-prefs.db",
		Viewport:       900,
		StepDelay:      150 * time.Millisecond,
		TagDelay:       400 * time.Millisecond,
		CatalogRetries: 4,
		Clock:          quartz.NewReal(),
	}
}

var landingSections = []string{"hero", "services", "how-it-works", "pricing", "testimonials", "faq", "footer"}

var landingHeights = []float64{900, 1400, 800, 1100, 700, 900, 300}

func (c config) actor() *models.Actor {
	if c.ActorID == "" {
		return nil
	}
	return &models.Actor{ID: c.ActorID, Name: c.ActorName}
}

func run(ctx context.Context, cfg config) error {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Viewport <= 0 {
		return fmt.Errorf("viewport must be positive, got %v", cfg.Viewport)
	}
	prefs, err := preference.OpenSQLite(ctx, cfg.PrefsPath)
	if err != nil {
		return err
	}
	defer prefs.Close()

	theme, err := preference.LoadToggle(ctx, prefs, preference.ThemeKey, preference.ThemeLight, preference.ThemeDark)
	if err != nil {
		return fmt.Errorf("loading theme: %w", err)
	}
	if cfg.ToggleTheme {
		if _, err := theme.Toggle(ctx); err != nil {
			log.Printf("Keeping %s theme: %v", theme.Value(), err)
		}
	}
	log.Printf("Browsing with the %s theme", theme.Value())

	client, err := catalog.NewClientFromEnv()
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()
	services := catalog.NewCache(client)

	global := newConsoleGlobal(cfg.Clock, cfg.TagDelay)
	defer global.Stop()

	pg := page.New("/", cfg.Viewport, page.Stack(landingSections, landingHeights)...)
	tracking := analytics.NewLazy(analytics.EnvLoader(global, nil, pg.Path, tagmanager.WithClock(cfg.Clock)))
	defer tracking.Close()

	actor := cfg.actor()
	actorFn := func() *models.Actor { return actor }

	v := &visit{cfg: cfg, page: pg, tracking: tracking, actor: actorFn}

	tracker := scroll.NewTracker(ctx, pg.Path(), pg, pg, tracking, scroll.WithActor(scroll.ActorFunc(actorFn)))
	defer tracker.Close()

	tracking.PageView(ctx, "/", "Washday | Laundry pickup & delivery", actor)
	if err := v.browse(ctx); err != nil {
		return err
	}

	list, err := loadCatalog(ctx, cfg.Clock, services, cfg.CatalogRetries)
	if err != nil {
		log.Printf("Catalog unavailable, ending visit on the landing page: %v", err)
		return nil
	}
	if len(list) == 0 {
		log.Println("Catalog is empty, ending visit on the landing page")
		return nil
	}
	log.Printf("Catalog has %d services", len(list))

	svc := list[0]
	path := "/services/" + svc.Slug
	pg.Navigate(path, page.Stack([]string{"details", "pricing", "reviews"}, []float64{1200, 600, 900})...)
	tracker.Navigate(path)
	tracking.PageView(ctx, path, svc.Name, actor)
	tracking.Service(ctx, svc.Slug, actor)
	if err := v.browse(ctx); err != nil {
		return err
	}

	// A second render of the catalog must not refetch.
	if _, err := services.Get(ctx); err != nil {
		return err
	}

	if cfg.PlaceOrder {
		tracking.Order(ctx, analytics.Order{
			ID:       uuid.NewString(),
			Service:  svc.Slug,
			Value:    float64(svc.PriceCents) / 100,
			Currency: "USD",
			SendTo:   cfg.ConversionTarget,
		}, actor)
	}
	return nil
}

type visit struct {
	cfg      config
	page     *page.Page
	tracking *analytics.Lazy
	actor    func() *models.Actor
}

// browse mounts a visibility observer per section and scrolls the page to
// the bottom in half-viewport steps.
func (v *visit) browse(ctx context.Context) error {
	var observers []*visibility.Observer
	for _, section := range v.page.Sections() {
		observers = append(observers, visibility.Watch(ctx, v.page.Source(section), section, v.tracking,
			visibility.WithActor(visibility.ActorFunc(v.actor)),
			visibility.WithThreshold(0.2),
			visibility.WithMargin(-80),
			visibility.WithClock(v.cfg.Clock),
		))
	}
	defer func() {
		for _, o := range observers {
			o.Close()
		}
	}()

	v.page.Flush()
	maxTop := v.page.ScrollHeight() - v.page.ViewportHeight()
	for y := 0.0; ; y += v.cfg.Viewport / 2 {
		if y > maxTop {
			y = maxTop
		}
		v.page.ScrollTo(y)
		v.page.Flush()
		if y >= maxTop {
			break
		}
		if err := sleep(ctx, v.cfg.Clock, v.cfg.StepDelay); err != nil {
			return err
		}
	}

	seen := 0
	for _, o := range observers {
		if o.Fired() {
			seen++
		}
	}
	log.Printf("Scrolled %s: %d of %d sections seen", v.page.Path(), seen, len(observers))
	return nil
}

func loadCatalog(ctx context.Context, clock quartz.Clock, services interface {
	Get(context.Context) ([]models.Service, error)
}, retries uint64) ([]models.Service, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)

	var list []models.Service
	err := backoff.RetryNotifyWithTimer(func() error {
		var err error
		list, err = services.Get(ctx)
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		log.Printf("Catalog fetch failed, retrying in %s: %v", next, err)
	}, &retryTimer{clock: clock})
	return list, err
}

// retryTimer runs backoff waits on the visit's clock.
type retryTimer struct {
	clock quartz.Clock
	timer *quartz.Timer
}

func (r *retryTimer) Start(d time.Duration) {
	if r.timer == nil {
		r.timer = r.clock.NewTimer(d, "visitor", "catalog-retry")
		return
	}
	r.timer.Reset(d, "visitor", "catalog-retry")
}

func (r *retryTimer) Stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *retryTimer) C() <-chan time.Time {
	return r.timer.C
}

func sleep(ctx context.Context, clock quartz.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d, "visitor", "step")
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
