// Package page is an in-memory rendition of a rendered site page. It
// implements the document, scheduler and intersection primitives the
// scroll and visibility packages consume, so the instrumentation can run
// headless in the visitor simulator and in tests.
package page

import (
	"sort"
	"sync"

	"washday/api/scroll"
	"washday/api/visibility"
)

// Section is a named block of the page, positioned from the document top.
type Section struct {
	Name   string
	Top    float64
	Height float64
}

func (s Section) bottom() float64 { return s.Top + s.Height }

type observation struct {
	section      string
	opts         visibility.Options
	callback     func(visibility.Entry)
	intersecting bool
}

// Page is safe for concurrent use. Queued frames and idle callbacks only run
// when the owner calls RunFrames, RunIdle or Flush.
type Page struct {
	mu        sync.Mutex
	path      string
	viewport  float64
	height    float64
	scrollTop float64
	sections  map[string]Section

	nextID       int
	scrollFns    map[int]func(float64)
	resizeFns    map[int]func()
	observations map[int]*observation

	frames []func()
	idle   []func()
}

var (
	_ scroll.Document  = (*Page)(nil)
	_ scroll.Scheduler = (*Page)(nil)
)

// New lays out sections top to bottom in the order given, starting at 0.
func New(path string, viewport float64, sections ...Section) *Page {
	p := &Page{
		viewport:     viewport,
		scrollFns:    make(map[int]func(float64)),
		resizeFns:    make(map[int]func()),
		observations: make(map[int]*observation),
	}
	p.layout(path, sections)
	return p
}

// Stack builds sections of the given heights placed one after another.
func Stack(names []string, heights []float64) []Section {
	out := make([]Section, 0, len(names))
	var top float64
	for i, name := range names {
		h := heights[i]
		out = append(out, Section{Name: name, Top: top, Height: h})
		top += h
	}
	return out
}

func (p *Page) layout(path string, sections []Section) {
	p.path = path
	p.scrollTop = 0
	p.height = 0
	p.sections = make(map[string]Section, len(sections))
	for _, s := range sections {
		p.sections[s.Name] = s
		if s.bottom() > p.height {
			p.height = s.bottom()
		}
	}
}

// Path is the route currently rendered.
func (p *Page) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Sections returns the section names ordered by position.
func (p *Page) Sections() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Section, 0, len(p.sections))
	for _, s := range p.sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Top < out[j].Top })
	names := make([]string, len(out))
	for i, s := range out {
		names[i] = s.Name
	}
	return names
}

func (p *Page) ScrollHeight() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

func (p *Page) ViewportHeight() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

func (p *Page) ScrollTop() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollTop
}

func (p *Page) OnScroll(fn func(scrollTop float64)) (remove func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.scrollFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.scrollFns, id)
		p.mu.Unlock()
	}
}

func (p *Page) OnResize(fn func()) (disconnect func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.resizeFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.resizeFns, id)
		p.mu.Unlock()
	}
}

func (p *Page) RequestFrame(fn func()) {
	p.mu.Lock()
	p.frames = append(p.frames, fn)
	p.mu.Unlock()
}

func (p *Page) RequestIdle(fn func()) {
	p.mu.Lock()
	p.idle = append(p.idle, fn)
	p.mu.Unlock()
}

// Listeners reports how many scroll and resize listeners are attached.
func (p *Page) Listeners() (scrollListeners, resizeObservers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scrollFns), len(p.resizeFns)
}

// Observations reports how many intersection observations are live.
func (p *Page) Observations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observations)
}

// RunFrames runs the frame callbacks queued so far. Callbacks queued while
// running wait for the next call, as they would for the next paint.
func (p *Page) RunFrames() int {
	p.mu.Lock()
	frames := p.frames
	p.frames = nil
	p.mu.Unlock()
	for _, fn := range frames {
		fn()
	}
	return len(frames)
}

// RunIdle runs the idle callbacks queued so far.
func (p *Page) RunIdle() int {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, fn := range idle {
		fn()
	}
	return len(idle)
}

// Flush runs idle work then frames until neither queue has anything left.
func (p *Page) Flush() {
	for p.RunIdle()+p.RunFrames() > 0 {
	}
}

// ScrollTo moves the viewport, clamped to the scrollable range, and notifies
// scroll listeners and intersection observations.
func (p *Page) ScrollTo(y float64) {
	p.mu.Lock()
	maxTop := p.height - p.viewport
	if maxTop < 0 {
		maxTop = 0
	}
	if y < 0 {
		y = 0
	}
	if y > maxTop {
		y = maxTop
	}
	p.scrollTop = y
	scrollFns := make([]func(float64), 0, len(p.scrollFns))
	for _, fn := range p.scrollFns {
		scrollFns = append(scrollFns, fn)
	}
	deliveries := p.pendingEntriesLocked()
	p.mu.Unlock()

	for _, fn := range scrollFns {
		fn(y)
	}
	deliver(deliveries)
}

// ScrollToSection brings the top of the named section to the top of the
// viewport. It reports false for an unknown section.
func (p *Page) ScrollToSection(name string) bool {
	p.mu.Lock()
	s, ok := p.sections[name]
	p.mu.Unlock()
	if !ok {
		return false
	}
	p.ScrollTo(s.Top)
	return true
}

// Resize changes the section layout in place, as when late content loads,
// and notifies resize observers.
func (p *Page) Resize(sections ...Section) {
	p.mu.Lock()
	scrollTop := p.scrollTop
	p.layout(p.path, sections)
	p.scrollTop = scrollTop
	resizeFns := make([]func(), 0, len(p.resizeFns))
	for _, fn := range p.resizeFns {
		resizeFns = append(resizeFns, fn)
	}
	deliveries := p.pendingEntriesLocked()
	p.mu.Unlock()

	for _, fn := range resizeFns {
		fn()
	}
	deliver(deliveries)
}

// Navigate renders a new route at the top of the viewport. Listeners survive
// navigation; observations of sections the new route lacks stop reporting.
func (p *Page) Navigate(path string, sections ...Section) {
	p.mu.Lock()
	p.layout(path, sections)
	resizeFns := make([]func(), 0, len(p.resizeFns))
	for _, fn := range p.resizeFns {
		resizeFns = append(resizeFns, fn)
	}
	deliveries := p.pendingEntriesLocked()
	p.mu.Unlock()

	for _, fn := range resizeFns {
		fn()
	}
	deliver(deliveries)
}

// Source returns the intersection primitive for one section.
func (p *Page) Source(section string) visibility.Source {
	return sectionSource{page: p, section: section}
}

type sectionSource struct {
	page    *Page
	section string
}

// Observe reports the initial state right away, then every change between
// intersecting and not intersecting.
func (s sectionSource) Observe(opts visibility.Options, callback func(visibility.Entry)) (release func()) {
	p := s.page
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	obs := &observation{section: s.section, opts: opts, callback: callback}
	p.observations[id] = obs
	entry := p.entryLocked(obs)
	obs.intersecting = entry.Intersecting
	p.mu.Unlock()

	callback(entry)

	return func() {
		p.mu.Lock()
		delete(p.observations, id)
		p.mu.Unlock()
	}
}

type delivery struct {
	callback func(visibility.Entry)
	entry    visibility.Entry
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.callback(d.entry)
	}
}

func (p *Page) pendingEntriesLocked() []delivery {
	var out []delivery
	for _, obs := range p.observations {
		entry := p.entryLocked(obs)
		if entry.Intersecting == obs.intersecting {
			continue
		}
		obs.intersecting = entry.Intersecting
		out = append(out, delivery{callback: obs.callback, entry: entry})
	}
	return out
}

// entryLocked computes the intersection of a section with the viewport after
// the root margin is applied. A negative margin shrinks the viewport on both
// edges.
func (p *Page) entryLocked(obs *observation) visibility.Entry {
	s, ok := p.sections[obs.section]
	if !ok || s.Height <= 0 {
		return visibility.Entry{}
	}
	margin := float64(obs.opts.MarginPx)
	rootTop := p.scrollTop - margin
	rootBottom := p.scrollTop + p.viewport + margin
	if rootBottom <= rootTop {
		return visibility.Entry{}
	}

	overlap := min(s.bottom(), rootBottom) - max(s.Top, rootTop)
	if overlap <= 0 {
		return visibility.Entry{}
	}
	ratio := overlap / s.Height
	return visibility.Entry{
		Intersecting: ratio >= obs.opts.Threshold,
		Ratio:        ratio,
	}
}
