package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/atomic"
)

// consoleGlobal stands in for the tag-manager script. It reports loaded
// after a delay and logs every push.
type consoleGlobal struct {
	loaded atomic.Bool

	mu     sync.Mutex
	pushes [][]any
	timer  *quartz.Timer
}

func newConsoleGlobal(clock quartz.Clock, loadDelay time.Duration) *consoleGlobal {
	g := &consoleGlobal{}
	if loadDelay <= 0 {
		g.loaded.Store(true)
		return g
	}
	g.timer = clock.AfterFunc(loadDelay, func() { g.loaded.Store(true) }, "visitor", "gtag")
	return g
}

func (g *consoleGlobal) Loaded() bool {
	return g.loaded.Load()
}

func (g *consoleGlobal) Push(args ...any) {
	g.mu.Lock()
	g.pushes = append(g.pushes, args)
	g.mu.Unlock()

	encoded, err := json.Marshal(args)
	if err != nil {
		log.Printf("gtag: %v", args)
		return
	}
	log.Printf("gtag: %s", encoded)
}

// Pushes returns every call forwarded so far.
func (g *consoleGlobal) Pushes() [][]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]any(nil), g.pushes...)
}

func (g *consoleGlobal) Stop() {
	if g.timer != nil {
		g.timer.Stop()
	}
}
