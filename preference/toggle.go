package preference

import (
	"context"
	"fmt"
	"log"
	"sync"
)

const (
	ThemeKey   = "theme"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Toggle switches between two presentation variants and keeps the stored
// value in step with the in-memory one.
type Toggle struct {
	store Store
	key   string
	a, b  string

	mu      sync.Mutex
	current string
}

// LoadToggle reads the stored variant for key. Missing or unknown values fall
// back to a.
func LoadToggle(ctx context.Context, store Store, key, a, b string) (*Toggle, error) {
	if a == b {
		return nil, fmt.Errorf("toggle %q needs two distinct variants", key)
	}
	t := &Toggle{store: store, key: key, a: a, b: b, current: a}

	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
	case value == a || value == b:
		t.current = value
	default:
		log.Printf("preference: ignoring unknown %s value %q", key, value)
	}
	return t, nil
}

func (t *Toggle) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Toggle flips the variant and persists it. If the write fails the in-memory
// value is left unchanged.
func (t *Toggle) Toggle(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.a
	if t.current == t.a {
		next = t.b
	}
	if err := t.store.Set(ctx, t.key, next); err != nil {
		return t.current, err
	}
	t.current = next
	return next, nil
}
