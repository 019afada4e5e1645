// Package debounce provides a keyed cancel-and-restart timer map.
//
// Each key has at most one live timer. Re-triggering a key cancels the
// previous timer and arms a fresh one, so a burst of triggers within the
// delay window collapses into a single firing once the key goes quiet.
package debounce

import (
	"sync"
	"time"
)

// Map debounces actions per key. Safe for concurrent use.
// The zero value is not usable; create one with New.
type Map[K comparable] struct {
	mu     sync.Mutex
	timers map[K]*time.Timer
}

// New creates an empty debounce map.
func New[K comparable]() *Map[K] {
	return &Map[K]{timers: make(map[K]*time.Timer)}
}

// Trigger arms (or re-arms) the timer for key. Any previously armed timer
// for the same key is cancelled best-effort; if it has already fired there
// is nothing to cancel and the new timer proceeds independently.
//
// When the delay elapses without another Trigger or a Cancel, the timer
// first removes its own handle from the map (it is consumed) and then runs
// fn on the timer goroutine.
func (m *Map[K]) Trigger(key K, delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		m.mu.Lock()
		// Only consume our own handle: a newer Trigger may have replaced it
		// between the firing and this lock acquisition.
		if cur, ok := m.timers[key]; ok && cur == t {
			delete(m.timers, key)
		}
		m.mu.Unlock()

		fn()
	})
	m.timers[key] = t
}

// Cancel stops the live timer for key, if any. Returns true when a timer
// was found and asked to stop. Cancelling an already-fired timer is a no-op.
func (m *Map[K]) Cancel(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[key]
	if !ok {
		return false
	}
	delete(m.timers, key)
	t.Stop()
	return true
}

// Len reports the number of currently armed timers.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Stop cancels every armed timer. Timers that already fired are unaffected.
func (m *Map[K]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.timers {
		t.Stop()
		delete(m.timers, k)
	}
}
