package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTrigger_BurstCollapsesToOneFiring(t *testing.T) {
	m := New[int64]()
	var fired atomic.Int32

	for i := 0; i < 5; i++ {
		m.Trigger(42, 50*time.Millisecond, func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	if m.Len() != 0 {
		t.Errorf("map still holds %d timers after firing", m.Len())
	}
}

func TestTrigger_SpacedTriggersFireSeparately(t *testing.T) {
	m := New[int64]()
	var fired atomic.Int32

	m.Trigger(42, 30*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(100 * time.Millisecond)
	m.Trigger(42, 30*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 2 {
		t.Fatalf("fired %d times, want 2", got)
	}
}

func TestTrigger_IndependentKeys(t *testing.T) {
	m := New[int64]()
	var a, b atomic.Int32

	m.Trigger(1, 30*time.Millisecond, func() { a.Add(1) })
	m.Trigger(2, 30*time.Millisecond, func() { b.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("fired a=%d b=%d, want 1 each", a.Load(), b.Load())
	}
}

func TestCancel(t *testing.T) {
	m := New[string]()
	var fired atomic.Int32

	m.Trigger("x", 30*time.Millisecond, func() { fired.Add(1) })
	if !m.Cancel("x") {
		t.Fatal("Cancel returned false for an armed timer")
	}
	if m.Cancel("x") {
		t.Error("Cancel returned true for an absent timer")
	}

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired %d times", fired.Load())
	}
}

func TestStop_CancelsAll(t *testing.T) {
	m := New[int]()
	var fired atomic.Int32

	for i := 0; i < 3; i++ {
		m.Trigger(i, 30*time.Millisecond, func() { fired.Add(1) })
	}
	m.Stop()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("stopped timers fired %d times", fired.Load())
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Stop", m.Len())
	}
}

func TestFiredTimerDoesNotCancelSuccessor(t *testing.T) {
	m := New[int]()
	var fired atomic.Int32

	m.Trigger(7, 10*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(50 * time.Millisecond)
	m.Trigger(7, 40*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(120 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("fired %d times, want 2", got)
	}
}
