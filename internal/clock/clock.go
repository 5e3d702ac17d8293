// Package clock abstracts time for deterministic tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable delayed call armed via Clock.AfterFunc.
type Timer interface {
	// Stop cancels the timer. It reports whether the call was prevented
	// from firing.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	// AfterFunc arms f to run on its own goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MockClock is a manually advanced clock. Timers armed via AfterFunc fire
// synchronously from Advance once their deadline is reached.
type MockClock struct {
	mu      sync.Mutex
	NowTime time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NowTime
}

func (m *MockClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- m.Now().Add(d)
	return ch
}

func (m *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{
		clock:    m,
		deadline: m.NowTime.Add(d),
		fn:       f,
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward and fires any due timers in arming order.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.NowTime = m.NowTime.Add(d)
	var due []*mockTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.deadline.After(m.NowTime) {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}
