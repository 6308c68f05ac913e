// Package clock abstracts delayed execution so that speech scheduling can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// Real schedules with time.AfterFunc.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Manual holds scheduled functions until Flush is called. Delays are recorded
// but not waited for.
type Manual struct {
	mu      sync.Mutex
	pending []scheduled
}

type scheduled struct {
	delay time.Duration
	f     func()
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, scheduled{delay: d, f: f})
}

// Pending returns the delays of functions not yet run, in scheduling order.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	delays := make([]time.Duration, len(m.pending))
	for i, s := range m.pending {
		delays[i] = s.delay
	}
	return delays
}

// Flush runs scheduled functions in order until none are left, including
// functions scheduled by the ones being run.
func (m *Manual) Flush() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return ran
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		next.f()
		ran++
	}
}
