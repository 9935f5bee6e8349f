// Package pollertest provides a simulated clock for driving pollers in tests.
package pollertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/makeasinger/clipwatch/internal/poller"
)

// ManualTimer is a poller.Timer whose time only moves on Advance.
// Due callbacks run synchronously on the goroutine calling Advance.
type ManualTimer struct {
	mu      sync.Mutex
	now     time.Duration
	entries []*entry
}

type entry struct {
	timer    *ManualTimer
	interval time.Duration
	next     time.Duration
	fn       func()
	stopped  bool
}

func (e *entry) Stop() {
	e.timer.mu.Lock()
	defer e.timer.mu.Unlock()
	e.stopped = true
}

// NewManualTimer returns a timer at virtual time zero
func NewManualTimer() *ManualTimer {
	return &ManualTimer{}
}

// Schedule registers fn to run every interval of virtual time
func (m *ManualTimer) Schedule(interval time.Duration, fn func()) (poller.TimerHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", poller.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{
		timer:    m,
		interval: interval,
		next:     m.now + interval,
		fn:       fn,
	}
	m.entries = append(m.entries, e)
	return e, nil
}

// Advance moves virtual time forward by d, firing every tick that falls due
// in time order. It returns the number of ticks fired.
func (m *ManualTimer) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	fired := 0
	for {
		e := m.nextDue(target)
		if e == nil {
			break
		}
		m.now = e.next
		e.next += e.interval
		fn := e.fn
		m.mu.Unlock()
		fn()
		fired++
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
	return fired
}

// Now returns elapsed virtual time
func (m *ManualTimer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Live returns how many schedules have not been stopped
func (m *ManualTimer) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}

func (m *ManualTimer) nextDue(target time.Duration) *entry {
	var due *entry
	for _, e := range m.entries {
		if e.stopped || e.next > target {
			continue
		}
		if due == nil || e.next < due.next {
			due = e
		}
	}
	return due
}
