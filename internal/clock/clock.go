package clock

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Clock returns monotonic time as an offset from an arbitrary origin.
// Wall clock jumps (NTP, GPS time sync) must not affect it.
type Clock interface {
	Now() time.Duration
}

// Monotonic reads CLOCK_MONOTONIC. If the read fails it returns the last
// good reading, so time stalls instead of jumping.
type Monotonic struct {
	mu   sync.Mutex
	last time.Duration
	read func(*unix.Timespec) error
}

func NewMonotonic() *Monotonic {
	return &Monotonic{read: func(ts *unix.Timespec) error {
		return unix.ClockGettime(unix.CLOCK_MONOTONIC, ts)
	}}
}

func (m *Monotonic) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ts unix.Timespec
	if err := m.read(&ts); err != nil {
		return m.last
	}
	if now := time.Duration(ts.Nano()); now > m.last {
		m.last = now
	}
	return m.last
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManual(start time.Duration) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}

func (m *Manual) Set(now time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
