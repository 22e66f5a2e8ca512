// Package clock provides the millisecond tick counter that every timer in
// the scheduler is measured against.
//
// A Tick wraps at 2^32 (about 49.7 days). Never compare deadlines as
// ref+period < now; that form breaks at the wrap. Use Elapsed or Due.
package clock

import "time"

// Tick is a monotonic millisecond counter value.
type Tick uint32

// Source yields the current tick.
type Source interface {
	Now() Tick
}

// Elapsed returns the ticks between ref and now, correct across one wrap.
func Elapsed(now, ref Tick) Tick {
	return now - ref
}

// Due reports whether at least period ticks have passed since ref.
func Due(now, ref, period Tick) bool {
	return Elapsed(now, ref) >= period
}

// FromDuration converts d to ticks, saturating at the largest Tick.
func FromDuration(d time.Duration) Tick {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > int64(^Tick(0)) {
		return ^Tick(0)
	}
	return Tick(ms)
}

// Monotonic reads ticks from the runtime's monotonic clock.
type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Now() Tick {
	// truncation to 32 bits is the wrap
	return Tick(uint64(time.Since(m.start).Milliseconds()))
}

// Manual is a settable Source for tests and simulations.
type Manual struct {
	T Tick
}

func (m *Manual) Now() Tick { return m.T }

// Advance moves the clock forward by d ticks and returns the new value.
func (m *Manual) Advance(d Tick) Tick {
	m.T += d
	return m.T
}
