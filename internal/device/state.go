// Package device holds the state shared between the scheduler loop and the
// control planes. Every field crossing that boundary is a single atomic
// word; there is no mutex.
package device

import (
	"sync/atomic"

	"wavecam/internal/clock"
)

// Connectivity is the network link state. Only the scheduler writes it.
type Connectivity int32

const (
	Disconnected Connectivity = iota
	Connecting
	Connected
)

func (c Connectivity) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is the one explicitly owned context object handed to both the
// scheduler and every request handler.
type State struct {
	indicatorEnabled   atomic.Bool
	indicatorChangedAt atomic.Uint32

	gestureRequested   atomic.Bool
	gestureRequestedAt atomic.Uint32

	connectivity atomic.Int32
}

func NewState() *State {
	return &State{}
}

// ToggleIndicator flips the indicator flag and records when. It returns the
// new value.
func (s *State) ToggleIndicator(now clock.Tick) bool {
	for {
		old := s.indicatorEnabled.Load()
		if s.indicatorEnabled.CompareAndSwap(old, !old) {
			s.indicatorChangedAt.Store(uint32(now))
			return !old
		}
	}
}

func (s *State) IndicatorEnabled() bool {
	return s.indicatorEnabled.Load()
}

func (s *State) IndicatorChangedAt() clock.Tick {
	return clock.Tick(s.indicatorChangedAt.Load())
}

// RequestGesture asks the scheduler to wave. A request made while one is
// already pending or running is ignored; the return value reports whether
// this call was accepted.
func (s *State) RequestGesture(now clock.Tick) bool {
	if !s.gestureRequested.CompareAndSwap(false, true) {
		return false
	}
	s.gestureRequestedAt.Store(uint32(now))
	return true
}

func (s *State) GestureRequested() bool {
	return s.gestureRequested.Load()
}

func (s *State) GestureRequestedAt() clock.Tick {
	return clock.Tick(s.gestureRequestedAt.Load())
}

// ClearGesture is called by the scheduler when a wave sequence finishes.
func (s *State) ClearGesture() {
	s.gestureRequested.Store(false)
}

func (s *State) SetConnectivity(c Connectivity) {
	s.connectivity.Store(int32(c))
}

func (s *State) Connectivity() Connectivity {
	return Connectivity(s.connectivity.Load())
}

// Snapshot is a point-in-time copy for status reporting. Fields are read
// one by one and may straddle a concurrent write.
type Snapshot struct {
	Connectivity     Connectivity
	IndicatorEnabled bool
	GestureActive    bool
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Connectivity:     s.Connectivity(),
		IndicatorEnabled: s.IndicatorEnabled(),
		GestureActive:    s.GestureRequested(),
	}
}
