package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"wavecam/internal/clock"
)

func TestToggleIndicator_DoubleFlipRestores(t *testing.T) {
	s := NewState()

	assert.True(t, s.ToggleIndicator(10))
	assert.Equal(t, clock.Tick(10), s.IndicatorChangedAt())
	assert.False(t, s.ToggleIndicator(11))
	assert.False(t, s.IndicatorEnabled())
	assert.Equal(t, clock.Tick(11), s.IndicatorChangedAt())
}

func TestToggleIndicator_ConcurrentEvenCount(t *testing.T) {
	s := NewState()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ToggleIndicator(1)
		}()
	}
	wg.Wait()

	assert.False(t, s.IndicatorEnabled(), "an even number of flips must cancel out")
}

func TestRequestGesture_IdempotentWhilePending(t *testing.T) {
	s := NewState()

	assert.True(t, s.RequestGesture(100))
	assert.False(t, s.RequestGesture(200))
	assert.Equal(t, clock.Tick(100), s.GestureRequestedAt())

	s.ClearGesture()
	assert.False(t, s.GestureRequested())
	assert.True(t, s.RequestGesture(300))
	assert.Equal(t, clock.Tick(300), s.GestureRequestedAt())
}

func TestSnapshot(t *testing.T) {
	s := NewState()
	s.SetConnectivity(Connected)
	s.ToggleIndicator(1)

	snap := s.Snapshot()
	assert.Equal(t, Connected, snap.Connectivity)
	assert.Equal(t, "connected", snap.Connectivity.String())
	assert.True(t, snap.IndicatorEnabled)
	assert.False(t, snap.GestureActive)
}
