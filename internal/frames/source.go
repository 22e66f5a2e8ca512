// Package frames hands out camera frames under a strict acquire/release
// contract. A Buffer is owned by whoever acquired it until it is released,
// and is released exactly once.
package frames

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wavecam/internal/hardware"
)

var (
	// ErrUnavailable means no frame could be obtained: the pool stayed
	// exhausted for the whole acquire timeout or the driver failed.
	ErrUnavailable = errors.New("frames: no frame available")
	// ErrReleased is returned when a buffer is released a second time.
	ErrReleased = errors.New("frames: buffer already released")
)

// Buffer is one captured frame on loan from the Source.
type Buffer struct {
	Data      []byte
	Format    string
	Timestamp time.Time

	frame    *hardware.Frame
	released atomic.Bool
}

func (b *Buffer) Len() int { return len(b.Data) }

// Source wraps a camera driver and bounds the number of buffers out at once.
type Source struct {
	cam     hardware.Camera
	slots   chan struct{}
	timeout time.Duration

	outstanding atomic.Int64
}

// NewSource limits outstanding buffers to depth (clamped to 1..2, the
// driver's pool size) and waits at most timeout for a free one.
func NewSource(cam hardware.Camera, depth int, timeout time.Duration) *Source {
	depth = min(max(depth, 1), 2)
	return &Source{
		cam:     cam,
		slots:   make(chan struct{}, depth),
		timeout: timeout,
	}
}

// Acquire returns a frame or an error wrapping ErrUnavailable. The caller
// must Release the buffer on every path.
func (s *Source) Acquire(ctx context.Context) (*Buffer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: pool exhausted: %w", ErrUnavailable, ctx.Err())
	}

	f, err := s.cam.Grab()
	if err != nil {
		<-s.slots
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if f == nil {
		<-s.slots
		return nil, fmt.Errorf("%w: driver returned no frame", ErrUnavailable)
	}

	s.outstanding.Add(1)
	return &Buffer{
		Data:      f.Data,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		frame:     f,
	}, nil
}

// Release returns b to the driver. Releasing twice is an error and leaves
// the driver untouched.
func (s *Source) Release(b *Buffer) error {
	if b == nil {
		return errors.New("frames: release of nil buffer")
	}
	if !b.released.CompareAndSwap(false, true) {
		return ErrReleased
	}

	s.cam.Return(b.frame)
	b.Data = nil
	s.outstanding.Add(-1)
	<-s.slots
	return nil
}

// Outstanding reports how many buffers are currently on loan.
func (s *Source) Outstanding() int {
	return int(s.outstanding.Load())
}
