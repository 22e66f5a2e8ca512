// Package scheduler runs the device's cooperative main loop. Every timer is
// polled against the tick passed to Tick; nothing in here blocks except the
// single association attempt made by the connectivity step.
package scheduler

import (
	"context"
	"image"
	"log/slog"
	"time"

	"wavecam/internal/clock"
	"wavecam/internal/config"
	"wavecam/internal/device"
	"wavecam/internal/display"
	"wavecam/internal/hardware"
	"wavecam/internal/metrics"
)

// Starter brings up the network-facing pipeline. Start must be safe to call
// again after a link loss.
type Starter interface {
	Start() error
}

type Uploader interface {
	Upload(ctx context.Context) bool
}

type Config struct {
	LoopInterval time.Duration

	CheckPeriod  clock.Tick
	TogglePeriod clock.Tick

	RightAngle  int
	LeftAngle   int
	PhasePeriod clock.Tick
	Repetitions int

	UploadPeriod clock.Tick
}

// ConfigFrom converts the loaded configuration into tick periods.
func ConfigFrom(c *config.Config) Config {
	return Config{
		LoopInterval: c.Scheduler.LoopInterval,
		CheckPeriod:  clock.FromDuration(c.Network.CheckPeriod),
		TogglePeriod: clock.FromDuration(c.Indicator.TogglePeriod),
		RightAngle:   c.Gesture.RightAngle,
		LeftAngle:    c.Gesture.LeftAngle,
		PhasePeriod:  clock.FromDuration(c.Gesture.PhasePeriod),
		Repetitions:  c.Gesture.Repetitions,
		UploadPeriod: clock.FromDuration(c.Upload.Period),
	}
}

// Deps are the collaborators the loop drives. Display and Uploader may be
// nil.
type Deps struct {
	Link      hardware.Link
	Indicator hardware.Indicator
	Servo     hardware.Servo
	Display   hardware.Display
	Pipeline  Starter
	Uploader  Uploader
}

type Scheduler struct {
	cfg     Config
	state   *device.State
	deps    Deps
	metrics *metrics.Metrics

	booted bool

	conn      connectivity
	indicator indicator
	gesture   gesture

	lastUpload clock.Tick

	face      *image.Gray
	faceShown bool
}

func New(cfg Config, state *device.State, deps Deps, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		state:   state,
		deps:    deps,
		metrics: m,
		face:    display.Face(),
	}
}

// Tick runs one pass of the loop at time now. Steps run in a fixed order:
// connectivity, indicator, gesture, upload, display.
func (s *Scheduler) Tick(ctx context.Context, now clock.Tick) {
	first := !s.booted
	if first {
		s.booted = true
		s.lastUpload = now
	}

	s.connectivityStep(now, first)
	s.indicatorStep(now)
	s.gestureStep(now)
	s.uploadStep(ctx, now)
	s.displayStep()

	s.metrics.Tick()
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, src clock.Source) error {
	interval := s.cfg.LoopInterval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("[SCHED] Loop started", "interval", interval)
	for {
		s.Tick(ctx, src.Now())

		select {
		case <-ctx.Done():
			slog.Info("[SCHED] Loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) uploadStep(ctx context.Context, now clock.Tick) {
	if s.deps.Uploader == nil {
		return
	}
	if !clock.Due(now, s.lastUpload, s.cfg.UploadPeriod) {
		return
	}
	s.deps.Uploader.Upload(ctx)
	s.lastUpload = now
}

func (s *Scheduler) displayStep() {
	if s.faceShown || s.deps.Display == nil {
		return
	}
	s.faceShown = true
	if err := s.deps.Display.Show(s.face); err != nil {
		slog.Warn("[SCHED] Display update failed", "err", err)
	}
}
