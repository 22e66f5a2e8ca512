package scheduler

import (
	"log/slog"

	"wavecam/internal/clock"
)

type indicator struct {
	blinking   bool
	level      bool
	lastToggle clock.Tick
}

func (s *Scheduler) indicatorStep(now clock.Tick) {
	ind := &s.indicator

	if !s.state.IndicatorEnabled() {
		ind.blinking = false
		ind.level = false
		s.setIndicator(false)
		return
	}

	if !ind.blinking {
		ind.blinking = true
		ind.lastToggle = now
		return
	}

	if clock.Due(now, ind.lastToggle, s.cfg.TogglePeriod) {
		ind.level = !ind.level
		ind.lastToggle = now
		s.setIndicator(ind.level)
		s.metrics.IndicatorToggled()
	}
}

func (s *Scheduler) setIndicator(on bool) {
	if err := s.deps.Indicator.SetIndicator(on); err != nil {
		slog.Warn("[SCHED] Indicator write failed", "err", err)
	}
}
