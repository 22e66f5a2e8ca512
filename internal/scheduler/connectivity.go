package scheduler

import (
	"log/slog"

	"wavecam/internal/clock"
	"wavecam/internal/device"
)

type connectivity struct {
	lastCheck clock.Tick
	started   bool
}

// connectivityStep makes at most one association attempt per check period.
// There is no backoff; a failed attempt simply waits for the next period.
func (s *Scheduler) connectivityStep(now clock.Tick, first bool) {
	c := &s.conn
	if !first && !clock.Due(now, c.lastCheck, s.cfg.CheckPeriod) {
		return
	}
	c.lastCheck = now

	if s.state.Connectivity() == device.Connected {
		if !c.started && s.deps.Pipeline != nil {
			if err := s.deps.Pipeline.Start(); err != nil {
				slog.Warn("[SCHED] Pipeline start failed", "err", err)
			} else {
				c.started = true
				slog.Info("[SCHED] Pipeline started")
			}
		}

		if !s.deps.Link.LinkUp() {
			slog.Warn("[SCHED] Link lost")
			s.state.SetConnectivity(device.Disconnected)
			s.metrics.SetConnected(false)
			return
		}
		slog.Debug("[SCHED] Link up", "ip", s.deps.Link.Address())
		return
	}

	c.started = false
	s.state.SetConnectivity(device.Connecting)

	err := s.deps.Link.ConnectToWifi()
	ok := err == nil && s.deps.Link.LinkUp()
	s.metrics.LinkAttempt(ok)

	if !ok {
		slog.Warn("[SCHED] Association failed", "err", err)
		s.state.SetConnectivity(device.Disconnected)
		return
	}

	s.state.SetConnectivity(device.Connected)
	s.metrics.SetConnected(true)
	slog.Info("[SCHED] Connected", "ip", s.deps.Link.Address())
}
