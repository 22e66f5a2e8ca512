package scheduler

import (
	"log/slog"

	"wavecam/internal/clock"
)

type gesturePhase int

const (
	gestureIdle gesturePhase = iota
	sweepRight
	sweepLeft
)

func (p gesturePhase) String() string {
	switch p {
	case gestureIdle:
		return "idle"
	case sweepRight:
		return "sweep_right"
	case sweepLeft:
		return "sweep_left"
	default:
		return "unknown"
	}
}

type gesture struct {
	phase      gesturePhase
	phaseStart clock.Tick
	cycles     int
}

// gestureStep advances the wave by at most one phase per call. A cycle is
// [0,P) right then [P,2P) left; the cycle ends at 2P. A cycle is only counted
// when leaving the left sweep, so a late tick never drops a swing. The servo
// is only written on phase entry.
func (s *Scheduler) gestureStep(now clock.Tick) {
	g := &s.gesture

	if g.phase == gestureIdle {
		if !s.state.GestureRequested() {
			return
		}
		g.phaseStart = now
		g.cycles = 0
		slog.Info("[SCHED] Wave started", "repetitions", s.cfg.Repetitions)
		s.enterPhase(sweepRight)
		return
	}

	e := clock.Elapsed(now, g.phaseStart)
	p := s.cfg.PhasePeriod
	switch {
	case e < p:
	case e < 2*p:
		if g.phase != sweepLeft {
			s.enterPhase(sweepLeft)
		}
	default:
		if g.phase == sweepRight {
			// late tick: the left sweep still gets a full period
			g.phaseStart = now - p
			s.enterPhase(sweepLeft)
			return
		}
		g.cycles++
		if g.cycles >= s.cfg.Repetitions {
			g.phase = gestureIdle
			s.state.ClearGesture()
			s.metrics.GestureDone()
			slog.Info("[SCHED] Wave finished", "cycles", g.cycles)
			return
		}
		g.phaseStart = now
		s.enterPhase(sweepRight)
	}
}

func (s *Scheduler) enterPhase(p gesturePhase) {
	s.gesture.phase = p

	angle := s.cfg.RightAngle
	if p == sweepLeft {
		angle = s.cfg.LeftAngle
	}
	if err := s.deps.Servo.SetAngle(angle); err != nil {
		slog.Warn("[SCHED] Servo write failed", "phase", p, "err", err)
	}
}
