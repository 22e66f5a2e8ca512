package server

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"wavecam/internal/frames"
)

//go:embed static/index.html
var indexHTML []byte

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleLEDToggle(w http.ResponseWriter, r *http.Request) {
	on := s.state.ToggleIndicator(s.clock.Now())
	slog.Debug("[HTTP] Indicator toggled", "enabled", on)
	w.Write([]byte("OK"))
}

func (s *Server) handleServoWave(w http.ResponseWriter, r *http.Request) {
	if s.state.RequestGesture(s.clock.Now()) {
		slog.Debug("[HTTP] Wave requested")
	}
	w.Write([]byte("OK"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	buf, err := s.frames.Acquire(r.Context())
	if err != nil {
		slog.Warn("[HTTP] Snapshot failed", "err", err)
		s.metrics.Snapshot(false)
		status := http.StatusInternalServerError
		if errors.Is(err, frames.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "camera unavailable", status)
		return
	}
	defer s.frames.Release(buf)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", "inline; filename=capture.jpg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Data); err != nil {
		slog.Debug("[HTTP] Snapshot write failed", "err", err)
		s.metrics.Snapshot(false)
		return
	}
	s.metrics.Snapshot(true)
}
