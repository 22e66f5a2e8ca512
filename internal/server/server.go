// Package server exposes the HTTP control plane and the MJPEG stream on two
// listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"wavecam/internal/clock"
	"wavecam/internal/device"
	"wavecam/internal/frames"
	"wavecam/internal/metrics"
)

// FrameSource hands out camera frames under the acquire/release contract.
type FrameSource interface {
	Acquire(ctx context.Context) (*frames.Buffer, error)
	Release(b *frames.Buffer) error
}

type Config struct {
	ControlAddr string
	StreamAddr  string
	FrameDelay  time.Duration
}

type Server struct {
	cfg     Config
	state   *device.State
	frames  FrameSource
	clock   clock.Source
	metrics *metrics.Metrics

	mu      sync.Mutex
	control *http.Server
	stream  *http.Server
	addrs   [2]string
	live    int
}

func New(cfg Config, state *device.State, src FrameSource, clk clock.Source, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		state:   state,
		frames:  src,
		clock:   clk,
		metrics: m,
	}
}

// ControlHandler serves the page, the actuator endpoints, single-frame
// capture and metrics.
func (s *Server) ControlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /led/toggle", s.handleLEDToggle)
	mux.HandleFunc("GET /servo/wave", s.handleServoWave)
	mux.HandleFunc("GET /capture", s.handleSnapshot)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// StreamHandler serves the continuous multipart stream.
func (s *Server) StreamHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /capture", s.handleStream)
	return mux
}

// Start binds both listeners and serves them in the background. It is a
// no-op while the listeners from an earlier call are still serving.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live > 0 {
		return nil
	}

	cl, err := net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("listen control %s: %w", s.cfg.ControlAddr, err)
	}
	sl, err := net.Listen("tcp", s.cfg.StreamAddr)
	if err != nil {
		cl.Close()
		return fmt.Errorf("listen stream %s: %w", s.cfg.StreamAddr, err)
	}

	s.control = &http.Server{
		Handler:      s.ControlHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	// no write timeout: a stream lasts as long as the viewer stays
	s.stream = &http.Server{
		Handler:           s.StreamHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.addrs = [2]string{cl.Addr().String(), sl.Addr().String()}
	s.live = 2

	go s.serve("control", s.control, cl)
	go s.serve("stream", s.stream, sl)

	slog.Info("[HTTP] Listening", "control", s.addrs[0], "stream", s.addrs[1])
	return nil
}

func (s *Server) serve(name string, srv *http.Server, l net.Listener) {
	err := srv.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("[HTTP] Listener stopped", "listener", name, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// when one listener dies the pair is torn down so Start can rebind both
	if s.live == 2 {
		other := s.stream
		if srv == s.stream {
			other = s.control
		}
		other.Close()
	}
	s.live--
}

// Addrs returns the bound control and stream addresses.
func (s *Server) Addrs() (control, stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[0], s.addrs[1]
}

// Shutdown stops both listeners. Open streams are cut once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	control, stream := s.control, s.stream
	s.mu.Unlock()

	if control == nil {
		return nil
	}

	var errs []error
	for _, srv := range []*http.Server{control, stream} {
		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
