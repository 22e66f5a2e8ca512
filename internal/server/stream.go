package server

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"wavecam/internal/metrics"
)

const streamBoundary = "frame"

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-store")

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	slog.Info("[HTTP] Stream opened", "remote", r.RemoteAddr)
	n, err := streamFrames(r.Context(), w, s.frames, s.cfg.FrameDelay, s.metrics)
	slog.Info("[HTTP] Stream closed", "remote", r.RemoteAddr, "frames", n, "reason", err)
}

// streamFrames writes one multipart part per frame until a capture, write or
// flush fails. It returns the number of frames delivered and the error that
// ended the stream. The viewer going away is only noticed through a failed
// write.
func streamFrames(ctx context.Context, w http.ResponseWriter, src FrameSource, delay time.Duration, m *metrics.Metrics) (int, error) {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(streamBoundary); err != nil {
		return 0, err
	}
	rc := http.NewResponseController(w)

	for n := 0; ; n++ {
		if err := writeFrame(ctx, mw, src); err != nil {
			return n, err
		}
		if err := rc.Flush(); err != nil {
			return n, fmt.Errorf("flush: %w", err)
		}
		m.FrameStreamed()

		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

func writeFrame(ctx context.Context, mw *multipart.Writer, src FrameSource) error {
	buf, err := src.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer src.Release(buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Type", "image/jpeg")
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("write part header: %w", err)
	}
	if _, err := part.Write(buf.Data); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	return nil
}
