// Package upload pushes periodic snapshots to blob storage.
package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"wavecam/internal/config"
	"wavecam/internal/frames"
	"wavecam/internal/metrics"
)

// FrameSource is the part of frames.Source the uploader needs.
type FrameSource interface {
	Acquire(ctx context.Context) (*frames.Buffer, error)
	Release(b *frames.Buffer) error
}

type Uploader struct {
	cfg     config.UploadConfig
	src     FrameSource
	client  *http.Client
	bootID  string
	metrics *metrics.Metrics

	counter atomic.Uint32
}

func New(cfg config.UploadConfig, src FrameSource, bootID string, m *metrics.Metrics) *Uploader {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Uploader{
		cfg:     cfg,
		src:     src,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		bootID:  bootID,
		metrics: m,
	}
}

// Count is the number of names handed out since start.
func (u *Uploader) Count() uint32 {
	return u.counter.Load()
}

// Upload captures one frame and PUTs it as a block blob. It makes a single
// attempt and reports whether the store answered 2xx. A failed capture is
// skipped without consuming a name.
func (u *Uploader) Upload(ctx context.Context) bool {
	buf, err := u.src.Acquire(ctx)
	if err != nil {
		slog.Warn("[UPLOAD] Camera capture failed", "err", err)
		u.metrics.Upload(false, 0)
		return false
	}
	defer func() {
		if err := u.src.Release(buf); err != nil {
			slog.Error("[UPLOAD] Release failed", "err", err)
		}
	}()

	name := fmt.Sprintf("%s_%d.jpeg", u.cfg.NamePrefix, u.counter.Add(1)-1)
	size := buf.Len()

	if err := u.put(ctx, name, buf.Data); err != nil {
		slog.Warn("[UPLOAD] Upload failed", "name", name, "err", err)
		u.metrics.Upload(false, size)
		return false
	}

	slog.Info("[UPLOAD] Uploaded", "name", name, "bytes", size)
	u.metrics.Upload(true, size)
	return true
}

func (u *Uploader) put(ctx context.Context, name string, data []byte) error {
	url := u.cfg.BaseURL + name + u.cfg.Token

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", "image/jpeg")
	if u.bootID != "" {
		req.Header.Set("x-ms-meta-bootid", u.bootID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("put: unexpected status %s", resp.Status)
	}
	return nil
}
