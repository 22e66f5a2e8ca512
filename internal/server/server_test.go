package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavecam/internal/clock"
	"wavecam/internal/device"
	"wavecam/internal/frames"
	"wavecam/internal/hardware"
	"wavecam/internal/metrics"
	"wavecam/internal/scheduler"
)

func newTestServer(t *testing.T) (*Server, *frames.Source, *hardware.MockController) {
	t.Helper()
	hw := hardware.NewMockController(2)
	src := frames.NewSource(hw, 2, 50*time.Millisecond)
	s := New(Config{
		ControlAddr: "127.0.0.1:0",
		StreamAddr:  "127.0.0.1:0",
		FrameDelay:  time.Millisecond,
	}, device.NewState(), src, &clock.Manual{T: 42}, metrics.New())
	return s, src, hw
}

func get(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestControl_Index(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(s.ControlHandler(), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/capture?t=")

	assert.Equal(t, http.StatusNotFound, get(s.ControlHandler(), http.MethodGet, "/nope").Code)
}

func TestControl_LEDToggle(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.ControlHandler()

	rec := get(h, http.MethodGet, "/led/toggle")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.True(t, s.state.IndicatorEnabled())
	assert.Equal(t, clock.Tick(42), s.state.IndicatorChangedAt())

	get(h, http.MethodGet, "/led/toggle")
	assert.False(t, s.state.IndicatorEnabled())

	assert.Equal(t, http.StatusMethodNotAllowed, get(h, http.MethodPost, "/led/toggle").Code)
}

func TestControl_ServoWave(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.ControlHandler()

	rec := get(h, http.MethodGet, "/servo/wave")
	assert.Equal(t, "OK", rec.Body.String())
	assert.True(t, s.state.GestureRequested())

	rec = get(h, http.MethodGet, "/servo/wave")
	assert.Equal(t, http.StatusOK, rec.Code, "repeat requests are accepted and ignored")
	assert.True(t, s.state.GestureRequested())
}

func TestControl_Snapshot(t *testing.T) {
	s, src, hw := newTestServer(t)

	rec := get(s.ControlHandler(), http.MethodGet, "/capture?t=123")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8}, rec.Body.Bytes()[:2])

	assert.Zero(t, src.Outstanding())
	assert.Zero(t, hw.Outstanding())
}

func TestControl_SnapshotUnavailable(t *testing.T) {
	s, src, _ := newTestServer(t)

	// hold both pool slots
	a, err := src.Acquire(context.Background())
	require.NoError(t, err)
	b, err := src.Acquire(context.Background())
	require.NoError(t, err)

	rec := get(s.ControlHandler(), http.MethodGet, "/capture")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "camera unavailable")

	require.NoError(t, src.Release(a))
	require.NoError(t, src.Release(b))
	assert.Zero(t, src.Outstanding())
}

func TestControl_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	get(s.ControlHandler(), http.MethodGet, "/capture")

	rec := get(s.ControlHandler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wavecam_snapshots_total{result="ok"} 1`)
}

// countingSource records every acquire and release.
type countingSource struct {
	mu       sync.Mutex
	inner    FrameSource
	failFrom int // acquires from this number on fail; 0 disables
	acquires int
	releases int
}

func (c *countingSource) Acquire(ctx context.Context) (*frames.Buffer, error) {
	c.mu.Lock()
	if c.failFrom > 0 && c.acquires+1 >= c.failFrom {
		c.mu.Unlock()
		return nil, frames.ErrUnavailable
	}
	c.acquires++
	c.mu.Unlock()
	return c.inner.Acquire(ctx)
}

func (c *countingSource) Release(b *frames.Buffer) error {
	c.mu.Lock()
	c.releases++
	c.mu.Unlock()
	return c.inner.Release(b)
}

func (c *countingSource) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires, c.releases
}

// failingWriter is a ResponseWriter whose writes or flushes start failing
// once fail reports true.
type failingWriter struct {
	header     http.Header
	failWrite  func() bool
	failFlush  func() bool
	written    int
	flushCount int
}

var errPeerGone = errors.New("connection reset by peer")

func (f *failingWriter) Header() http.Header {
	if f.header == nil {
		f.header = http.Header{}
	}
	return f.header
}

func (f *failingWriter) WriteHeader(int) {}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.failWrite != nil && f.failWrite() {
		return 0, errPeerGone
	}
	f.written += len(p)
	return len(p), nil
}

func (f *failingWriter) FlushError() error {
	f.flushCount++
	if f.failFlush != nil && f.failFlush() {
		return errPeerGone
	}
	return nil
}

func TestStream_WriteFailureStopsLoop(t *testing.T) {
	_, src, hw := newTestServer(t)
	cs := &countingSource{inner: src}

	const k = 4
	w := &failingWriter{failWrite: func() bool {
		a, _ := cs.counts()
		return a >= k
	}}

	n, err := streamFrames(context.Background(), w, cs, 0, nil)
	require.ErrorIs(t, err, errPeerGone)
	assert.Equal(t, k-1, n)

	acquires, releases := cs.counts()
	assert.Equal(t, k, acquires, "no iteration after the failed write")
	assert.Equal(t, acquires, releases)
	assert.Zero(t, hw.Outstanding())
}

func TestStream_FlushFailureStopsLoop(t *testing.T) {
	_, src, _ := newTestServer(t)
	cs := &countingSource{inner: src}

	w := &failingWriter{}
	w.failFlush = func() bool { return w.flushCount >= 3 }

	n, err := streamFrames(context.Background(), w, cs, 0, nil)
	require.Error(t, err)
	assert.Equal(t, 2, n)

	acquires, releases := cs.counts()
	assert.Equal(t, 3, acquires)
	assert.Equal(t, 3, releases)
}

func TestStream_CaptureFailureEndsStream(t *testing.T) {
	_, src, _ := newTestServer(t)
	cs := &countingSource{inner: src, failFrom: 6}

	n, err := streamFrames(context.Background(), &failingWriter{}, cs, 0, nil)
	require.ErrorIs(t, err, frames.ErrUnavailable)
	assert.Equal(t, 5, n)

	acquires, releases := cs.counts()
	assert.Equal(t, 5, acquires)
	assert.Equal(t, 5, releases)
	assert.Zero(t, src.Outstanding())
}

func TestStream_MultipartOverHTTP(t *testing.T) {
	s, src, _ := newTestServer(t)
	ts := httptest.NewServer(s.StreamHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/capture")
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	assert.Equal(t, "frame", params["boundary"])

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 3; i++ {
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		assert.NotEmpty(t, part.Header.Get("Content-Length"))

		data, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
	}
	resp.Body.Close()

	require.Eventually(t, func() bool { return src.Outstanding() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_Idempotent(t *testing.T) {
	s, _, _ := newTestServer(t)

	require.NoError(t, s.Start())
	control, stream := s.Addrs()
	assert.NotEqual(t, control, stream)

	require.NoError(t, s.Start())
	c2, s2 := s.Addrs()
	assert.Equal(t, control, c2, "second Start must not rebind")
	assert.Equal(t, stream, s2)

	resp, err := http.Get("http://" + control + "/led/toggle")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.live == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Start(), "start after shutdown binds again")
	require.NoError(t, s.Shutdown(ctx))
}

type countingLink struct {
	hardware.Link
	attempts int
}

func (c *countingLink) ConnectToWifi() error {
	c.attempts++
	return c.Link.ConnectToWifi()
}

func TestStream_LinkLostMidStream(t *testing.T) {
	s, src, hw := newTestServer(t)
	require.NoError(t, hw.SetupWifi("lab", "secret"))
	link := &countingLink{Link: hw}

	sched := scheduler.New(scheduler.Config{
		CheckPeriod:  500,
		TogglePeriod: 2500,
		PhasePeriod:  300,
		Repetitions:  5,
		UploadPeriod: 60000,
	}, s.state, scheduler.Deps{
		Link:      link,
		Indicator: hw,
		Servo:     hw,
		Pipeline:  s,
	}, nil)
	ctx := context.Background()
	t.Cleanup(func() { _ = s.Shutdown(ctx) })

	sched.Tick(ctx, 0)
	sched.Tick(ctx, 500)
	require.Equal(t, device.Connected, s.state.Connectivity())
	require.Equal(t, 1, link.attempts)

	cs := &countingSource{inner: src}
	w := &failingWriter{failWrite: func() bool { return !hw.LinkUp() }}

	done := make(chan error, 1)
	go func() {
		_, err := streamFrames(ctx, w, cs, time.Millisecond, nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		a, _ := cs.counts()
		return a >= 3
	}, time.Second, time.Millisecond)
	hw.DropLink()

	select {
	case err := <-done:
		require.ErrorIs(t, err, errPeerGone)
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept running after the link dropped")
	}
	acquires, releases := cs.counts()
	assert.Equal(t, acquires, releases)

	sched.Tick(ctx, 1000)
	assert.Equal(t, device.Disconnected, s.state.Connectivity())
	assert.Equal(t, 1, link.attempts)

	sched.Tick(ctx, 1200)
	assert.Equal(t, 1, link.attempts, "no attempt before the check period")

	sched.Tick(ctx, 1500)
	assert.Equal(t, 2, link.attempts)
	assert.Equal(t, device.Connected, s.state.Connectivity())
}

func TestControl_RespondsDuringSlowAssociation(t *testing.T) {
	s, _, hw := newTestServer(t)
	require.NoError(t, hw.SetupWifi("lab", "secret"))
	hw.AssociateDelay = 300 * time.Millisecond

	sched := scheduler.New(scheduler.Config{
		CheckPeriod:  500,
		TogglePeriod: 2500,
		PhasePeriod:  300,
		Repetitions:  5,
		UploadPeriod: 60000,
	}, s.state, scheduler.Deps{
		Link:      hw,
		Indicator: hw,
		Servo:     hw,
		Pipeline:  &noopStarter{},
	}, nil)

	ticked := make(chan struct{})
	go func() {
		sched.Tick(context.Background(), 0)
		close(ticked)
	}()

	require.Eventually(t, func() bool {
		return s.state.Connectivity() == device.Connecting
	}, time.Second, time.Millisecond)

	start := time.Now()
	rec := get(s.ControlHandler(), http.MethodGet, "/servo/wave")
	assert.Equal(t, "OK", rec.Body.String())
	assert.Less(t, time.Since(start), 100*time.Millisecond, "handler must not wait for the scheduler")
	assert.True(t, s.state.GestureRequested())

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("association did not finish")
	}
	assert.Equal(t, device.Connected, s.state.Connectivity())
}

type noopStarter struct{}

func (noopStarter) Start() error { return nil }
