package hardware

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// MockController simulates the hardware for local development.
type MockController struct {
	mu sync.Mutex

	// Camera
	frameW, frameH int
	fbCount        int
	outstanding    int
	seq            int

	// Actuators
	indicatorOn bool
	servoAngle  int
	shown       int

	// Connectivity
	wifiConfig WifiParameters
	linkUp     bool
	// AssociateDelay simulates the time an association attempt takes.
	AssociateDelay time.Duration
}

func NewMockController(fbCount int) *MockController {
	if fbCount <= 0 {
		fbCount = 1
	}
	return &MockController{
		frameW:  320,
		frameH:  240,
		fbCount: fbCount,
	}
}

// --- Lifecycle ---

func (m *MockController) Init() error {
	slog.Info("[MOCK] Power rails enabled", "aldo1_mv", 1800, "aldo2_mv", 2800, "aldo4_mv", 3000)
	slog.Info("[MOCK] Camera Initialized", "width", m.frameW, "height", m.frameH, "fb_count", m.fbCount)
	slog.Info("[MOCK] Display Initialized")
	return m.SetIndicator(false)
}

func (m *MockController) Close() {
	slog.Info("[MOCK] Hardware Shutdown")
}

// --- Camera ---

var errNoFreeBuffer = errors.New("mock camera: no free frame buffer")

func (m *MockController) Grab() (*Frame, error) {
	m.mu.Lock()
	if m.outstanding >= m.fbCount {
		m.mu.Unlock()
		return nil, errNoFreeBuffer
	}
	m.outstanding++
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	data, err := renderTestCard(m.frameW, m.frameH, seq)
	if err != nil {
		m.mu.Lock()
		m.outstanding--
		m.mu.Unlock()
		return nil, fmt.Errorf("mock camera: encode: %w", err)
	}

	return &Frame{
		Data:      data,
		Format:    FormatJPEG,
		Width:     m.frameW,
		Height:    m.frameH,
		Timestamp: time.Now(),
	}, nil
}

func (m *MockController) Return(f *Frame) {
	if f == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding > 0 {
		m.outstanding--
	}
}

// Outstanding reports how many frames are currently grabbed and not returned.
func (m *MockController) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// renderTestCard draws a bar that sweeps across the frame so consecutive
// frames are visibly different.
func renderTestCard(w, h, seq int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	barX := (seq * 8) % w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 96, A: 255}
			if x >= barX && x < barX+16 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Actuators ---

func (m *MockController) SetIndicator(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indicatorOn != on {
		slog.Debug("[MOCK] Indicator", "on", on)
	}
	m.indicatorOn = on
	return nil
}

func (m *MockController) IndicatorOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicatorOn
}

func (m *MockController) SetAngle(deg int) error {
	deg = ClampAngle(deg)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servoAngle = deg
	slog.Debug("[MOCK] Servo", "angle", deg)
	return nil
}

func (m *MockController) Angle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.servoAngle
}

func (m *MockController) Show(img *image.Gray) error {
	if img == nil {
		return errors.New("mock display: nil image")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown++
	if m.shown == 1 {
		b := img.Bounds()
		slog.Info("[MOCK] Display updated", "width", b.Dx(), "height", b.Dy())
	}
	return nil
}

// --- Connectivity ---

func (m *MockController) SetupWifi(ssid, pwd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wifiConfig.SSID = ssid
	m.wifiConfig.Password = pwd

	slog.Info("[MOCK] Wifi Credentials Saved", "ssid", ssid)
	return nil
}

func (m *MockController) ConnectToWifi() error {
	slog.Info("[MOCK] Connecting to Wifi...")
	if m.AssociateDelay > 0 {
		time.Sleep(m.AssociateDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wifiConfig.SSID == "" {
		return fmt.Errorf("no wifi credentials configured")
	}

	m.linkUp = true
	slog.Info("[MOCK] Wifi Connected", "ssid", m.wifiConfig.SSID)
	return nil
}

func (m *MockController) LinkUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkUp
}

// DropLink simulates losing the access point.
func (m *MockController) DropLink() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkUp = false
	slog.Info("[MOCK] Wifi link lost")
}

func (m *MockController) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.linkUp {
		return ""
	}
	return "127.0.0.1"
}

func (m *MockController) WifiDetails() WifiParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Return a copy to avoid race conditions
	return m.wifiConfig
}

var _ Controller = (*MockController)(nil)
