package hardware

import (
	"image"
	"time"
)

type Controller interface {
	// Lifecycle
	// Init brings up power rails, camera, display and actuators, in that
	// order. Any error is fatal for the device.
	Init() error
	Close()

	Camera
	Indicator
	Servo
	Display
	Link
}

// Camera is the driver's frame-buffer contract. Every frame returned by Grab
// must be handed back through Return exactly once; the driver owns only a
// couple of buffers.
type Camera interface {
	Grab() (*Frame, error)
	Return(f *Frame)
}

// Indicator drives the indicator LED line.
type Indicator interface {
	SetIndicator(on bool) error
}

// Servo positions the waving arm. Angle is in degrees, 0..179.
type Servo interface {
	SetAngle(deg int) error
}

// Display is a write-only sink for a monochrome image.
type Display interface {
	Show(img *image.Gray) error
}

// Link is the network association used by the scheduler.
type Link interface {
	SetupWifi(ssid, pwd string) error
	// ConnectToWifi makes one association attempt. It may block for the
	// duration of that attempt but never retries.
	ConnectToWifi() error
	LinkUp() bool
	// Address returns the current local address, or "" when unknown.
	Address() string
}

type Frame struct {
	Data      []byte
	Format    string
	Width     int
	Height    int
	Timestamp time.Time
}

const FormatJPEG = "jpeg"

type WifiParameters struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Servo travel limits.
const (
	ServoMinAngle = 0
	ServoMaxAngle = 179
)

// ClampAngle limits deg to the servo's travel.
func ClampAngle(deg int) int {
	if deg < ServoMinAngle {
		return ServoMinAngle
	}
	if deg > ServoMaxAngle {
		return ServoMaxAngle
	}
	return deg
}
