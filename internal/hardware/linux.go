package hardware

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// LinuxConfig selects the kernel interfaces the LinuxController drives.
type LinuxConfig struct {
	FrameDir  string
	FBCount   int
	LEDPath   string // e.g. /sys/class/leds/user-led
	PWMPath   string // e.g. /sys/class/pwm/pwmchip0/pwm0
	Interface string // e.g. wlan0

	AssociateTimeout time.Duration
}

// LinuxController drives real hardware through sysfs and NetworkManager.
type LinuxController struct {
	*FrameDir

	cfg LinuxConfig

	mu   sync.Mutex
	wifi WifiParameters
}

func NewLinuxController(cfg LinuxConfig) *LinuxController {
	if cfg.AssociateTimeout <= 0 {
		cfg.AssociateTimeout = 15 * time.Second
	}
	return &LinuxController{
		FrameDir: &FrameDir{RootPath: cfg.FrameDir, FBCount: cfg.FBCount},
		cfg:      cfg,
	}
}

// --- Lifecycle ---

func (l *LinuxController) Init() error {
	// The camera rails are fixed by the board's device tree on Linux targets.
	slog.Info("[HW] Power rails managed by kernel")

	if err := l.FrameDir.Init(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	slog.Info("[HW] Camera Initialized", "frame_dir", l.cfg.FrameDir)

	if l.cfg.PWMPath != "" {
		if err := writeSysfs(filepath.Join(l.cfg.PWMPath, "period"), servoPeriodNs); err != nil {
			return fmt.Errorf("servo init: %w", err)
		}
		if err := writeSysfs(filepath.Join(l.cfg.PWMPath, "enable"), 1); err != nil {
			return fmt.Errorf("servo init: %w", err)
		}
	}

	return l.SetIndicator(false)
}

func (l *LinuxController) Close() {
	if l.cfg.PWMPath != "" {
		_ = writeSysfs(filepath.Join(l.cfg.PWMPath, "enable"), 0)
	}
	_ = l.SetIndicator(false)
	slog.Info("[HW] Hardware Shutdown")
}

// --- Actuators ---

func (l *LinuxController) SetIndicator(on bool) error {
	if l.cfg.LEDPath == "" {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	return writeSysfs(filepath.Join(l.cfg.LEDPath, "brightness"), v)
}

// Hobby servo timing: 50 Hz frame, 544..2400 µs pulse over 0..179 degrees.
const (
	servoPeriodNs   = 20_000_000
	servoMinPulseNs = 544_000
	servoMaxPulseNs = 2_400_000
)

func angleToPulseNs(deg int) int {
	deg = ClampAngle(deg)
	return servoMinPulseNs + deg*(servoMaxPulseNs-servoMinPulseNs)/ServoMaxAngle
}

func (l *LinuxController) SetAngle(deg int) error {
	if l.cfg.PWMPath == "" {
		return errors.New("servo: no pwm path configured")
	}
	return writeSysfs(filepath.Join(l.cfg.PWMPath, "duty_cycle"), angleToPulseNs(deg))
}

// Show accepts the image without a panel attached; SPI/I2C panels are
// driven by a separate framebuffer service on Linux boards.
func (l *LinuxController) Show(img *image.Gray) error {
	if img == nil {
		return errors.New("display: nil image")
	}
	return nil
}

// --- Connectivity ---

func (l *LinuxController) SetupWifi(ssid, pwd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wifi = WifiParameters{SSID: ssid, Password: pwd}
	slog.Info("[HW] Wifi Credentials Saved", "ssid", ssid)
	return nil
}

func (l *LinuxController) ConnectToWifi() error {
	l.mu.Lock()
	creds := l.wifi
	l.mu.Unlock()

	if creds.SSID == "" {
		return fmt.Errorf("no wifi credentials configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.AssociateTimeout)
	defer cancel()

	args := []string{"device", "wifi", "connect", creds.SSID}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	if l.cfg.Interface != "" {
		args = append(args, "ifname", l.cfg.Interface)
	}

	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli connect %q: %w: %s", creds.SSID, err, out)
	}
	return nil
}

func (l *LinuxController) LinkUp() bool {
	return l.Address() != ""
}

func (l *LinuxController) Address() string {
	if l.cfg.Interface == "" {
		return ""
	}
	iface, err := net.InterfaceByName(l.cfg.Interface)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil && !ipn.IP.IsLoopback() {
			return ipn.IP.String()
		}
	}
	return ""
}

func writeSysfs(path string, v int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(v)), 0644)
}

var _ Controller = (*LinuxController)(nil)
