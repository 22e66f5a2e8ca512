package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Log       LogConfig       `yaml:"log"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Camera    CameraConfig    `yaml:"camera"`
	Network   NetworkConfig   `yaml:"network"`
	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Gesture   GestureConfig   `yaml:"gesture"`
	Upload    UploadConfig    `yaml:"upload"`
	BLE       BLEConfig       `yaml:"ble"`
}

type DeviceConfig struct {
	Name string `yaml:"name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type HardwareConfig struct {
	Backend string `yaml:"backend"` // mock, linux

	// linux backend
	LEDPath string `yaml:"led_path"`
	PWMPath string `yaml:"pwm_path"`
}

type CameraConfig struct {
	FrameDir       string        `yaml:"frame_dir"`
	PoolDepth      int           `yaml:"pool_depth"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type NetworkConfig struct {
	SSID        string        `yaml:"ssid"`
	Password    string        `yaml:"password"`
	Interface   string        `yaml:"interface"`
	CheckPeriod time.Duration `yaml:"check_period"`
}

type HTTPConfig struct {
	ControlAddr string        `yaml:"control_addr"`
	StreamAddr  string        `yaml:"stream_addr"`
	FrameDelay  time.Duration `yaml:"frame_delay"`
}

type SchedulerConfig struct {
	LoopInterval time.Duration `yaml:"loop_interval"`
}

type IndicatorConfig struct {
	TogglePeriod time.Duration `yaml:"toggle_period"`
}

type GestureConfig struct {
	RightAngle  int           `yaml:"right_angle"`
	LeftAngle   int           `yaml:"left_angle"`
	PhasePeriod time.Duration `yaml:"phase_period"`
	Repetitions int           `yaml:"repetitions"`
}

type UploadConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Period             time.Duration `yaml:"period"`
	BaseURL            string        `yaml:"base_url"`
	Token              string        `yaml:"token"`
	NamePrefix         string        `yaml:"name_prefix"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type BLEConfig struct {
	Enabled      bool          `yaml:"enabled"`
	LocalName    string        `yaml:"local_name"`
	NotifyPeriod time.Duration `yaml:"notify_period"`
}

// Load reads the YAML file at path, expands ${VAR} references from the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// 0 is a valid angle, so angle defaults are set before decoding
	cfg := Config{Gesture: GestureConfig{RightAngle: 120, LeftAngle: 30}}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.Name == "" {
		c.Device.Name = "wavecam"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Hardware.Backend == "" {
		c.Hardware.Backend = "mock"
	}
	if c.Camera.PoolDepth == 0 {
		c.Camera.PoolDepth = 2
	}
	if c.Camera.AcquireTimeout == 0 {
		c.Camera.AcquireTimeout = time.Second
	}
	if c.Network.CheckPeriod == 0 {
		c.Network.CheckPeriod = 500 * time.Millisecond
	}
	if c.HTTP.ControlAddr == "" {
		c.HTTP.ControlAddr = ":80"
	}
	if c.HTTP.StreamAddr == "" {
		c.HTTP.StreamAddr = ":81"
	}
	if c.HTTP.FrameDelay == 0 {
		c.HTTP.FrameDelay = 20 * time.Millisecond
	}
	if c.Scheduler.LoopInterval == 0 {
		c.Scheduler.LoopInterval = 5 * time.Millisecond
	}
	if c.Indicator.TogglePeriod == 0 {
		c.Indicator.TogglePeriod = 2500 * time.Millisecond
	}
	if c.Gesture.PhasePeriod == 0 {
		c.Gesture.PhasePeriod = 300 * time.Millisecond
	}
	if c.Gesture.Repetitions == 0 {
		c.Gesture.Repetitions = 5
	}
	if c.Upload.Period == 0 {
		c.Upload.Period = time.Minute
	}
	if c.Upload.NamePrefix == "" {
		c.Upload.NamePrefix = "esp_cam"
	}
	if c.Upload.Timeout == 0 {
		c.Upload.Timeout = 10 * time.Second
	}
	if c.BLE.LocalName == "" {
		c.BLE.LocalName = "WaveCam"
	}
	if c.BLE.NotifyPeriod == 0 {
		c.BLE.NotifyPeriod = 5 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Hardware.Backend {
	case "mock":
	case "linux":
		if c.Camera.FrameDir == "" {
			return fmt.Errorf("camera.frame_dir is required for the linux backend")
		}
		if c.Network.Interface == "" {
			return fmt.Errorf("network.interface is required for the linux backend")
		}
	default:
		return fmt.Errorf("hardware.backend %q: must be mock or linux", c.Hardware.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}

	if c.Network.SSID == "" {
		return fmt.Errorf("network.ssid is required")
	}
	if c.Camera.PoolDepth < 1 || c.Camera.PoolDepth > 2 {
		return fmt.Errorf("camera.pool_depth %d: must be 1 or 2", c.Camera.PoolDepth)
	}
	if c.HTTP.ControlAddr == c.HTTP.StreamAddr {
		return fmt.Errorf("http.control_addr and http.stream_addr must differ")
	}

	for name, a := range map[string]int{
		"gesture.right_angle": c.Gesture.RightAngle,
		"gesture.left_angle":  c.Gesture.LeftAngle,
	} {
		if a < 0 || a > 179 {
			return fmt.Errorf("%s %d: must be within 0..179", name, a)
		}
	}
	if c.Gesture.Repetitions < 1 {
		return fmt.Errorf("gesture.repetitions must be >= 1")
	}

	if c.Upload.Enabled {
		u, err := url.Parse(c.Upload.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upload.base_url %q: must be an absolute URL", c.Upload.BaseURL)
		}
	}

	return nil
}
