package ble

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"wavecam/internal/clock"
	"wavecam/internal/config"
	"wavecam/internal/device"
	"wavecam/internal/hardware"
)

// --- UUID Definitions ---
var (
	// Standard Services
	ServiceDeviceInfo = bluetooth.ServiceUUIDDeviceInformation
	CharManufacturer  = bluetooth.CharacteristicUUIDManufacturerNameString
	CharModel         = bluetooth.CharacteristicUUIDModelNumberString
	CharSerialNumber  = bluetooth.CharacteristicUUIDSerialNumberString

	// Custom Camera Service (Base: 5C4Axxxx-1F3B-4E8C-9A61-2D7E0B93C4F1)
	ServiceCamUUID = bluetooth.NewUUID([16]byte{0x5C, 0x4A, 0x00, 0x00, 0x1F, 0x3B, 0x4E, 0x8C, 0x9A, 0x61, 0x2D, 0x7E, 0x0B, 0x93, 0xC4, 0xF1})

	// Characteristics
	// 01: Device Status (Read/Notify)
	CharStatus = bluetooth.NewUUID([16]byte{0x5C, 0x4A, 0x00, 0x01, 0x1F, 0x3B, 0x4E, 0x8C, 0x9A, 0x61, 0x2D, 0x7E, 0x0B, 0x93, 0xC4, 0xF1})
	// 02: Control (Write)
	CharControl = bluetooth.NewUUID([16]byte{0x5C, 0x4A, 0x00, 0x02, 0x1F, 0x3B, 0x4E, 0x8C, 0x9A, 0x61, 0x2D, 0x7E, 0x0B, 0x93, 0xC4, 0xF1})
	// 03: Wifi Setup (Write Only)
	CharWifiSetup = bluetooth.NewUUID([16]byte{0x5C, 0x4A, 0x00, 0x03, 0x1F, 0x3B, 0x4E, 0x8C, 0x9A, 0x61, 0x2D, 0x7E, 0x0B, 0x93, 0xC4, 0xF1})
)

// Counter reports how many uploads have been made.
type Counter interface {
	Count() uint32
}

// WifiConfigurer stores credentials for the next association attempt.
type WifiConfigurer interface {
	SetupWifi(ssid, pwd string) error
}

type Server struct {
	Adapter *bluetooth.Adapter

	cfg     config.BLEConfig
	state   *device.State
	clock   clock.Source
	wifi    WifiConfigurer
	uploads Counter
	bootID  string

	// Handles
	statusHandle bluetooth.Characteristic
}

func NewServer(cfg config.BLEConfig, state *device.State, clk clock.Source, wifi WifiConfigurer, uploads Counter, bootID string) *Server {
	return &Server{
		Adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
		state:   state,
		clock:   clk,
		wifi:    wifi,
		uploads: uploads,
		bootID:  bootID,
	}
}

// Start enables the adapter, registers the services and begins advertising.
// Status notifications run until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	slog.Info("[BLE] Adapter Enabled. Configuring Services...")

	s.addDeviceInfoService()
	if err := s.addCamService(); err != nil {
		return fmt.Errorf("add camera service: %w", err)
	}

	adv := s.Adapter.DefaultAdvertisement()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{ServiceCamUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}

	go s.notifyLoop(ctx)

	slog.Info("[BLE] Server Started, Advertising...", "name", s.cfg.LocalName)
	return nil
}

func (s *Server) addDeviceInfoService() {
	serialNum := getSerialNumber()
	slog.Info("[BLE] Device Info Configured", "serial", serialNum)

	_ = s.Adapter.AddService(&bluetooth.Service{
		UUID: ServiceDeviceInfo,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  CharManufacturer,
				Value: []byte("WaveCam"),
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  CharModel,
				Value: []byte("WaveCam ESP32-S3"),
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  CharSerialNumber,
				Value: []byte(serialNum),
				Flags: bluetooth.CharacteristicReadPermission,
			},
		},
	})
}

func (s *Server) addCamService() error {
	initial, _ := json.Marshal(s.status())

	return s.Adapter.AddService(&bluetooth.Service{
		UUID: ServiceCamUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			// 1. Status
			{
				UUID:   CharStatus,
				Value:  initial,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
				Handle: &s.statusHandle,
			},
			// 2. Control
			{
				UUID:       CharControl,
				Flags:      bluetooth.CharacteristicWritePermission,
				WriteEvent: s.handleControl,
			},
			// 3. Wifi Setup
			{
				UUID:       CharWifiSetup,
				Flags:      bluetooth.CharacteristicWritePermission,
				WriteEvent: s.handleWifiSetup,
			},
		},
	})
}

func (s *Server) notifyLoop(ctx context.Context) {
	period := s.cfg.NotifyPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.notifyStatus()
		}
	}
}

// --- Handlers ---

type ControlCmd struct {
	Action string `json:"action"`
}

const (
	ActionToggleLED = "toggle_led"
	ActionWave      = "wave"
)

func (s *Server) handleControl(client bluetooth.Connection, offset int, value []byte) {
	if offset != 0 {
		return
	}
	if err := s.applyCommand(value); err != nil {
		slog.Error("[BLE] Control command rejected", "err", err)
		return
	}
	s.notifyStatus()
}

// applyCommand performs the same state change as the matching HTTP endpoint.
func (s *Server) applyCommand(value []byte) error {
	var cmd ControlCmd
	if err := json.Unmarshal(value, &cmd); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	switch cmd.Action {
	case ActionToggleLED:
		on := s.state.ToggleIndicator(s.clock.Now())
		slog.Info("[BLE] Indicator toggled", "enabled", on)
	case ActionWave:
		accepted := s.state.RequestGesture(s.clock.Now())
		slog.Info("[BLE] Wave requested", "accepted", accepted)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

func (s *Server) handleWifiSetup(client bluetooth.Connection, offset int, value []byte) {
	if err := s.applyWifiSetup(value); err != nil {
		slog.Error("[BLE] Wifi setup rejected", "err", err)
	}
}

// applyWifiSetup stores new credentials. The scheduler uses them on its next
// association attempt.
func (s *Server) applyWifiSetup(value []byte) error {
	var creds hardware.WifiParameters
	if err := json.Unmarshal(value, &creds); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if creds.SSID == "" {
		return fmt.Errorf("ssid is required")
	}
	slog.Info("[BLE] Received Wifi Config", "ssid", creds.SSID)
	return s.wifi.SetupWifi(creds.SSID, creds.Password)
}

// --- Helpers ---

type StatusPayload struct {
	Connected        bool   `json:"connected"`
	Connectivity     string `json:"connectivity"`
	IndicatorEnabled bool   `json:"indicator_enabled"`
	GestureActive    bool   `json:"gesture_active"`
	Uploads          uint32 `json:"uploads"`
	BootID           string `json:"boot_id"`
}

func (s *Server) status() StatusPayload {
	snap := s.state.Snapshot()
	p := StatusPayload{
		Connected:        snap.Connectivity == device.Connected,
		Connectivity:     snap.Connectivity.String(),
		IndicatorEnabled: snap.IndicatorEnabled,
		GestureActive:    snap.GestureActive,
		BootID:           s.bootID,
	}
	if s.uploads != nil {
		p.Uploads = s.uploads.Count()
	}
	return p
}

func (s *Server) notifyStatus() {
	if data, err := json.Marshal(s.status()); err == nil {
		s.statusHandle.Write(data)
	}
}

func getSerialNumber() string {
	file, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "WAVECAM-DEV-SIMULATOR"
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Serial") {
			fields := strings.Split(line, ":")
			if len(fields) > 1 {
				return strings.TrimSpace(fields[1])
			}
		}
	}
	return "WAVECAM-UNKNOWN-ID"
}
