package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wavecam/internal/ble"
	"wavecam/internal/clock"
	"wavecam/internal/config"
	"wavecam/internal/device"
	"wavecam/internal/frames"
	"wavecam/internal/hardware"
	"wavecam/internal/metrics"
	"wavecam/internal/scheduler"
	"wavecam/internal/server"
	"wavecam/internal/upload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}

func newController(cfg *config.Config) hardware.Controller {
	if cfg.Hardware.Backend == "linux" {
		return hardware.NewLinuxController(hardware.LinuxConfig{
			FrameDir:  cfg.Camera.FrameDir,
			FBCount:   cfg.Camera.PoolDepth,
			LEDPath:   cfg.Hardware.LEDPath,
			PWMPath:   cfg.Hardware.PWMPath,
			Interface: cfg.Network.Interface,
		})
	}
	return hardware.NewMockController(cfg.Camera.PoolDepth)
}

func run(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	bootID := uuid.NewString()
	slog.Info("WaveCam System Starting...", "device", cfg.Device.Name, "boot_id", bootID)

	hw := newController(cfg)
	if err := hw.SetupWifi(cfg.Network.SSID, cfg.Network.Password); err != nil {
		return fmt.Errorf("wifi setup: %w", err)
	}
	if err := hw.Init(); err != nil {
		slog.Error("Failed to initialize hardware", "err", err)
		return fmt.Errorf("hardware init: %w", err)
	}
	defer hw.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	clk := clock.NewMonotonic()
	state := device.NewState()
	src := frames.NewSource(hw, cfg.Camera.PoolDepth, cfg.Camera.AcquireTimeout)

	srv := server.New(server.Config{
		ControlAddr: cfg.HTTP.ControlAddr,
		StreamAddr:  cfg.HTTP.StreamAddr,
		FrameDelay:  cfg.HTTP.FrameDelay,
	}, state, src, clk, m)

	deps := scheduler.Deps{
		Link:      hw,
		Indicator: hw,
		Servo:     hw,
		Display:   hw,
		Pipeline:  srv,
	}

	var uploads ble.Counter
	if cfg.Upload.Enabled {
		u := upload.New(cfg.Upload, src, bootID, m)
		deps.Uploader = u
		uploads = u
	}

	if cfg.BLE.Enabled {
		bt := ble.NewServer(cfg.BLE, state, clk, hw, uploads, bootID)
		if err := bt.Start(ctx); err != nil {
			slog.Warn("[BLE] Failed to start BLE server", "err", err)
		}
	}

	sched := scheduler.New(scheduler.ConfigFrom(cfg), state, deps, m)

	slog.Info("WaveCam Controller Ready. Press Ctrl+C to exit.")
	if err := sched.Run(ctx, clk); err != nil {
		return err
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[HTTP] Shutdown incomplete", "err", err)
	}
	return nil
}
