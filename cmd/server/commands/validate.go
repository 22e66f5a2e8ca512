package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"wavecam/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file without touching the hardware",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		green.Fprintf(out, "✓ %s is valid\n", configPath)
		fmt.Fprintf(out, "  backend:  %s\n", cfg.Hardware.Backend)
		fmt.Fprintf(out, "  network:  %s (check every %s)\n", cfg.Network.SSID, cfg.Network.CheckPeriod)
		fmt.Fprintf(out, "  http:     control %s, stream %s\n", cfg.HTTP.ControlAddr, cfg.HTTP.StreamAddr)
		if cfg.Upload.Enabled {
			fmt.Fprintf(out, "  upload:   every %s to %s\n", cfg.Upload.Period, cfg.Upload.BaseURL)
		} else {
			fmt.Fprintf(out, "  upload:   disabled\n")
		}
		fmt.Fprintf(out, "  ble:      %t\n", cfg.BLE.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
