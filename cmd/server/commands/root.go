package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wavecam",
	Short: "WaveCam - camera controller with live stream and wave gesture",
	Long: `WaveCam drives a camera board with an indicator LED, a waving servo
and a small display. It serves a control page and an MJPEG stream over HTTP
and periodically uploads a snapshot to blob storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Errors are printed here in red.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed, color.Bold)
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "wavecam.yaml", "Path to the YAML config file")
}
