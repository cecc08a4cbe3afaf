package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portmon",
	Short: "Port multiplexer and expect engine for hardware test benches",
	Long: `Port multiplexer and expect engine for hardware test benches.

Portmon opens serial devices and local processes, continuously drains
their output into per-port logs, and lets you stream, send to, and wait
on pattern matches against any port. Output can be replicated to
WebSocket dashboards and MQTT brokers.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")
}
