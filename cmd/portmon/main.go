// portmon is the command-line interface for the portspawn port
// multiplexing library.
//
// It streams output from serial devices and subprocess consoles, waits
// for patterns in that output, and replicates traffic to WebSocket and
// MQTT consumers. It covers the common bench operations:
//   - Watching every port of a test rig from one terminal
//   - Sending a command and capturing the device's response
//   - Gating scripts on a boot marker
//   - Finding which /dev node an adapter enumerated as
//
// Usage:
//
//	portmon monitor --config bench.yaml
//	portmon --help
package main

import (
	"fmt"
	"os"

	"github.com/dutlab/portspawn/internal/cli"
)

// main executes the root command and reports any error on stderr, with
// credentials masked so broker URIs from the configuration cannot leak.
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.RedactError(err))
		os.Exit(1)
	}
}
