package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial devices present on this machine",
	Long: `Enumerate the serial devices the operating system currently knows
about, with USB identifiers where available. Useful for finding which
/dev node a freshly plugged adapter landed on.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().String("format", "text", "Output format (text, json)")
	rootCmd.AddCommand(listCmd)
}

// listedPort is the JSON shape of one enumerated device.
type listedPort struct {
	Device       string `json:"device"`
	USB          bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unknown format %q (use text or json)", ErrUsage, format)
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("%w: enumerate serial devices: %v", ErrRuntime, err)
	}

	ports := make([]listedPort, 0, len(details))
	for _, d := range details {
		ports = append(ports, listedPort{
			Device:       d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial devices found")
		return nil
	}
	for _, p := range ports {
		line := p.Device
		if p.USB {
			line += fmt.Sprintf("  usb %s:%s", p.VID, p.PID)
			if p.SerialNumber != "" {
				line += " serial " + p.SerialNumber
			}
			if p.Product != "" {
				line += fmt.Sprintf(" (%s)", p.Product)
			}
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
