package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"

	"github.com/dutlab/portspawn/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a configuration file without opening ports",
	Long: `Check loads the configuration file, applies PORTMON_* environment
overrides and runs the same validation monitor runs at startup. No
port is opened, so serial devices do not have to be plugged in.

With --probe the bench itself is inspected too: serial devices must
exist, shell commands must resolve in PATH and the log directory must
be present.`,
	Example: `  # Validate before copying to the bench host:
  portmon check --config bench.yaml

  # Validate and probe the attached hardware:
  portmon check --config bench.yaml --probe

  # JSON report for CI:
  portmon check --config bench.yaml --format json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("format", "text", "Output format (text|json)")
	checkCmd.Flags().Bool("probe", false, "Also verify devices, commands and directories on this host")
	checkCmd.Flags().Bool("verbose", false, "Print the resolved defaults and bridge settings")
}

// checkReport is the machine-readable result of a check run.
type checkReport struct {
	Valid    bool        `json:"valid"`
	File     string      `json:"file"`
	Ports    []checkPort `json:"ports,omitempty"`
	Problems []string    `json:"problems,omitempty"`
	Tips     []string    `json:"tips,omitempty"`
}

type checkPort struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	LogFile string `json:"log_file,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unknown format %q (use text or json)", ErrUsage, format)
	}
	probe, _ := cmd.Flags().GetBool("probe")
	verbose, _ := cmd.Flags().GetBool("verbose")

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if path == "" {
		return fmt.Errorf("%w: check needs a file; pass --config", ErrUsage)
	}

	report := checkReport{Valid: true, File: path}
	out := cmd.OutOrStdout()

	cfg, err := config.Load(path)
	if err != nil {
		report.Valid = false
		report.Problems = append(report.Problems, err.Error())
		report.Tips = configTips(err)
		emitCheckFailure(out, format, report)
		return fmt.Errorf("%w: %s does not validate", ErrConfig, path)
	}

	for _, pc := range cfg.Ports {
		report.Ports = append(report.Ports, checkPort{
			Name:    portLabel(pc),
			Kind:    pc.Kind,
			Target:  portTarget(pc),
			LogFile: portLogFile(pc, cfg.Defaults),
		})
	}

	if problems := duplicateNameProblems(cfg.Ports); len(problems) > 0 {
		report.Valid = false
		report.Problems = problems
		report.Tips = probeTips(problems)
		emitCheckFailure(out, format, report)
		return fmt.Errorf("%w: %s does not validate", ErrConfig, path)
	}

	if probe {
		if problems := probeProblems(cfg); len(problems) > 0 {
			report.Valid = false
			report.Problems = problems
			report.Tips = probeTips(problems)
			emitCheckFailure(out, format, report)
			return fmt.Errorf("%w: bench probe failed for %s", ErrPort, path)
		}
	}

	if format == "json" {
		return printCheckJSON(out, report)
	}

	fmt.Fprintf(out, "configuration valid: %d ports\n", len(report.Ports))
	for _, p := range report.Ports {
		if p.LogFile != "" {
			fmt.Fprintf(out, "  %-12s %-6s %s  log %s\n", p.Name, p.Kind, p.Target, p.LogFile)
		} else {
			fmt.Fprintf(out, "  %-12s %-6s %s\n", p.Name, p.Kind, p.Target)
		}
	}
	if verbose {
		printResolvedSettings(out, cfg)
	}
	return nil
}

func printCheckJSON(w io.Writer, report checkReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func emitCheckFailure(w io.Writer, format string, report checkReport) {
	if format == "json" {
		printCheckJSON(w, report)
	} else {
		printCheckProblems(w, report)
	}
}

func printCheckProblems(w io.Writer, report checkReport) {
	fmt.Fprintf(w, "configuration not valid: %s\n", report.File)
	for _, p := range report.Problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	if len(report.Tips) > 0 {
		fmt.Fprintln(w, "tips:")
		for _, tip := range report.Tips {
			fmt.Fprintf(w, "  - %s\n", tip)
		}
	}
}

func printResolvedSettings(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "defaults: expect_timeout %s, line_ending %q", cfg.Defaults.ExpectTimeout, cfg.Defaults.LineEnding)
	if cfg.Defaults.LogDir != "" {
		fmt.Fprintf(w, ", log_dir %s", cfg.Defaults.LogDir)
	}
	fmt.Fprintln(w)
	if cfg.Bridge.WebSocket.Enabled {
		fmt.Fprintf(w, "websocket bridge: %s\n", cfg.Bridge.WebSocket.Listen)
	}
	if cfg.Bridge.MQTT.Enabled {
		fmt.Fprintf(w, "mqtt bridge: %s topic %s qos %d\n",
			RedactString(cfg.Bridge.MQTT.Broker), cfg.Bridge.MQTT.TopicPrefix, cfg.Bridge.MQTT.QoS)
	}
	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "metrics: %s\n", cfg.Metrics.Listen)
	}
	fmt.Fprintf(w, "logging: %s %s\n", cfg.Logging.Level, cfg.Logging.Format)
}

// portTarget is the device or command a port entry points at.
func portTarget(pc config.PortConfig) string {
	if pc.Kind == "serial" {
		baud := pc.BaudRate
		if baud == 0 {
			baud = 115200
		}
		return fmt.Sprintf("%s @ %d", pc.Device, baud)
	}
	return fmt.Sprintf("%q", pc.Command)
}

// duplicateNameProblems flags explicit names used by more than one
// port. Unnamed ports get distinct generated names and cannot collide.
func duplicateNameProblems(ports []config.PortConfig) []string {
	seen := make(map[string]bool, len(ports))
	var problems []string
	for _, pc := range ports {
		if pc.Name == "" {
			continue
		}
		if seen[pc.Name] {
			problems = append(problems, fmt.Sprintf("port name %q used more than once", pc.Name))
		}
		seen[pc.Name] = true
	}
	return problems
}

// probeProblems inspects the host: every serial device must exist,
// every shell command must resolve and the log directory must be a
// directory.
func probeProblems(cfg *config.Config) []string {
	var problems []string
	for _, pc := range cfg.Ports {
		switch pc.Kind {
		case "serial":
			if _, err := os.Stat(pc.Device); err != nil {
				problems = append(problems, fmt.Sprintf("%s: device %s missing", portLabel(pc), pc.Device))
			}
		case "shell":
			fields := strings.Fields(pc.Command)
			if len(fields) > 0 {
				if _, err := exec.LookPath(fields[0]); err != nil {
					problems = append(problems, fmt.Sprintf("%s: command %q not found in PATH", portLabel(pc), fields[0]))
				}
			}
		}
	}
	if cfg.Defaults.LogDir != "" {
		if info, err := os.Stat(cfg.Defaults.LogDir); err != nil {
			problems = append(problems, fmt.Sprintf("log_dir %s missing", cfg.Defaults.LogDir))
		} else if !info.IsDir() {
			problems = append(problems, fmt.Sprintf("log_dir %s is not a directory", cfg.Defaults.LogDir))
		}
	}
	return problems
}

// configTips maps classified load errors to something actionable.
func configTips(err error) []string {
	var tips []string

	switch {
	case errorx.IsOfType(err, config.FileError):
		tips = append(tips, "pass the file with --config; paths are relative to the working directory")
	case errorx.IsOfType(err, config.ParseError):
		tips = append(tips, "YAML syntax problem; check indentation and quoting near the reported line")
	}

	msg := err.Error()
	for _, hint := range []struct {
		fragment string
		tip      string
	}{
		{"Kind", "every port needs kind: serial or kind: shell"},
		{"Device", "serial ports need device, such as /dev/ttyUSB0"},
		{"Command", `shell ports need command, such as "picocom -b 115200 /dev/ttyACM0"`},
		{"BaudRate", "usual rates are 9600, 19200, 38400, 57600, 115200, 230400, 460800 and 921600"},
		{"Listen", `listen takes host:port, such as ":8089"`},
		{"Broker", "broker takes a URL, such as tcp://broker.local:1883"},
		{"Name", "port names use letters, digits, '_' and '-'"},
	} {
		if strings.Contains(msg, hint.fragment) {
			tips = append(tips, hint.tip)
		}
	}
	return tips
}

// probeTips maps probe findings to bench-side fixes.
func probeTips(problems []string) []string {
	var tips []string
	joined := strings.Join(problems, "\n")
	if strings.Contains(joined, "device") {
		tips = append(tips, "is the adapter plugged in? check dmesg | tail and ls /dev/serial/by-id/")
		tips = append(tips, "a device that re-enumerated may have moved, e.g. ttyUSB0 to ttyUSB1")
	}
	if strings.Contains(joined, "PATH") {
		tips = append(tips, "install the tool on the bench host or use an absolute path in command")
	}
	if strings.Contains(joined, "log_dir") {
		tips = append(tips, "create the directory first; portmon does not create log_dir")
	}
	if strings.Contains(joined, "more than once") {
		tips = append(tips, "give each port a distinct name; logs and metrics are keyed by it")
	}
	return tips
}
