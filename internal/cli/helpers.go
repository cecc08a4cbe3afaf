package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dutlab/portspawn/internal/adapters/serialport"
	"github.com/dutlab/portspawn/internal/adapters/shell"
	"github.com/dutlab/portspawn/internal/config"
	"github.com/dutlab/portspawn/pkg/portspawn"
)

// loadConfig reads the file named by the root --config flag, or
// defaults plus environment when the flag is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get config flag: %v", ErrUsage, err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, nil
}

// openedPort pairs the facade with the serial handle behind it, kept
// for reopening devices that re-enumerate.
type openedPort struct {
	port   *portspawn.Port
	serial *serialport.Port
}

func (o *openedPort) close() {
	o.port.Close()
}

// openConfiguredPort builds one port from its configuration entry.
func openConfiguredPort(pc config.PortConfig, defs config.DefaultsConfig, extra ...portspawn.Option) (*openedPort, error) {
	opts := append(buildOptions(pc, defs), extra...)

	switch pc.Kind {
	case "serial":
		ep, err := serialport.Open(serialport.Config{
			Device:   pc.Device,
			BaudRate: pc.BaudRate,
			DataBits: pc.DataBits,
			Parity:   pc.Parity,
			StopBits: pc.StopBits,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPort, err)
		}
		port, err := portspawn.New(ep, opts...)
		if err != nil {
			ep.Close()
			return nil, fmt.Errorf("%w: %v", ErrPort, err)
		}
		return &openedPort{port: port, serial: ep}, nil

	case "shell":
		ep, err := shell.Start(shell.Config{Command: pc.Command})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPort, err)
		}
		port, err := portspawn.New(ep, opts...)
		if err != nil {
			ep.Close()
			return nil, fmt.Errorf("%w: %v", ErrPort, err)
		}
		return &openedPort{port: port}, nil
	}

	return nil, fmt.Errorf("%w: unknown port kind %q", ErrConfig, pc.Kind)
}

func buildOptions(pc config.PortConfig, defs config.DefaultsConfig) []portspawn.Option {
	opts := []portspawn.Option{
		portspawn.WithLineEnding(defs.Terminator()),
	}
	if pc.Name != "" {
		opts = append(opts, portspawn.WithName(pc.Name))
	}
	if logFile := portLogFile(pc, defs); logFile != "" {
		opts = append(opts, portspawn.WithLogFile(logFile))
	}
	if defs.ExpectTimeout > 0 {
		opts = append(opts, portspawn.WithDefaultTimeout(defs.ExpectTimeout))
	}
	if defs.ReadInterval > 0 {
		opts = append(opts, portspawn.WithReadInterval(defs.ReadInterval))
	}
	if defs.StaleFlushMultiplier > 0 {
		opts = append(opts, portspawn.WithStaleFlushMultiplier(defs.StaleFlushMultiplier))
	}
	return opts
}

// portLogFile resolves the log path: an explicit log_file wins, then
// defaults.log_dir with a name derived from the port.
func portLogFile(pc config.PortConfig, defs config.DefaultsConfig) string {
	if pc.LogFile != "" {
		return pc.LogFile
	}
	if defs.LogDir == "" {
		return ""
	}
	return filepath.Join(defs.LogDir, portLabel(pc)+".log")
}

// portLabel derives a stable label for log file names.
func portLabel(pc config.PortConfig) string {
	if pc.Name != "" {
		return pc.Name
	}
	if pc.Kind == "serial" && pc.Device != "" {
		return filepath.Base(pc.Device)
	}
	return "shell"
}

// adHocPortConfig translates the --device/--command override flags
// into one port entry, or returns ok=false when no override is set.
func adHocPortConfig(cmd *cobra.Command) (config.PortConfig, bool, error) {
	device, err := cmd.Flags().GetString("device")
	if err != nil {
		return config.PortConfig{}, false, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	command, err := cmd.Flags().GetString("command")
	if err != nil {
		return config.PortConfig{}, false, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if device == "" && command == "" {
		return config.PortConfig{}, false, nil
	}
	if device != "" && command != "" {
		return config.PortConfig{}, false, fmt.Errorf("%w: --device and --command are mutually exclusive", ErrUsage)
	}

	baud, _ := cmd.Flags().GetInt("baud")
	name, _ := cmd.Flags().GetString("name")
	logFile, _ := cmd.Flags().GetString("log-file")

	pc := config.PortConfig{
		Name:     name,
		BaudRate: baud,
		LogFile:  logFile,
	}
	if device != "" {
		pc.Kind = "serial"
		pc.Device = device
	} else {
		pc.Kind = "shell"
		pc.Command = command
	}
	return pc, true, nil
}

// addPortFlags registers the ad-hoc port flags shared by the commands
// that can target a single port.
func addPortFlags(cmd *cobra.Command) {
	cmd.Flags().String("device", "", "Serial device to open (e.g., /dev/ttyUSB0)")
	cmd.Flags().Int("baud", 0, "Baud rate for --device (default 115200)")
	cmd.Flags().String("command", "", "Shell command to run instead of a device")
	cmd.Flags().String("name", "", "Port name used in logs and errors")
	cmd.Flags().String("log-file", "", "Append port output to this file")
}

// resolvePortConfig picks the one port a single-port command targets:
// ad-hoc flags win, then --port selects a configured port by name, then
// a lone configured port is used implicitly.
func resolvePortConfig(cmd *cobra.Command, cfg *config.Config) (config.PortConfig, error) {
	if pc, ok, err := adHocPortConfig(cmd); err != nil {
		return config.PortConfig{}, err
	} else if ok {
		return pc, nil
	}

	wanted, err := cmd.Flags().GetString("port")
	if err != nil {
		return config.PortConfig{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if wanted != "" {
		for _, pc := range cfg.Ports {
			if pc.Name == wanted {
				return pc, nil
			}
		}
		return config.PortConfig{}, fmt.Errorf("%w: no configured port named %q", ErrConfig, wanted)
	}

	switch len(cfg.Ports) {
	case 0:
		return config.PortConfig{}, fmt.Errorf("%w: no port selected; pass --device, --command or --port", ErrUsage)
	case 1:
		return cfg.Ports[0], nil
	default:
		return config.PortConfig{}, fmt.Errorf("%w: several ports configured; pick one with --port", ErrUsage)
	}
}

// expectWindow derives the wait deadline: an explicit --timeout wins
// over the configured default.
func expectWindow(parent context.Context, cmd *cobra.Command, defs config.DefaultsConfig) (context.Context, context.CancelFunc, error) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if timeout <= 0 {
		timeout = defs.ExpectTimeout
	}
	if timeout <= 0 {
		timeout = portspawn.DefaultExpectTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, cancel, nil
}

// printMatch renders a successful expect for the console or scripts.
func printMatch(w io.Writer, format, port string, m *portspawn.Match) error {
	switch format {
	case "json":
		groups := make([]string, 0, m.GroupCount())
		for i := 1; i <= m.GroupCount(); i++ {
			groups = append(groups, m.GroupText(i))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Port   string   `json:"port"`
			Match  string   `json:"match"`
			Groups []string `json:"groups,omitempty"`
		}{Port: port, Match: m.Text(), Groups: groups})
	case "text":
		fmt.Fprintln(w, strings.TrimRight(m.Text(), "\r\n"))
		for i := 1; i <= m.GroupCount(); i++ {
			fmt.Fprintf(w, "group %d: %s\n", i, m.GroupText(i))
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown format %q (use text or json)", ErrUsage, format)
	}
}
