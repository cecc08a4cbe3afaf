package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/dutlab/portspawn/internal/config"
	"github.com/dutlab/portspawn/pkg/portspawn"
)

// newPortFlagCmd builds a throwaway command carrying the single-port
// flag set, so helpers can be driven without the global commands.
func newPortFlagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addPortFlags(cmd)
	cmd.Flags().String("port", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	return cmd
}

func setFlags(t *testing.T, cmd *cobra.Command, flags map[string]string) {
	t.Helper()
	for k, v := range flags {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("set flag %s=%s: %v", k, v, err)
		}
	}
}

func TestAdHocPortConfig(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[string]string
		wantOK   bool
		wantErr  bool
		wantKind string
	}{
		{
			name:   "no flags",
			wantOK: false,
		},
		{
			name:     "device flag",
			flags:    map[string]string{"device": "/dev/ttyUSB0", "baud": "9600", "name": "uartA"},
			wantOK:   true,
			wantKind: "serial",
		},
		{
			name:     "command flag",
			flags:    map[string]string{"command": "cat /dev/kmsg"},
			wantOK:   true,
			wantKind: "shell",
		},
		{
			name:    "device and command together",
			flags:   map[string]string{"device": "/dev/ttyUSB0", "command": "cat"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newPortFlagCmd()
			setFlags(t, cmd, tt.flags)

			pc, ok, err := adHocPortConfig(cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("adHocPortConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUsage) {
				t.Errorf("error = %v, want ErrUsage", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("adHocPortConfig() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantKind != "" && pc.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", pc.Kind, tt.wantKind)
			}
		})
	}
}

func TestAdHocPortConfigCarriesFlags(t *testing.T) {
	cmd := newPortFlagCmd()
	setFlags(t, cmd, map[string]string{
		"device":   "/dev/ttyACM2",
		"baud":     "921600",
		"name":     "probe",
		"log-file": "/tmp/probe.log",
	})

	pc, ok, err := adHocPortConfig(cmd)
	if err != nil || !ok {
		t.Fatalf("adHocPortConfig() = %v, %v", ok, err)
	}
	if pc.Device != "/dev/ttyACM2" || pc.BaudRate != 921600 {
		t.Errorf("device settings not carried: %+v", pc)
	}
	if pc.Name != "probe" || pc.LogFile != "/tmp/probe.log" {
		t.Errorf("name/log settings not carried: %+v", pc)
	}
}

func TestResolvePortConfig(t *testing.T) {
	twoPorts := &config.Config{Ports: []config.PortConfig{
		{Name: "dut_1", Kind: "serial", Device: "/dev/ttyUSB0"},
		{Name: "dut_2", Kind: "shell", Command: "console-server dut_2"},
	}}
	onePort := &config.Config{Ports: twoPorts.Ports[:1]}

	tests := []struct {
		name     string
		cfg      *config.Config
		flags    map[string]string
		wantName string
		wantErr  error
	}{
		{
			name:     "ad-hoc flags win over config",
			cfg:      twoPorts,
			flags:    map[string]string{"device": "/dev/ttyUSB9", "name": "override"},
			wantName: "override",
		},
		{
			name:     "named port",
			cfg:      twoPorts,
			flags:    map[string]string{"port": "dut_2"},
			wantName: "dut_2",
		},
		{
			name:    "unknown name",
			cfg:     twoPorts,
			flags:   map[string]string{"port": "dut_9"},
			wantErr: ErrConfig,
		},
		{
			name:     "single configured port is implicit",
			cfg:      onePort,
			wantName: "dut_1",
		},
		{
			name:    "several ports need a choice",
			cfg:     twoPorts,
			wantErr: ErrUsage,
		},
		{
			name:    "no ports at all",
			cfg:     &config.Config{},
			wantErr: ErrUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newPortFlagCmd()
			setFlags(t, cmd, tt.flags)

			pc, err := resolvePortConfig(cmd, tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("resolvePortConfig() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePortConfig() error = %v", err)
			}
			if pc.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", pc.Name, tt.wantName)
			}
		})
	}
}

func TestPortLogFile(t *testing.T) {
	tests := []struct {
		name string
		pc   config.PortConfig
		defs config.DefaultsConfig
		want string
	}{
		{
			name: "explicit path wins",
			pc:   config.PortConfig{Name: "dut_1", LogFile: "/var/log/dut.log"},
			defs: config.DefaultsConfig{LogDir: "/logs"},
			want: "/var/log/dut.log",
		},
		{
			name: "derived from name",
			pc:   config.PortConfig{Name: "dut_1"},
			defs: config.DefaultsConfig{LogDir: "/logs"},
			want: filepath.Join("/logs", "dut_1.log"),
		},
		{
			name: "derived from device",
			pc:   config.PortConfig{Kind: "serial", Device: "/dev/ttyUSB0"},
			defs: config.DefaultsConfig{LogDir: "/logs"},
			want: filepath.Join("/logs", "ttyUSB0.log"),
		},
		{
			name: "shell fallback",
			pc:   config.PortConfig{Kind: "shell", Command: "cat"},
			defs: config.DefaultsConfig{LogDir: "/logs"},
			want: filepath.Join("/logs", "shell.log"),
		},
		{
			name: "no log dir means no file",
			pc:   config.PortConfig{Name: "dut_1"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := portLogFile(tt.pc, tt.defs); got != tt.want {
				t.Errorf("portLogFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

// captureMatch produces a real match by running an expect against an
// in-memory stream.
func captureMatch(t *testing.T, pattern, input string) *portspawn.Match {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })

	port, err := portspawn.WrapReadWriter(local, "match_src")
	if err != nil {
		t.Fatalf("wrap pipe: %v", err)
	}
	t.Cleanup(func() { port.Close() })

	go remote.Write([]byte(input))

	m, err := port.Expect(regexp.MustCompile(pattern), 2*time.Second)
	if err != nil {
		t.Fatalf("expect %q: %v", pattern, err)
	}
	return m
}

func TestPrintMatchText(t *testing.T) {
	m := captureMatch(t, `version: (\S+) build (\d+)`, "noise\nversion: 4.4.1 build 77\n")

	var buf bytes.Buffer
	if err := printMatch(&buf, "text", "dut_1", m); err != nil {
		t.Fatalf("printMatch() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "version: 4.4.1 build 77") {
		t.Errorf("output missing match line: %q", out)
	}
	if !strings.Contains(out, "group 1: 4.4.1") || !strings.Contains(out, "group 2: 77") {
		t.Errorf("output missing groups: %q", out)
	}
}

func TestPrintMatchJSON(t *testing.T) {
	m := captureMatch(t, `mac=(\S+)`, "mac=aa:bb:cc:dd:ee:ff\n")

	var buf bytes.Buffer
	if err := printMatch(&buf, "json", "dut_1", m); err != nil {
		t.Fatalf("printMatch() error = %v", err)
	}

	var got struct {
		Port   string   `json:"port"`
		Match  string   `json:"match"`
		Groups []string `json:"groups"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.Port != "dut_1" {
		t.Errorf("port = %q", got.Port)
	}
	if got.Match != "mac=aa:bb:cc:dd:ee:ff" {
		t.Errorf("match = %q", got.Match)
	}
	if len(got.Groups) != 1 || got.Groups[0] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("groups = %v", got.Groups)
	}
}

func TestPrintMatchUnknownFormat(t *testing.T) {
	m := captureMatch(t, "ok", "ok\n")

	err := printMatch(&bytes.Buffer{}, "yaml", "dut_1", m)
	if !errors.Is(err, ErrUsage) {
		t.Errorf("printMatch() error = %v, want ErrUsage", err)
	}
}

func TestExpectWindow(t *testing.T) {
	tests := []struct {
		name string
		flag string
		defs config.DefaultsConfig
		want time.Duration
	}{
		{
			name: "flag wins",
			flag: "150ms",
			defs: config.DefaultsConfig{ExpectTimeout: time.Minute},
			want: 150 * time.Millisecond,
		},
		{
			name: "configured default",
			defs: config.DefaultsConfig{ExpectTimeout: 45 * time.Second},
			want: 45 * time.Second,
		},
		{
			name: "engine fallback",
			want: portspawn.DefaultExpectTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newPortFlagCmd()
			if tt.flag != "" {
				setFlags(t, cmd, map[string]string{"timeout": tt.flag})
			}

			ctx, cancel, err := expectWindow(context.Background(), cmd, tt.defs)
			if err != nil {
				t.Fatalf("expectWindow() error = %v", err)
			}
			defer cancel()

			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("context has no deadline")
			}
			remaining := time.Until(deadline)
			if remaining > tt.want || remaining < tt.want-500*time.Millisecond {
				t.Errorf("deadline in %v, want about %v", remaining, tt.want)
			}
		})
	}
}
