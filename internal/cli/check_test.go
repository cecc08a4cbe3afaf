package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newCheckCmdForTest() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "check", RunE: runCheck, SilenceUsage: true, SilenceErrors: true}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("format", "text", "")
	cmd.Flags().Bool("probe", false, "")
	cmd.Flags().Bool("verbose", false, "")

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portmon.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCheckValidFile(t *testing.T) {
	path := writeConfigFile(t, `
ports:
  - name: ctrl
    kind: shell
    command: cat
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("check failed: %v\noutput: %s", err, buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "configuration valid") {
		t.Errorf("output missing validity line: %q", out)
	}
	if !strings.Contains(out, "ctrl") || !strings.Contains(out, "shell") {
		t.Errorf("output missing port summary: %q", out)
	}
}

func TestCheckJSONReport(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  log_dir: /var/log/portmon
ports:
  - name: dut_1
    kind: serial
    device: /dev/ttyUSB0
    baud_rate: 921600
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path, "format": "json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("check failed: %v\noutput: %s", err, buf.String())
	}

	var report checkReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("not JSON: %v\noutput: %s", err, buf.String())
	}
	if !report.Valid {
		t.Error("report not valid")
	}
	if len(report.Ports) != 1 {
		t.Fatalf("ports = %d, want 1", len(report.Ports))
	}
	if report.Ports[0].Name != "dut_1" || report.Ports[0].Kind != "serial" {
		t.Errorf("port summary = %+v", report.Ports[0])
	}
	if report.Ports[0].LogFile != "/var/log/portmon/dut_1.log" {
		t.Errorf("log file = %q", report.Ports[0].LogFile)
	}
}

func TestCheckReportsSchemaErrors(t *testing.T) {
	path := writeConfigFile(t, `
ports:
  - name: dut_1
    kind: telnet
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path})

	err := cmd.Execute()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	out := buf.String()
	if !strings.Contains(out, "configuration not valid") {
		t.Errorf("output missing failure line: %q", out)
	}
	if !strings.Contains(out, "kind: serial or kind: shell") {
		t.Errorf("output missing kind tip: %q", out)
	}
}

func TestCheckRejectsDuplicateNames(t *testing.T) {
	path := writeConfigFile(t, `
ports:
  - name: dut
    kind: shell
    command: cat
  - name: dut
    kind: shell
    command: cat
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path})

	err := cmd.Execute()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if !strings.Contains(buf.String(), `port name "dut" used more than once`) {
		t.Errorf("output missing duplicate problem: %q", buf.String())
	}
}

func TestCheckProbeFlagsMissingDevice(t *testing.T) {
	path := writeConfigFile(t, `
ports:
  - name: dut_1
    kind: serial
    device: /dev/portmon-test-missing
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path, "probe": "true"})

	err := cmd.Execute()
	if !errors.Is(err, ErrPort) {
		t.Fatalf("err = %v, want ErrPort", err)
	}
	out := buf.String()
	if !strings.Contains(out, "device /dev/portmon-test-missing missing") {
		t.Errorf("output missing device problem: %q", out)
	}
	if !strings.Contains(out, "dmesg") {
		t.Errorf("output missing bench tip: %q", out)
	}
}

func TestCheckProbePassesOnResolvableCommand(t *testing.T) {
	path := writeConfigFile(t, `
ports:
  - name: ctrl
    kind: shell
    command: cat -u
`)
	cmd, buf := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": path, "probe": "true"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("probe failed: %v\noutput: %s", err, buf.String())
	}
}

func TestCheckRequiresConfigFlag(t *testing.T) {
	cmd, _ := newCheckCmdForTest()
	if err := cmd.Execute(); !errors.Is(err, ErrUsage) {
		t.Fatalf("err = %v, want ErrUsage", err)
	}
}

func TestCheckRejectsUnknownFormat(t *testing.T) {
	cmd, _ := newCheckCmdForTest()
	setFlags(t, cmd, map[string]string{"config": "whatever.yaml", "format": "yaml"})
	if err := cmd.Execute(); !errors.Is(err, ErrUsage) {
		t.Fatalf("err = %v, want ErrUsage", err)
	}
}
