package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestEchoWriterPassthrough(t *testing.T) {
	var buf bytes.Buffer
	e := newEchoWriter(&buf, false)

	e.publish("dut_1", []byte("hello\nwor"))
	e.publish("dut_1", []byte("ld\n"))

	if got := buf.String(); got != "hello\nworld\n" {
		t.Errorf("output = %q, want %q", got, "hello\nworld\n")
	}
}

func TestEchoWriterPrefixesLines(t *testing.T) {
	var buf bytes.Buffer
	e := newEchoWriter(&buf, true)

	e.publish("dut_1", []byte("boot ok\ntw"))
	e.publish("dut_1", []byte("o\n"))

	want := "[dut_1] boot ok\n[dut_1] two\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEchoWriterInterleavesPorts(t *testing.T) {
	var buf bytes.Buffer
	e := newEchoWriter(&buf, true)

	e.publish("dut_1", []byte("boot ok\n"))
	e.publish("dut_2", []byte("ready\n"))
	e.publish("dut_1", []byte("login:\n"))

	want := "[dut_1] boot ok\n[dut_2] ready\n[dut_1] login:\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEchoWriterChunkEndingAtNewline(t *testing.T) {
	var buf bytes.Buffer
	e := newEchoWriter(&buf, true)

	e.publish("dut_1", []byte("one\n"))
	e.publish("dut_1", []byte("two\n"))

	want := "[dut_1] one\n[dut_1] two\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

// newMonitorCmdForTest rebuilds the monitor command without touching the
// global instance, so flag state does not leak between tests.
func newMonitorCmdForTest() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{
		Use:          "monitor",
		RunE:         runMonitor,
		SilenceUsage: true,
	}
	cmd.Flags().String("config", "", "")
	addPortFlags(cmd)
	cmd.Flags().Bool("reconnect", false, "")
	cmd.Flags().Bool("quiet", false, "")
	cmd.Flags().String("expect", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	cmd.Flags().String("listen", "", "")
	cmd.Flags().String("mqtt-broker", "", "")

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func TestMonitorExitsOnExpectedPattern(t *testing.T) {
	cmd, buf := newMonitorCmdForTest()
	cmd.SetArgs([]string{
		"--command", "echo booting; echo app ready; sleep 5",
		"--expect", "app ready",
		"--timeout", "5s",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\noutput: %s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "app ready") {
		t.Errorf("output missing streamed line: %q", buf.String())
	}
}

func TestMonitorExpectTimesOut(t *testing.T) {
	cmd, _ := newMonitorCmdForTest()
	cmd.SetArgs([]string{
		"--command", "sleep 5",
		"--expect", "never appears",
		"--timeout", "200ms",
	})

	err := cmd.Execute()
	if !errors.Is(err, ErrRuntime) {
		t.Fatalf("error = %v, want ErrRuntime", err)
	}
}

func TestMonitorRejectsBadPattern(t *testing.T) {
	cmd, _ := newMonitorCmdForTest()
	cmd.SetArgs([]string{"--command", "cat", "--expect", "broken("})

	err := cmd.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("error = %v, want ErrUsage", err)
	}
}

func TestMonitorNeedsAPort(t *testing.T) {
	cmd, _ := newMonitorCmdForTest()
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("error = %v, want ErrUsage", err)
	}
}
