package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newSendCmdForTest rebuilds the send command without touching the
// global instance, so flag state does not leak between tests.
func newSendCmdForTest() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "send <line>",
		Args:         cobra.ExactArgs(1),
		RunE:         runSend,
		SilenceUsage: true,
	}
	cmd.Flags().String("config", "", "")
	addPortFlags(cmd)
	cmd.Flags().String("port", "", "")
	cmd.Flags().String("expect", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	cmd.Flags().String("format", "text", "")
	cmd.Flags().Bool("raw", false, "")
	return cmd
}

func TestSendWaitsForShellResponse(t *testing.T) {
	cmd := newSendCmdForTest()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	// cat echoes the sent line straight back.
	cmd.SetArgs([]string{"--command", "cat", "--expect", `pong (\d+)`, "--timeout", "5s", "pong 7"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "pong 7") {
		t.Errorf("output missing match: %q", out)
	}
	if !strings.Contains(out, "group 1: 7") {
		t.Errorf("output missing group: %q", out)
	}
}

func TestSendWithoutExpectJustWrites(t *testing.T) {
	cmd := newSendCmdForTest()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--command", "cat", "reboot"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestSendExpectTimeout(t *testing.T) {
	cmd := newSendCmdForTest()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--command", "sleep 5", "--expect", "never appears", "--timeout", "100ms", "x"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("Execute() expected timeout error")
	}
	if !errors.Is(err, ErrRuntime) {
		t.Errorf("error = %v, want ErrRuntime", err)
	}
}

func TestSendRejectsBadPattern(t *testing.T) {
	cmd := newSendCmdForTest()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--command", "cat", "--expect", "broken(", "hello"})

	err := cmd.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Errorf("error = %v, want ErrUsage", err)
	}
}

func TestSendRejectsConflictingTargets(t *testing.T) {
	cmd := newSendCmdForTest()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--device", "/dev/ttyUSB0", "--command", "cat", "hello"})

	err := cmd.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Errorf("error = %v, want ErrUsage", err)
	}
}
