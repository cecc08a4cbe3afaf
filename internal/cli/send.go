package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dutlab/portspawn/internal/logging"
	"github.com/dutlab/portspawn/pkg/portspawn"
)

var sendCmd = &cobra.Command{
	Use:   "send <line>",
	Short: "Write a line to a port, optionally waiting for a response",
	Long: `Open the selected port, write the line with the configured terminator,
and exit. With --expect, wait for the pattern in the port output and
print the match before exiting; a timeout makes the command fail.

Examples:
  # Fire and forget
  portmon send --device /dev/ttyUSB0 "reboot"

  # Send a command and wait for its response
  portmon send --config bench.yaml --port dut_1 --expect "OK|ERROR" "at+gmr"

  # Capture a value for scripting
  portmon send --device /dev/ttyUSB0 --expect "version: (\S+)" --format json "version"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	addPortFlags(sendCmd)
	sendCmd.Flags().String("port", "", "Name of the configured port to use")
	sendCmd.Flags().String("expect", "", "Regular expression to wait for after sending")
	sendCmd.Flags().Duration("timeout", 0, "How long to wait for --expect (default from config)")
	sendCmd.Flags().String("format", "text", "Output format for the match (text, json)")
	sendCmd.Flags().Bool("raw", false, "Send the argument verbatim, without the line terminator")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging)

	pattern, _ := cmd.Flags().GetString("expect")
	format, _ := cmd.Flags().GetString("format")
	raw, _ := cmd.Flags().GetBool("raw")

	var re *regexp.Regexp
	if pattern != "" {
		re, err = regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: bad --expect pattern: %v", ErrUsage, err)
		}
	}

	pc, err := resolvePortConfig(cmd, cfg)
	if err != nil {
		return err
	}
	op, err := openConfiguredPort(pc, cfg.Defaults, portspawn.WithLogger(logger))
	if err != nil {
		return err
	}
	defer op.close()

	if raw {
		err = op.port.Write([]byte(args[0]))
	} else {
		err = op.port.WriteLine(args[0])
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPort, err)
	}
	if re == nil {
		return nil
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel, err := expectWindow(sigCtx, cmd, cfg.Defaults)
	if err != nil {
		return err
	}
	defer cancel()

	m, err := op.port.ExpectContext(ctx, re)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return printMatch(cmd.OutOrStdout(), format, op.port.Name(), m)
}
