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

var expectCmd = &cobra.Command{
	Use:   "expect <pattern>",
	Short: "Wait until a pattern appears in port output",
	Long: `Open the selected port and block until its output matches the regular
expression, then print the match and exit. The command fails when the
timeout expires first, which makes it usable as a boot gate in scripts:

  portmon expect --device /dev/ttyUSB0 --timeout 90s "login:" && run-tests`,
	Args: cobra.ExactArgs(1),
	RunE: runExpect,
}

func init() {
	addPortFlags(expectCmd)
	expectCmd.Flags().String("port", "", "Name of the configured port to use")
	expectCmd.Flags().Duration("timeout", 0, "How long to wait (default from config)")
	expectCmd.Flags().String("format", "text", "Output format for the match (text, json)")
	rootCmd.AddCommand(expectCmd)
}

func runExpect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging)

	re, err := regexp.Compile(args[0])
	if err != nil {
		return fmt.Errorf("%w: bad pattern: %v", ErrUsage, err)
	}
	format, _ := cmd.Flags().GetString("format")

	pc, err := resolvePortConfig(cmd, cfg)
	if err != nil {
		return err
	}
	op, err := openConfiguredPort(pc, cfg.Defaults, portspawn.WithLogger(logger))
	if err != nil {
		return err
	}
	defer op.close()

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
