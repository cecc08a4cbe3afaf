package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dutlab/portspawn/internal/adapters/metrics"
	"github.com/dutlab/portspawn/internal/bridge"
	"github.com/dutlab/portspawn/internal/config"
	"github.com/dutlab/portspawn/internal/logging"
	"github.com/dutlab/portspawn/internal/shutdown"
	"github.com/dutlab/portspawn/pkg/portspawn"
)

// reconnectInterval is how often dead serial readers are probed for a
// device that came back.
const reconnectInterval = time.Second

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream output from configured ports",
	Long: `Open every configured port, redirect its output to stdout and the
per-port log files, and keep running until interrupted.

Ports come from the configuration file, or from --device/--command for a
single ad-hoc port. When the WebSocket or MQTT bridge is enabled, port
output is replicated there as well.

With --expect, monitor exits successfully as soon as the pattern shows
up on any port, which lets it double as a boot gate that still streams
and logs everything it saw.

Examples:
  # Stream all ports from the config file
  portmon monitor --config bench.yaml

  # Watch one device without a config file
  portmon monitor --device /dev/ttyUSB0 --baud 115200

  # Keep watching across USB re-enumerations
  portmon monitor --device /dev/ttyUSB0 --reconnect

  # Stream until the app prompt appears, then hand off to the tests
  portmon monitor --device /dev/ttyUSB0 --expect 'app ready' --timeout 2m`,
	RunE: runMonitor,
}

func init() {
	addPortFlags(monitorCmd)
	monitorCmd.Flags().Bool("reconnect", false, "Reopen serial devices that disappear and resume streaming")
	monitorCmd.Flags().Bool("quiet", false, "Do not echo port output to stdout")
	monitorCmd.Flags().String("expect", "", "Exit successfully once this pattern appears on any port")
	monitorCmd.Flags().Duration("timeout", 0, "Give up on --expect after this long (default: wait until interrupted)")
	monitorCmd.Flags().String("listen", "", "Serve a live WebSocket stream of port output on this address")
	monitorCmd.Flags().String("mqtt-broker", "", "Publish port output to this MQTT broker")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging)

	portConfigs := cfg.Ports
	if pc, ok, err := adHocPortConfig(cmd); err != nil {
		return err
	} else if ok {
		portConfigs = []config.PortConfig{pc}
	}
	if len(portConfigs) == 0 {
		return fmt.Errorf("%w: no ports to monitor; configure ports or pass --device/--command", ErrUsage)
	}

	reconnect, _ := cmd.Flags().GetBool("reconnect")
	quiet, _ := cmd.Flags().GetBool("quiet")
	expectPat, _ := cmd.Flags().GetString("expect")
	expectTimeout, _ := cmd.Flags().GetDuration("timeout")

	var re *regexp.Regexp
	if expectPat != "" {
		re, err = regexp.Compile(expectPat)
		if err != nil {
			return fmt.Errorf("%w: bad --expect pattern: %v", ErrUsage, err)
		}
	}

	// Flag overrides switch a bridge on without a config file.
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Bridge.WebSocket.Enabled = true
		cfg.Bridge.WebSocket.Listen = listen
	}
	if broker, _ := cmd.Flags().GetString("mqtt-broker"); broker != "" {
		cfg.Bridge.MQTT.Enabled = true
		cfg.Bridge.MQTT.Broker = broker
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := shutdown.NewCoordinator(nil)
	defer coordinator.Shutdown(context.Background())

	// Bridges and metrics come up before the ports so no output is missed.
	var publishers []portspawn.ReceiveCallback
	if cfg.Bridge.WebSocket.Enabled {
		ws := bridge.NewWSBridge(logger)
		coordinator.RegisterBridge(ws)
		publishers = append(publishers, ws.Publish)
		go func() {
			if err := ws.Serve(cfg.Bridge.WebSocket.Listen); err != nil {
				logger.Error("websocket bridge failed", "error", err)
			}
		}()
	}
	if cfg.Bridge.MQTT.Enabled {
		mq, err := bridge.NewMQTTBridge(cfg.Bridge.MQTT, logger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRuntime, err)
		}
		coordinator.RegisterBridge(mq)
		publishers = append(publishers, mq.Publish)
	}

	extra := []portspawn.Option{portspawn.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		extra = append(extra, portspawn.WithRecorder(metrics.NewPrometheusRecorder()))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		coordinator.RegisterServer(srv)
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	echo := newEchoWriter(cmd.OutOrStdout(), len(portConfigs) > 1)
	onReceive := func(port string, data []byte) {
		if !quiet {
			echo.publish(port, data)
		}
		for _, publish := range publishers {
			publish(port, data)
		}
	}
	extra = append(extra, portspawn.WithReceiveCallback(onReceive))

	var opened []*openedPort
	for _, pc := range portConfigs {
		op, err := openConfiguredPort(pc, cfg.Defaults, extra...)
		if err != nil {
			return err
		}
		coordinator.RegisterPort(op.port)
		opened = append(opened, op)
		logger.Info("port opened",
			"port", op.port.Name(),
			"kind", op.port.Kind().String(),
			"log_file", op.port.LogFile())
	}

	if reconnect {
		go reconnectLoop(ctx, logger, opened)
	}

	runErr := waitMonitorDone(ctx, logger, opened, re, expectPat, expectTimeout)
	stop()

	if err := coordinator.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return runErr
}

// waitMonitorDone blocks until the process is interrupted or, when an
// expect pattern is set, until the pattern appears on any port or its
// wait window runs out.
func waitMonitorDone(ctx context.Context, logger *slog.Logger, opened []*openedPort, re *regexp.Regexp, pattern string, timeout time.Duration) error {
	if re == nil {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	watchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type portMatch struct {
		port string
		m    *portspawn.Match
	}
	matched := make(chan portMatch, 1)
	for _, op := range opened {
		go func(p *portspawn.Port) {
			m, err := p.ExpectContext(watchCtx, re)
			if err != nil {
				return
			}
			select {
			case matched <- portMatch{port: p.Name(), m: m}:
			default:
			}
		}(op.port)
	}

	select {
	case res := <-matched:
		logger.Info("pattern matched",
			"port", res.port,
			"match", strings.TrimRight(res.m.Text(), "\r\n"))
		return nil
	case <-watchCtx.Done():
		if ctx.Err() != nil {
			logger.Info("shutting down")
			return nil
		}
		return fmt.Errorf("%w: pattern %q not seen within %s", ErrRuntime, pattern, timeout)
	}
}

// reconnectLoop probes serial ports whose reader died and tries to
// reopen the device with its saved settings. Shell ports stay down once
// the child exits.
func reconnectLoop(ctx context.Context, logger *slog.Logger, opened []*openedPort) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, op := range opened {
			if op.serial == nil || op.port.RedirectAlive() {
				continue
			}
			op.port.StopRedirect()
			if err := op.serial.Reopen(); err != nil {
				logger.Debug("device still gone", "port", op.port.Name(), "error", err)
				continue
			}
			if err := op.port.StartRedirect(); err != nil {
				logger.Debug("redirect restart failed", "port", op.port.Name(), "error", err)
				continue
			}
			logger.Info("port reconnected", "port", op.port.Name())
		}
	}
}

// echoWriter serializes port output onto one stream. With prefixing on,
// every line is tagged with its port name so interleaved ports stay
// readable.
type echoWriter struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  bool
	midline map[string]bool
}

func newEchoWriter(w io.Writer, prefix bool) *echoWriter {
	return &echoWriter{w: w, prefix: prefix, midline: make(map[string]bool)}
}

func (e *echoWriter) publish(port string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prefix {
		e.w.Write(data)
		return
	}
	for len(data) > 0 {
		if !e.midline[port] {
			fmt.Fprintf(e.w, "[%s] ", port)
			e.midline[port] = true
		}
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			e.w.Write(data)
			return
		}
		e.w.Write(data[:i+1])
		e.midline[port] = false
		data = data[i+1:]
	}
}
