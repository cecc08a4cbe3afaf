// Package metrics provides the Prometheus-based implementation of port I/O
// accounting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dutlab/portspawn/internal/core/spawn"
)

var (
	// Reader throughput metrics
	bytesReadCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portspawn_bytes_read_total",
		Help: "Total bytes drained from the endpoint by the redirect loop",
	}, []string{"port"})

	bytesWrittenCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portspawn_bytes_written_total",
		Help: "Total bytes written to the endpoint",
	}, []string{"port"})

	// Failure metrics
	readErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portspawn_read_errors_total",
		Help: "Total fatal endpoint read failures that terminated a reader",
	}, []string{"port"})

	expectTimeoutCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portspawn_expect_timeouts_total",
		Help: "Total expect calls that hit their deadline without a match",
	}, []string{"port"})

	// Line log metrics
	logFlushCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portspawn_log_flushes_total",
		Help: "Total line-log records written to file",
	}, []string{"port"})
)

// PrometheusRecorder implements spawn.Recorder using Prometheus.
type PrometheusRecorder struct{}

// NewPrometheusRecorder creates a new Prometheus I/O recorder.
func NewPrometheusRecorder() spawn.Recorder {
	return &PrometheusRecorder{}
}

// AddBytesRead accounts bytes drained from the endpoint.
func (m *PrometheusRecorder) AddBytesRead(port string, n int) {
	bytesReadCounter.WithLabelValues(port).Add(float64(n))
}

// AddBytesWritten accounts bytes written to the endpoint.
func (m *PrometheusRecorder) AddBytesWritten(port string, n int) {
	bytesWrittenCounter.WithLabelValues(port).Add(float64(n))
}

// IncReadError counts a fatal endpoint read failure.
func (m *PrometheusRecorder) IncReadError(port string) {
	readErrorCounter.WithLabelValues(port).Inc()
}

// IncExpectTimeout counts an expect deadline expiry.
func (m *PrometheusRecorder) IncExpectTimeout(port string) {
	expectTimeoutCounter.WithLabelValues(port).Inc()
}

// IncLogFlush counts a line-log record written to file.
func (m *PrometheusRecorder) IncLogFlush(port string) {
	logFlushCounter.WithLabelValues(port).Inc()
}
