package spawn

// Recorder receives I/O accounting events from the redirect machinery.
// Implementations must be safe for concurrent use; the reader goroutine calls
// them on its hot path. The Prometheus implementation lives in
// internal/adapters/metrics.
type Recorder interface {
	// AddBytesRead accounts bytes drained from the endpoint.
	AddBytesRead(port string, n int)
	// AddBytesWritten accounts bytes written to the endpoint.
	AddBytesWritten(port string, n int)
	// IncReadError counts a fatal endpoint read failure.
	IncReadError(port string)
	// IncExpectTimeout counts an expect deadline expiry.
	IncExpectTimeout(port string)
	// IncLogFlush counts a line-log record written to file.
	IncLogFlush(port string)
}

// NopRecorder discards all events. It is the default when no recorder is
// configured.
type NopRecorder struct{}

func (NopRecorder) AddBytesRead(string, int)    {}
func (NopRecorder) AddBytesWritten(string, int) {}
func (NopRecorder) IncReadError(string)         {}
func (NopRecorder) IncExpectTimeout(string)     {}
func (NopRecorder) IncLogFlush(string)          {}
