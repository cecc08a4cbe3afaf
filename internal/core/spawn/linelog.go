package spawn

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// timestampLayout renders flush headers with microsecond precision.
const timestampLayout = "2006-01-02 15:04:05.000000"

// LineLog reassembles the raw reader stream into line-aligned, timestamped
// records. Complete lines flush as they arrive; a partial line is held until
// its newline shows up or it goes stale (no flush for interval*multiplier).
// With no file target configured, flushed data goes to the debug log instead.
type LineLog struct {
	mu        sync.Mutex
	name      string
	path      string
	banner    string
	cache     []byte
	lastFlush time.Time
	stale     time.Duration
	logger    *slog.Logger
	rec       Recorder

	now func() time.Time // test seam
}

func newLineLog(name, path, banner string, interval time.Duration, multiplier int, logger *slog.Logger, rec Recorder) *LineLog {
	l := &LineLog{
		name:   name,
		banner: banner,
		stale:  interval * time.Duration(multiplier),
		logger: logger,
		rec:    rec,
		now:    time.Now,
	}
	l.lastFlush = l.now()
	if path != "" {
		l.retargetLocked(path)
	}
	return l
}

// Append feeds one reader iteration's output through the reassembly rules.
// It must be called every iteration, empty reads included, so a stale partial
// line (a prompt, an unterminated banner) still gets flushed.
func (l *LineLog) Append(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = append(l.cache, data...)
	if len(l.cache) == 0 {
		return
	}

	switch {
	case l.cache[len(l.cache)-1] == '\n':
		l.flushLocked(l.cache)
		l.cache = nil
	case bytes.IndexByte(l.cache, '\n') >= 0:
		i := bytes.LastIndexByte(l.cache, '\n')
		l.flushLocked(l.cache[:i+1])
		rest := make([]byte, len(l.cache)-i-1)
		copy(rest, l.cache[i+1:])
		l.cache = rest
	case l.now().Sub(l.lastFlush) > l.stale:
		l.flushLocked(l.cache)
		l.cache = nil
	}
}

// flushLocked writes one record to the current target and stamps the flush
// time. Write failures are logged and the record is dropped; the reader loop
// never sees them.
func (l *LineLog) flushLocked(data []byte) {
	l.lastFlush = l.now()
	if l.path == "" {
		l.logger.Debug("port output", "port", l.name, "data", string(data))
		return
	}
	record := make([]byte, 0, len(data)+len(timestampLayout)+4)
	record = fmt.Appendf(record, "\n[%s]\n", l.now().Format(timestampLayout))
	record = append(record, data...)
	if err := appendFile(l.path, record); err != nil {
		l.logger.Warn("port log write failed", "port", l.name, "path", l.path, "error", err)
		return
	}
	l.rec.IncLogFlush(l.name)
}

// SetTarget re-points the log target without flushing pending partial-line
// data; whatever is held flushes to the new target on its normal triggers.
// An empty path reverts to debug logging.
func (l *LineLog) SetTarget(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path == l.path {
		return
	}
	l.retargetLocked(path)
}

func (l *LineLog) retargetLocked(path string) {
	l.path = path
	if l.path == "" || l.banner == "" {
		return
	}
	if err := appendFile(l.path, []byte(l.banner)); err != nil {
		l.logger.Warn("port log banner write failed", "port", l.name, "path", l.path, "error", err)
	}
}

// Target returns the current file target ("" when logging to debug).
func (l *LineLog) Target() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// SetName renames the port label used in debug output.
func (l *LineLog) SetName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

// Reset discards pending partial-line state.
func (l *LineLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
