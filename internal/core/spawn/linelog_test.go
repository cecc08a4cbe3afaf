package spawn

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordHeader = regexp.MustCompile(`\n\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}\]\n`)

func newTestLineLog(t *testing.T, path string) *LineLog {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return newLineLog("dut_1", path, "", 5*time.Millisecond, 5, logger, NopRecorder{})
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestLineLogFlushesCompleteLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	l.Append([]byte("hello world\n"))

	got := readLog(t, path)
	assert.Regexp(t, recordHeader, got)
	assert.Contains(t, got, "hello world\n")
}

func TestLineLogCoalescesPartialWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	l.Append([]byte("aaa"))
	assert.Empty(t, readLog(t, path), "partial line must be held back")

	l.Append([]byte("bbb\r\n"))
	got := readLog(t, path)
	assert.Contains(t, got, "aaabbb\r\n")
	assert.Len(t, recordHeader.FindAllString(got, -1), 1, "one record for the whole line")
}

func TestLineLogFlushesThroughLastNewlineKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	l.Append([]byte("one\ntwo"))
	got := readLog(t, path)
	assert.Contains(t, got, "one\n")
	assert.NotContains(t, got, "two")

	l.Append([]byte("\n"))
	assert.Contains(t, readLog(t, path), "two\n")
}

func TestLineLogStalePartialLineFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	base := time.Now()
	l.now = func() time.Time { return base }
	l.lastFlush = base

	l.Append([]byte("prompt> "))
	assert.Empty(t, readLog(t, path), "fresh partial line must be held back")

	// Stale threshold is interval*multiplier = 25ms.
	l.now = func() time.Time { return base.Add(30 * time.Millisecond) }
	l.Append(nil)
	assert.Contains(t, readLog(t, path), "prompt> ")
}

func TestLineLogEmptyAppendsNeverFlushEmptyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	for range 10 {
		l.Append(nil)
	}
	assert.Empty(t, readLog(t, path))
}

func TestLineLogDebugFallbackWithoutTarget(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := newLineLog("dut_1", "", "", 5*time.Millisecond, 5, logger, NopRecorder{})

	l.Append([]byte("to the logger\n"))

	assert.Contains(t, buf.String(), "port output")
	assert.Contains(t, buf.String(), "to the logger")
}

func TestLineLogRetargetKeepsPendingData(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	l := newTestLineLog(t, first)

	l.Append([]byte("partial"))
	l.SetTarget(second)
	assert.Empty(t, readLog(t, second), "retarget must not force a flush")

	l.Append([]byte(" done\n"))
	assert.Contains(t, readLog(t, second), "partial done\n")
	assert.Empty(t, readLog(t, first))
}

func TestLineLogBannerWrittenOnTarget(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	l := newLineLog("dut_1", first, "--------- dut_1 session ---------\n", 5*time.Millisecond, 5, logger, NopRecorder{})

	assert.Contains(t, readLog(t, first), "--------- dut_1 session ---------\n")

	l.SetTarget(second)
	assert.Contains(t, readLog(t, second), "--------- dut_1 session ---------\n")
}

func TestLineLogResetDiscardsPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.log")
	l := newTestLineLog(t, path)

	l.Append([]byte("pending"))
	l.Reset()
	l.Append([]byte("\n"))

	assert.NotContains(t, readLog(t, path), "pending")
}
