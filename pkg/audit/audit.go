package audit

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oci-hpc/felix/pkg/log"
)

// Fields carries phase-specific key/value pairs on a record.
type Fields map[string]interface{}

// Sink appends audit records. Implementations must be safe for
// concurrent use by all orchestrator workers.
type Sink interface {
	Append(phase, action, host string, fields Fields)
}

// Logger is the file-backed Sink. The critical section is a single
// line append plus flush.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	f   *os.File
	now func() time.Time
}

// Open creates (or appends to) the JSONL file at path, creating parent
// directories as needed.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{w: f, f: f, now: time.Now}, nil
}

// NewWriter wraps an arbitrary writer; used by tests and dry previews.
func NewWriter(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (l *Logger) SetNow(now func() time.Time) {
	l.now = now
}

// Append writes one record. Marshal or write failures are logged and
// swallowed: auditing must never take down the workflow.
func (l *Logger) Append(phase, action, host string, fields Fields) {
	rec := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		rec[k] = v
	}
	rec["ts"] = l.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	rec["phase"] = phase
	rec["action"] = action
	if host != "" {
		rec["host"] = host
	}

	line, err := json.Marshal(rec)
	if err != nil {
		log.Errorf("audit: marshal record", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		log.Errorf("audit: append record", err)
		return
	}
	if l.f != nil {
		_ = l.f.Sync()
	}
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	if l.f != nil {
		return l.f.Close()
	}
	return nil
}
