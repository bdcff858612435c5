package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"crystalcollectors.io/internal/sim/world"
)

// ErrInvalidEntry is returned for journal entries that are refused before
// reaching disk.
var ErrInvalidEntry = errors.New("invalid journal entry")

// hourFile is one open <prefix>-YYYY-MM-DD-HH.jsonl.zst segment.
type hourFile struct {
	hour  string
	f     *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	lines int
}

func openHourFile(path, hour string) (*hourFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &hourFile{hour: hour, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// appendLine writes one line and ends a zstd block, so a crash loses at most
// the line being written. Appending to an existing segment after a restart
// adds a new zstd frame, which readers decode transparently.
func (h *hourFile) appendLine(b []byte) error {
	if _, err := h.buf.Write(b); err != nil {
		return err
	}
	if err := h.buf.WriteByte('\n'); err != nil {
		return err
	}
	if err := h.buf.Flush(); err != nil {
		return err
	}
	if err := h.enc.Flush(); err != nil {
		return err
	}
	h.lines++
	return nil
}

func (h *hourFile) close() error {
	flushErr := h.buf.Flush()
	encErr := h.enc.Close()
	fileErr := h.f.Close()
	return errors.Join(flushErr, encErr, fileErr)
}

// JSONLZstdWriter appends JSON lines to hourly zstd segments named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir. Hours are UTC.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu  sync.Mutex
	cur *hourFile
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

// Write marshals v before touching the segment, so an unencodable value never
// opens or rotates a file.
func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	hour := w.now().UTC().Format("2006-01-02-15")
	if w.cur == nil || w.cur.hour != hour {
		if err := w.closeLocked(); err != nil {
			return err
		}
		h, err := openHourFile(w.pathForHour(hour), hour)
		if err != nil {
			return err
		}
		w.cur = h
	}
	return w.cur.appendLine(b)
}

// Lines reports how many lines went into the current segment.
func (w *JSONLZstdWriter) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return 0
	}
	return w.cur.lines
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.close()
	w.cur = nil
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ValidateEvent checks the fields each event kind needs for the journal to be
// replayable.
func ValidateEvent(e world.EventLogEntry) error {
	if e.WorldID == "" {
		return fmt.Errorf("%w: %s without world id", ErrInvalidEntry, e.Kind)
	}
	needPlayer, needCrystal := false, false
	switch e.Kind {
	case world.EventWorldStart, world.EventJoin, world.EventLeave:
		needPlayer = true
	case world.EventCollect:
		needPlayer, needCrystal = true, true
	case world.EventRespawn:
		needCrystal = true
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if needPlayer && e.PlayerID == "" {
		return fmt.Errorf("%w: %s without player id", ErrInvalidEntry, e.Kind)
	}
	if needCrystal && e.CrystalID == "" {
		return fmt.Errorf("%w: %s without crystal id", ErrInvalidEntry, e.Kind)
	}
	if e.Value < 0 {
		return fmt.Errorf("%w: %s with negative value %d", ErrInvalidEntry, e.Kind, e.Value)
	}
	return nil
}

func ValidateAudit(e world.AuditEntry) error {
	if e.WorldID == "" || e.Actor == "" {
		return fmt.Errorf("%w: audit needs world id and actor", ErrInvalidEntry)
	}
	switch e.Reason {
	case world.RejectUnknownCrystal, world.RejectAlreadyCollected, world.RejectNoPlayer, world.RejectOutOfRange:
		return nil
	}
	return fmt.Errorf("%w: unknown audit reason %q", ErrInvalidEntry, e.Reason)
}

// counter tallies written entries by key.
type counter struct {
	mu sync.Mutex
	n  map[string]uint64
}

func (c *counter) inc(key string) {
	c.mu.Lock()
	if c.n == nil {
		c.n = make(map[string]uint64)
	}
	c.n[key]++
	c.mu.Unlock()
}

func (c *counter) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.n))
	for k, v := range c.n {
		out[k] = v
	}
	return out
}

// EventLogger journals world events under <dataDir>/events.
type EventLogger struct {
	w     *JSONLZstdWriter
	kinds counter
}

func NewEventLogger(dataDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events")}
}

func (l *EventLogger) WriteEvent(e world.EventLogEntry) error {
	if err := ValidateEvent(e); err != nil {
		return err
	}
	if err := l.w.Write(e); err != nil {
		return err
	}
	l.kinds.inc(e.Kind)
	return nil
}

// Counts returns the number of entries written per event kind.
func (l *EventLogger) Counts() map[string]uint64 { return l.kinds.snapshot() }

func (l *EventLogger) Close() error { return l.w.Close() }

// AuditLogger writes rejected-collect audit entries under <dataDir>/audit.
type AuditLogger struct {
	w       *JSONLZstdWriter
	reasons counter
}

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error {
	if err := ValidateAudit(e); err != nil {
		return err
	}
	if err := l.w.Write(e); err != nil {
		return err
	}
	l.reasons.inc(e.Reason)
	return nil
}

// Counts returns the number of audit entries written per rejection reason.
func (l *AuditLogger) Counts() map[string]uint64 { return l.reasons.snapshot() }

func (l *AuditLogger) Close() error { return l.w.Close() }
