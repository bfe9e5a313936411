// Package audit appends accepted world events to hourly rotated,
// zstd-compressed JSONL files. The files are write-only; the server never
// reads them back.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Event kinds.
const (
	EventEdit  = "edit"
	EventJoin  = "join"
	EventLeave = "leave"
)

// Event is one audit line.
type Event struct {
	TS        time.Time `json:"ts"`
	Event     string    `json:"event"`
	ClientID  int       `json:"client_id"`
	ConnID    string    `json:"conn_id"`
	Pos       *[3]int   `json:"pos,omitempty"`
	BlockType *int      `json:"block_type,omitempty"`
}

// Edit returns an edit event.
func Edit(clientID int, connID string, pos [3]int, blockType int) Event {
	return Event{Event: EventEdit, ClientID: clientID, ConnID: connID, Pos: &pos, BlockType: &blockType}
}

// Join returns a join event.
func Join(clientID int, connID string) Event {
	return Event{Event: EventJoin, ClientID: clientID, ConnID: connID}
}

// Leave returns a leave event.
func Leave(clientID int, connID string) Event {
	return Event{Event: EventLeave, ClientID: clientID, ConnID: connID}
}

// JSONLZstdWriter writes one JSON object per line into
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst, switching files on the hour (UTC).
// All methods are safe for concurrent use.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewJSONLZstdWriter creates a writer rooted at dir. No file is opened until
// the first Write.
//
// Precondition: dir and prefix must be non-empty.
func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

// Write appends v as one JSON line and flushes it through the compressor to
// the current hour's file.
//
// Postcondition: v is written as a complete zstd block, or an error is returned.
func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding audit line: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("writing audit line: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing audit line: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing audit line: %w", err)
	}
	if err := w.enc.Flush(); err != nil {
		return fmt.Errorf("flushing audit block: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// PathForHour returns the file path used for the given UTC hour key.
func (w *JSONLZstdWriter) PathForHour(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

// Log records events to a JSONLZstdWriter. Failures are logged and never
// returned to the caller.
type Log struct {
	w      *JSONLZstdWriter
	logger *zap.Logger
}

// NewLog creates an audit Log writing under dir.
//
// Precondition: dir must be non-empty; logger must be non-nil.
func NewLog(dir string, logger *zap.Logger) *Log {
	return &Log{w: NewJSONLZstdWriter(dir, "audit"), logger: logger}
}

// Record stamps e with the current time and appends it.
func (l *Log) Record(e Event) {
	if e.TS.IsZero() {
		e.TS = l.w.now().UTC()
	}
	if err := l.w.Write(e); err != nil {
		l.logger.Warn("audit write failed",
			zap.String("event", e.Event),
			zap.Int("client_id", e.ClientID),
			zap.Error(err),
		)
	}
}

// Close flushes the underlying file.
func (l *Log) Close() error {
	return l.w.Close()
}
