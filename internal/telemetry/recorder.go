// Package telemetry records execution events as line-delimited JSON, one
// stream per event kind, keyed by a per-request correlation id.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/logging"
)

// streamFiles maps each event kind to its file name.
var streamFiles = map[domain.EventKind]string{
	domain.EventInteraction: "interactions.jsonl",
	domain.EventRouting:     "routing.jsonl",
	domain.EventPerformance: "performance.jsonl",
	domain.EventError:       "errors.jsonl",
}

// StreamFile returns the file name used for kind.
func StreamFile(kind domain.EventKind) string {
	return streamFiles[kind]
}

// NewCorrelationID mints an id tying together the events of one request.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Recorder appends telemetry events. A Recorder is safe for concurrent use;
// writes to a single stream are serialized. A nil or empty Recorder drops
// every event.
type Recorder struct {
	streams map[domain.EventKind]zerolog.Logger
	closers []io.Closer
	log     *logging.Logger
	now     func() time.Time
	mu      sync.Mutex // guards closers
}

// Open creates (or appends to) one JSONL file per event kind under dir.
// If the directory cannot be prepared, a no-op recorder is returned along
// with the error so callers can log it and continue.
func Open(dir string, log *logging.Logger) (*Recorder, error) {
	log = log.Sub("telemetry")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Nop(), fmt.Errorf("creating telemetry directory: %w", err)
	}

	writers := make(map[domain.EventKind]io.Writer, len(streamFiles))
	var closers []io.Closer
	for kind, name := range streamFiles {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return Nop(), fmt.Errorf("opening %s: %w", name, err)
		}
		writers[kind] = f
		closers = append(closers, f)
	}

	r := NewWithWriters(writers, log)
	r.closers = closers
	log.Debug().Str("dir", dir).Msg("telemetry streams opened")
	return r, nil
}

// NewWithWriters builds a recorder over caller-supplied writers. Kinds
// without a writer are dropped. log receives write failures.
func NewWithWriters(writers map[domain.EventKind]io.Writer, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	r := &Recorder{
		streams: make(map[domain.EventKind]zerolog.Logger, len(writers)),
		log:     log,
		now:     time.Now,
	}
	for kind, w := range writers {
		fw := &fallbackWriter{w: w, kind: kind, log: log}
		r.streams[kind] = zerolog.New(zerolog.SyncWriter(fw))
	}
	return r
}

// Nop returns a recorder that discards all events.
func Nop() *Recorder {
	return &Recorder{log: logging.Nop(), now: time.Now}
}

// Record writes ev to the stream for its kind. A zero timestamp is
// replaced with the current time.
func (r *Recorder) Record(ev domain.TelemetryEvent) {
	if r == nil {
		return
	}
	zl, ok := r.streams[ev.Kind]
	if !ok {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	e := zl.Log().
		Str("timestamp", ts.UTC().Format(time.RFC3339Nano)).
		Str("correlationId", ev.CorrelationID).
		Str("kind", string(ev.Kind))
	if len(ev.Payload) > 0 {
		e = e.Fields(ev.Payload)
	}
	e.Send()
}

// Log records an event of the given kind.
func (r *Recorder) Log(kind domain.EventKind, correlationID string, payload map[string]any) {
	r.Record(domain.TelemetryEvent{Kind: kind, CorrelationID: correlationID, Payload: payload})
}

// Interaction records the command/response pair of one request.
func (r *Recorder) Interaction(correlationID string, payload map[string]any) {
	r.Log(domain.EventInteraction, correlationID, payload)
}

// Routing records how a command was resolved.
func (r *Recorder) Routing(correlationID string, payload map[string]any) {
	r.Log(domain.EventRouting, correlationID, payload)
}

// Performance records timings of a slow request.
func (r *Recorder) Performance(correlationID string, payload map[string]any) {
	r.Log(domain.EventPerformance, correlationID, payload)
}

// Error records a failure that reached the top-level boundary.
func (r *Recorder) Error(correlationID string, err error, payload map[string]any) {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.Log(domain.EventError, correlationID, fields)
}

// Close releases the stream files.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// fallbackWriter swallows write errors after echoing them to the
// application log, so telemetry never fails the caller.
type fallbackWriter struct {
	w    io.Writer
	kind domain.EventKind
	log  *logging.Logger
}

func (f *fallbackWriter) Write(p []byte) (int, error) {
	if _, err := f.w.Write(p); err != nil {
		f.log.Warn().Err(err).Str("kind", string(f.kind)).
			RawJSON("event", trimNewline(p)).
			Msg("telemetry write failed")
	}
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
