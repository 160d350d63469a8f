// Package qlog is Quark's structured logger: a builder-chain API over
// zerolog, grounded on internal/syslog's Logger/LogEntry shape (the
// Windows cross-host JSON forwarder and syslog-daemon fallback are
// dropped, per SPEC_FULL.md, since Quark is a single local process with
// nowhere else to forward to).
package qlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger and hands out LogEntry builders.
type Logger struct {
	zl zerolog.Logger
}

// New constructs a Logger writing human-readable output to w (or stderr
// if w is nil). debug enables debug-level output.
func New(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	zl := zerolog.New(console).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewJSON constructs a Logger emitting newline-delimited JSON, the shape
// an external log collector would consume.
func NewJSON(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// LogEntry accumulates fields before being written. Fields and message are
// deferred until Write() so call sites can build an entry across several
// statements, same shape as internal/syslog.LogEntry.
type LogEntry struct {
	event *zerolog.Event
	msg   string
}

// Info starts an info-level entry.
func (l *Logger) Info() *LogEntry {
	return &LogEntry{event: l.zl.Info()}
}

// Warn starts a warn-level entry.
func (l *Logger) Warn() *LogEntry {
	return &LogEntry{event: l.zl.Warn()}
}

// Debug starts a debug-level entry.
func (l *Logger) Debug() *LogEntry {
	return &LogEntry{event: l.zl.Debug()}
}

// Error starts an error-level entry carrying err.
func (l *Logger) Error(err error) *LogEntry {
	return &LogEntry{event: l.zl.Error().Err(err)}
}

// WithField attaches a single key/value pair.
func (e *LogEntry) WithField(key string, value interface{}) *LogEntry {
	e.event = e.event.Interface(key, value)
	return e
}

// WithFields attaches several key/value pairs at once.
func (e *LogEntry) WithFields(fields map[string]interface{}) *LogEntry {
	e.event = e.event.Fields(fields)
	return e
}

// WithMessage sets the human-readable message. Write() still works without
// a message, producing a bare structured entry.
func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.msg = msg
	return e
}

// Write emits the entry. Safe to call at most once per LogEntry.
func (e *LogEntry) Write() {
	e.event.Msg(e.msg)
}
