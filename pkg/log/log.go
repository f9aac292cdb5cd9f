// Package log provides a small structured-logging facade over zerolog.
// The rest of the module logs through this package instead of importing
// zerolog directly, so the output format and level wiring stay in one place.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
)

// Configure replaces the global logger. format is "text" or "json";
// anything else falls back to "text". level parses via zerolog.ParseLevel,
// defaulting to info on error.
func Configure(format, level string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = out
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Entry is a chainable log entry, mirroring the WithField/WithFields/WithError
// call shape used throughout the module.
type Entry struct {
	ctx zerolog.Context
}

// WithField starts a chain with a single structured field attached.
func WithField(key string, value interface{}) *Entry {
	return &Entry{ctx: current().With().Interface(key, value)}
}

// WithFields starts a chain with several structured fields attached.
func WithFields(fields map[string]interface{}) *Entry {
	ctx := current().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Entry{ctx: ctx}
}

// WithError starts a chain with an error field attached.
func WithError(err error) *Entry {
	return &Entry{ctx: current().With().Err(err)}
}

// WithField chains an additional field onto an existing entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{ctx: e.ctx.Interface(key, value)}
}

// WithFields chains additional fields onto an existing entry.
func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	ctx := e.ctx
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Entry{ctx: ctx}
}

// WithError chains an error field onto an existing entry.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{ctx: e.ctx.Err(err)}
}

func (e *Entry) Debug(msg string) { e.ctx.Logger().Debug().Msg(msg) }
func (e *Entry) Info(msg string)  { e.ctx.Logger().Info().Msg(msg) }
func (e *Entry) Warn(msg string)  { e.ctx.Logger().Warn().Msg(msg) }
func (e *Entry) Error(msg string) { e.ctx.Logger().Error().Msg(msg) }

// Debug logs a message at debug level with no extra fields.
func Debug(msg string) { current().Debug().Msg(msg) }

// Info logs a message at info level with no extra fields.
func Info(msg string) { current().Info().Msg(msg) }

// Warn logs a message at warn level with no extra fields.
func Warn(msg string) { current().Warn().Msg(msg) }

// Error logs a message at error level with no extra fields.
func Error(msg string) { current().Error().Msg(msg) }
