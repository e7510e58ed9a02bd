// Package logging provides the structured logger used across the
// extraction pipeline. It keeps the teacher's narrow Logger shape
// (internal/extraction/logger.go: Debug/Info/Warn/Error) but backs it
// with zerolog instead of the teacher's stdlib log.Logger, matching how
// ChiaYuChang-weathercock logs its own LLM extraction pipeline.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging interface every pipeline component depends
// on. Components accept this interface, never the concrete zerolog type,
// so tests can swap in a no-op or capturing implementation.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(component string) Logger
}

type zeroLogger struct {
	z zerolog.Logger
}

// New builds a JSON-lines Logger writing to w (os.Stdout in production).
func New(w io.Writer, debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zeroLogger{z: z}
}

// NewDefault builds a Logger writing to stdout, honoring
// EXTRACTION_LOG_LEVEL=debug the way the teacher's StdLogger did.
func NewDefault() Logger {
	return New(os.Stdout, os.Getenv("EXTRACTION_LOG_LEVEL") == "debug")
}

func (l *zeroLogger) With(component string) Logger {
	return &zeroLogger{z: l.z.With().Str("component", component).Logger()}
}

func (l *zeroLogger) Debug(msg string, kv ...interface{}) { logKV(l.z.Debug(), msg, kv) }
func (l *zeroLogger) Info(msg string, kv ...interface{})  { logKV(l.z.Info(), msg, kv) }
func (l *zeroLogger) Warn(msg string, kv ...interface{})  { logKV(l.z.Warn(), msg, kv) }
func (l *zeroLogger) Error(msg string, kv ...interface{}) { logKV(l.z.Error(), msg, kv) }

func logKV(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger { return &zeroLogger{z: zerolog.Nop()} }
