// Package rlog provides the structured logging interface used by the
// training and prediction drivers. It wraps zerolog behind a small
// interface so the drivers never import zerolog directly.
package rlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured-logging surface the engine needs.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type zlog struct {
	l zerolog.Logger
}

// New returns a Logger writing to w at the given level. Pass zerolog.Disabled
// for silent operation (the default for library callers that never set one).
func New(w io.Writer, level zerolog.Level) Logger {
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zlog{l: l}
}

// Nop returns a Logger that discards everything; the default for sessions
// that never configure one explicitly.
func Nop() Logger {
	return New(io.Discard, zerolog.Disabled)
}

// Stderr returns a Logger writing to os.Stderr at Debug level, useful for
// CLI tools and tests that want to see training progress.
func Stderr() Logger {
	return New(os.Stderr, zerolog.DebugLevel)
}

func (z *zlog) Debug(msg string, fields map[string]interface{}) {
	ev := z.l.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (z *zlog) With(fields map[string]interface{}) Logger {
	ctx := z.l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zlog{l: ctx.Logger()}
}
