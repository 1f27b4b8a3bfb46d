// Package logging carries a zerolog logger through contexts and renders log
// events for humans.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	Level zerolog.Level
	JSON  bool // emit JSON lines instead of console output
	Out   io.Writer
}

// New returns a logger writing to opts.Out (stderr by default).
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = NewConsoleWriter(out, !isTerminal(out))
	}
	debug := opts.Level <= zerolog.DebugLevel
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, debug)
	}
	return zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
}

// WithLogger attaches the given logger to the context.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// From returns the logger attached to ctx, or a disabled logger.
func From(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// ParseLevel converts a level name to a zerolog.Level.
func ParseLevel(name string) (zerolog.Level, error) {
	switch name {
	case "warning":
		name = "warn"
	case "":
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, eris.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
