package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions selects where a process logs and how much.
type LogOptions struct {
	Env     string
	Level   string
	Service string
	Out     io.Writer
}

// NewLogger builds the process logger. Development output goes through the
// console writer at debug level; Level overrides the environment default.
func NewLogger(opts LogOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stdout}
	}

	ctx := zerolog.New(out).
		Level(logLevel(opts.Env, opts.Level)).
		With().
		Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	return ctx.Logger()
}

func logLevel(env, raw string) zerolog.Level {
	if raw = strings.ToLower(strings.TrimSpace(raw)); raw != "" {
		if lvl, err := zerolog.ParseLevel(raw); err == nil {
			return lvl
		}
	}
	if env == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Logger lets packages accept a logger without importing zerolog.
type Logger = zerolog.Logger
