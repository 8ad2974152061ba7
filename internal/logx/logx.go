// Package logx builds the process logger. Every scheduler event is a single
// timestamped line: human-readable on a terminal, JSON when shipped elsewhere.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level  string // trace|debug|info|warn|error
	Format string // console|json
	Out    io.Writer
}

func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		_, isFile := out.(*os.File)
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat, NoColor: !isFile}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// Nop is handy for tests and for components built without a logger.
func Nop() zerolog.Logger { return zerolog.Nop() }

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
