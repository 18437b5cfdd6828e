// Package logger builds the zerolog.Logger shared by every component
// in this module: constructed once per binary at wiring time and
// passed down explicitly, never reached for as a package global.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog Logger stamped with service (e.g. "aureahost",
// "aureasupervisor"), so a single aggregated log stream can tell the
// runtime host's lines apart from the supervisor's. Output is JSON by
// default, RFC3339Nano timestamps; pretty console output is used
// instead if AUREA_LOG_PRETTY=1.
func New(service, levelStr string) zerolog.Logger {
	level := parseLevel(levelStr)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "ts"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	var out io.Writer = os.Stdout

	if os.Getenv("AUREA_LOG_PRETTY") == "1" {
		cw := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		cw.FormatLevel = func(i interface{}) string {
			if ll, ok := i.(string); ok {
				return strings.ToUpper(ll)
			}
			return "?"
		}
		out = cw
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger scoped to one of this module's
// named components (store, scheduler, supervisor, ...). Every package
// that previously wrote its own `.With().Str("component", name)` call
// goes through this instead, so the field name and shape can't drift
// between packages.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
