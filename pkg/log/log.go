package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Subsystems never log
// through it directly; they derive a child via WithComponent or
// ForGraph so every line carries the fields a log aggregator can
// filter on.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Level names accepted by Init, mirroring the CLI's --log-level flag.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// writer resolves the configured sink: cfg.Output (stdout when unset),
// wrapped in a console formatter unless JSON output was requested.
func (cfg Config) writer() io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.JSONOutput {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// Init configures the root logger. An unrecognized level name falls
// back to info rather than failing: logging must come up even when
// the flag is mistyped.
func Init(cfg Config) {
	lvl, ok := levels[cfg.Level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	Logger = zerolog.New(cfg.writer()).With().Timestamp().Logger()
}

// WithComponent returns a child logger carrying the component field.
// Component names used in this module: engine, checkpoint-sweeper,
// fork.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// ForGraph returns a component child logger that also carries the
// graph name and writer id, the two identifiers nearly every engine
// log line needs.
func ForGraph(component, graph, writerID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("graph", graph).
		Str("writer", writerID).
		Logger()
}
