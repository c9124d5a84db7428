// Package logging provides structured logging using bolt.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/felixgeelhaar/bolt/v3"
)

// current is the process logger. Init replaces it; Get builds the default
// on first use.
var current atomic.Pointer[bolt.Logger]

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json or console).
	Format string

	// Output is the output destination. Logs default to stderr so that
	// stdout carries only the progress stream.
	Output io.Writer
}

// DefaultConfig is used until Init is called: warnings and errors on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: "console",
		Output: os.Stderr,
	}
}

// ProductionConfig returns a configuration for machine-read logs.
func ProductionConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

func parseLevel(s string) bolt.Level {
	switch strings.ToLower(s) {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "info":
		return bolt.INFO
	case "warn":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

func newLogger(cfg Config) *bolt.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var handler bolt.Handler
	if cfg.Format == "json" {
		handler = bolt.NewJSONHandler(out)
	} else {
		handler = bolt.NewConsoleHandler(out)
	}
	return bolt.New(handler).SetLevel(parseLevel(cfg.Level))
}

// Init installs the process logger. Every command calls it once its
// configuration is known; later calls replace the logger.
func Init(cfg Config) {
	current.Store(newLogger(cfg))
}

// Get returns the process logger.
func Get() *bolt.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	current.CompareAndSwap(nil, newLogger(DefaultConfig()))
	return current.Load()
}

// SetLevel changes the level of the process logger.
func SetLevel(level string) {
	Get().SetLevel(parseLevel(level))
}

// LogEvent lets domain Fields be chained onto a bolt.Event.
type LogEvent struct {
	event *bolt.Event
}

// NewEvent wraps e.
func NewEvent(e *bolt.Event) *LogEvent {
	return &LogEvent{event: e}
}

// Add applies a field and returns the wrapper for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg sends the event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Send sends the event without a message.
func (l *LogEvent) Send() {
	l.event.Send()
}

func Trace() *LogEvent { return &LogEvent{event: Get().Trace()} }
func Debug() *LogEvent { return &LogEvent{event: Get().Debug()} }
func Info() *LogEvent  { return &LogEvent{event: Get().Info()} }
func Warn() *LogEvent  { return &LogEvent{event: Get().Warn()} }
func Error() *LogEvent { return &LogEvent{event: Get().Error()} }
