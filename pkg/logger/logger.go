package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel defines the severity level for log events.
type LogLevel string

const (
	// DebugLevel indicates per-segment tracing, such as skipped or persisted segments.
	DebugLevel LogLevel = "debug"
	// InfoLevel indicates run-level milestones (playlist loaded, assembly finished).
	InfoLevel LogLevel = "info"
	// WarnLevel indicates recoverable problems such as a segment retry or a failed cleanup.
	WarnLevel LogLevel = "warn"
	// ErrorLevel indicates a failed segment, download or task.
	ErrorLevel LogLevel = "error"
	// FatalLevel indicates an error that aborts the program.
	FatalLevel LogLevel = "fatal"
)

// Config controls how the global logger is set up.
type Config struct {
	// Level is the minimum level written. Defaults to info.
	Level LogLevel
	// Pretty switches from JSON lines to zerolog's human readable console output.
	Pretty bool
	// Output receives the log lines. Defaults to stderr.
	Output io.Writer
}

// Init initializes the global zerolog logger with JSON output on stderr and Unix timestamps.
// This should typically be called once at application startup.
func Init() {
	Configure(Config{})
}

// Configure initializes the global logger from cfg.
func Configure(cfg Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	log.Logger = log.Output(out)
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))
}

// ParseLevel maps a level name to its zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch LogLevel(strings.ToLower(strings.TrimSpace(level))) {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Log is the core logging function. It attaches the component and any data fields
// to the event and writes it through the global zerolog logger.
// Use the level functions (Debug, Info, Warn, Error, Fatal) instead of calling Log directly.
func Log(level LogLevel, message, component string, data map[string]interface{}) {
	logger := log.With().
		Str("component", component).
		Fields(data).
		Logger()

	switch level {
	case DebugLevel:
		logger.Debug().Msg(message)
	case InfoLevel:
		logger.Info().Msg(message)
	case WarnLevel:
		logger.Warn().Msg(message)
	case ErrorLevel:
		logger.Error().Msg(message)
	case FatalLevel:
		logger.Fatal().Msg(message)
	}
}

// Debug logs a message at the Debug level with the specified component and optional data.
func Debug(message, component string, data map[string]interface{}) {
	Log(DebugLevel, message, component, data)
}

// Info logs a message at the Info level with the specified component and optional data.
func Info(message, component string, data map[string]interface{}) {
	Log(InfoLevel, message, component, data)
}

// Warn logs a message at the Warn level with the specified component and optional data.
func Warn(message, component string, data map[string]interface{}) {
	Log(WarnLevel, message, component, data)
}

// Error logs a message at the Error level with the specified component and optional data.
func Error(message, component string, data map[string]interface{}) {
	Log(ErrorLevel, message, component, data)
}

// Fatal logs a message at the Fatal level and then calls os.Exit(1).
func Fatal(message, component string, data map[string]interface{}) {
	Log(FatalLevel, message, component, data)
}
