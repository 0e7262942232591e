// Package logger provides leveled, structured logging for the server.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Init configures the logger level from the LOG_LEVEL environment variable.
func Init() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

// With returns a field-scoped logger for a single component, e.g.
// logger.With("component", "docstore").Info("loaded %d bytes", n).
func With(key, value string) Component {
	return Component{ctx: log.With().Str(key, value).Logger()}
}

// Component is a logger scoped to structured fields (component, userId, ...).
type Component struct {
	ctx zerolog.Logger
}

// Field adds another structured field to the component logger.
func (c Component) Field(key, value string) Component {
	return Component{ctx: c.ctx.With().Str(key, value).Logger()}
}

func (c Component) Debug(format string, v ...interface{}) { c.ctx.Debug().Msgf(format, v...) }
func (c Component) Info(format string, v ...interface{})  { c.ctx.Info().Msgf(format, v...) }
func (c Component) Error(format string, v ...interface{}) { c.ctx.Error().Msgf(format, v...) }
