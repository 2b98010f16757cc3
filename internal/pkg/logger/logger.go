// Package logger provides structured logging with PII redaction.
//
// Call sites use the package-level helpers with alternating key/value
// pairs; long-lived components take a component-scoped zerolog.Logger
// from With.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu        sync.RWMutex
	base      = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	redactPII = true
)

// Setup configures the default logger. Format "console" selects a
// human-readable writer; anything else emits JSON.
func Setup(level, format string) error {
	return SetupWriter(level, format, os.Stderr)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(level, format string, w io.Writer) error {
	if level == "" {
		level = "info"
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w}
	}

	mu.Lock()
	base = zerolog.New(out).With().Timestamp().Logger().Level(parsed)
	mu.Unlock()
	return nil
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	redactPII = r
	mu.Unlock()
}

// With returns a child logger tagged with the given component name.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { emit(zerolog.DebugLevel, msg, fields) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { emit(zerolog.InfoLevel, msg, fields) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { emit(zerolog.WarnLevel, msg, fields) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { emit(zerolog.ErrorLevel, msg, fields) }

func emit(level zerolog.Level, msg string, fields []interface{}) {
	mu.RLock()
	l := base
	redact := redactPII
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			ev = ev.Str(key, scrub(redact, key, err.Error()))
			continue
		}
		ev = ev.Str(key, scrub(redact, key, fmt.Sprintf("%v", fields[i+1])))
	}
	ev.Msg(msg)
}

func scrub(redact bool, key, val string) string {
	if !redact {
		return val
	}
	return redactPIIValue(key, val)
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
