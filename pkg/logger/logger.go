package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, "console")
)

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Configure swaps the output sink. format is "json" or "console".
func Configure(w io.Writer, format string, level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, format).Level(toZerolog(level))
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(toZerolog(level))
}

// ParseLevel maps config strings to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func emit(ev *zerolog.Event, component, message string, fields map[string]any) {
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

func DebugCF(component, message string, fields map[string]any) {
	emit(current().Debug(), component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	emit(current().Info(), component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	emit(current().Warn(), component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	emit(current().Error(), component, message, fields)
}

func DebugC(component, message string) { DebugCF(component, message, nil) }
func InfoC(component, message string)  { InfoCF(component, message, nil) }
func WarnC(component, message string)  { WarnCF(component, message, nil) }
func ErrorC(component, message string) { ErrorCF(component, message, nil) }

// ShortAddress renders an address as "abcd...wxyz" for log lines and display.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
