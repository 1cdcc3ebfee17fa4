package logging

import (
	"io"
	"os"
	"strings"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/sirupsen/logrus"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to INFO
func ParseLevel(s string) Level {
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

// Logger wraps a logrus logger with the fields every line of a component carries
type Logger struct {
	*logrus.Entry
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level Level, json bool) *Logger {
	return NewLoggerWithOutput(os.Stdout, level, json)
}

// NewLoggerWithOutput creates a logger writing to w
func NewLoggerWithOutput(w io.Writer, level Level, json bool) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrusLevels[level])
	if json {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}
	return &Logger{Entry: logrus.NewEntry(l)}
}

// Component returns a child logger tagged with the component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

// With returns a child logger carrying the given fields
func (l *Logger) With(fields logrus.Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

// LogError logs a StoreError with its code and cause, or any other error as unexpected
func (l *Logger) LogError(err error) {
	var storeErr *types.StoreError
	if types.As(err, &storeErr) {
		entry := l.Entry.WithFields(logrus.Fields{
			"code":    storeErr.Code,
			"details": storeErr.Message,
		})
		if storeErr.Err != nil {
			entry = entry.WithField("cause", storeErr.Err.Error())
		}
		entry.Error("store error occurred")
		return
	}
	l.Entry.WithError(err).Error("unexpected error")
}

// Default logger instance
var Default = NewLogger(INFO, false)

// Discard is a logger that drops everything, used by tests
var Discard = NewLoggerWithOutput(io.Discard, ERROR, false)
