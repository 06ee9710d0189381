package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

var levelNames = map[LogLevel]string{
	LogLevelNone:    "none",
	LogLevelError:   "error",
	LogLevelWarning: "warn",
	LogLevelInfo:    "info",
	LogLevelDebug:   "debug",
}

func (lvl LogLevel) String() string {
	if name, ok := levelNames[lvl]; ok {
		return name
	}
	return "level(" + strconv.Itoa(int(lvl)) + ")"
}

// ParseLevel accepts either the numeric level (0-4) or its name.
func ParseLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(LogLevelNone) || n > int(LogLevelDebug) {
			return LogLevelNone, fmt.Errorf("log level %d out of range", n)
		}
		return LogLevel(n), nil
	}
	switch s {
	case "warning":
		return LogLevelWarning, nil
	case "fatal":
		return LogLevelError, nil
	}
	for lvl, name := range levelNames {
		if name == s {
			return lvl, nil
		}
	}
	return LogLevelNone, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	logger *log.Logger
	level  LogLevel
	tag    string
}

func NewLogger(logger *log.Logger, level LogLevel) *Logger {
	return &Logger{
		logger: logger,
		level:  level,
		tag:    "",
	}
}

// New builds a leveled logger writing to w. Under systemd the journal adds
// its own timestamps, so the bare format is used there.
func New(w io.Writer, level LogLevel) *Logger {
	if os.Getenv("INVOCATION_ID") != "" {
		return NewLogger(log.New(w, "", 0), level)
	}
	return NewLogger(log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix), level)
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *Logger {
	return NewLogger(log.New(io.Discard, "", 0), LogLevelNone)
}

// WithTag creates a new logger with a tag prefix
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
	}
}

func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) formatMessage(level string, format string) string {
	if l.tag != "" {
		if level != "" {
			return "[" + l.tag + "] " + level + " " + format
		}
		return "[" + l.tag + "] " + format
	}
	if level != "" {
		return level + " " + format
	}
	return format
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.logger.Printf(l.formatMessage("DEBUG:", format), v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Printf(l.formatMessage("", format), v...)
	}
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.logger.Printf(l.formatMessage("WARN:", format), v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Printf(l.formatMessage("ERROR:", format), v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(l.formatMessage("FATAL:", format), v...)
}
