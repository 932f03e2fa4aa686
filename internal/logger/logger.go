// Package logger provides leveled logging for the dashboard service.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger provides leveled logging on top of the standard library logger.
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger = &Logger{
	level:  InfoLevel,
	logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
}

// Init configures the default logger from the logging config section.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	defaultLogger = &Logger{
		level:  ParseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) {
	defaultLogger.logger.SetOutput(w)
}

func (l *Logger) output(level Level, format string, args ...interface{}) {
	if l.level > level {
		return
	}
	msg := fmt.Sprintf("["+level.String()+"] "+format, args...)
	_ = l.logger.Output(3, msg)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.output(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.output(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.output(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.output(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	_ = defaultLogger.logger.Output(3, msg)
	os.Exit(1)
}
