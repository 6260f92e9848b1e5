// Package logx provides structured JSON logging for the fieldtrack daemon
package logx

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides structured JSON logging
type Logger struct {
	level  LogLevel
	logger *log.Logger
	fields map[string]interface{}
}

// New creates a new structured logger
func New(levelStr string) *Logger {
	return &Logger{
		level:  parseLevel(levelStr),
		logger: log.New(os.Stdout, "", 0), // everything is formatted as JSON
	}
}

// With returns a logger that attaches the given fields to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+len(keysAndValues)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprintf("%v", keysAndValues[i])] = keysAndValues[i+1]
	}
	return &Logger{level: l.level, logger: l.logger, fields: fields}
}

// parseLevel converts string to LogLevel
func parseLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// log outputs a structured log entry
func (l *Logger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	if level < l.level {
		return
	}

	entry := make(map[string]interface{}, 3+len(l.fields)+len(keysAndValues)/2)
	entry["ts"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = levelString(level)
	entry["msg"] = msg
	for k, v := range l.fields {
		entry[k] = v
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		entry[fmt.Sprintf("%v", keysAndValues[i])] = keysAndValues[i+1]
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to simple log if JSON marshaling fails
		l.logger.Printf("LOG_ERROR: failed to marshal log entry: %v", err)
		return
	}

	l.logger.Println(string(jsonBytes))
}

// levelString converts LogLevel to string
func levelString(level LogLevel) string {
	switch level {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(DebugLevel, msg, keysAndValues...)
}

// Info logs an info message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(InfoLevel, msg, keysAndValues...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(WarnLevel, msg, keysAndValues...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(ErrorLevel, msg, keysAndValues...)
}
