package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

// Fields is the structured payload attached to a log line.
type Fields map[string]interface{}

type Logger struct {
	*log.Logger
	component string
	debug     bool
}

type LogEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     Level       `json:"level"`
	Component string      `json:"component,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

func init() {
	// stdout belongs to the terminal UI
	defaultLogger = NewLogger(os.Stderr)
}

// NewLogger writes JSON lines to w. Debug output follows the DEBUG env var.
func NewLogger(w io.Writer) *Logger {
	return &Logger{
		Logger: log.New(w, "", 0),
		debug:  os.Getenv("DEBUG") == "true",
	}
}

// With returns a logger that tags every entry with component.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
		debug:     l.debug,
	}
}

// SetDebug toggles DEBUG entries.
func (l *Logger) SetDebug(on bool) {
	l.debug = on
}

func (l *Logger) log(level Level, msg string, data interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Data:      data,
	}

	if jsonBytes, err := json.Marshal(entry); err == nil {
		l.Println(string(jsonBytes))
	}
}

func first(data []interface{}) interface{} {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

func (l *Logger) Info(msg string, data ...interface{}) {
	l.log(INFO, msg, first(data))
}

func (l *Logger) Warn(msg string, data ...interface{}) {
	l.log(WARN, msg, first(data))
}

func (l *Logger) Error(msg string, data ...interface{}) {
	l.log(ERROR, msg, first(data))
}

func (l *Logger) Debug(msg string, data ...interface{}) {
	if l.debug {
		l.log(DEBUG, msg, first(data))
	}
}

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Global logger functions
func Info(msg string, data ...interface{}) {
	Default().Info(msg, data...)
}

func Warn(msg string, data ...interface{}) {
	Default().Warn(msg, data...)
}

func Error(msg string, data ...interface{}) {
	Default().Error(msg, data...)
}

func Debug(msg string, data ...interface{}) {
	Default().Debug(msg, data...)
}
