package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var (
	levelNames = map[LogLevel]string{
		DEBUG:  "DEBUG",
		INFO:   "INFO",
		WARN:   "WARN",
		ERROR:  "ERROR",
		SILENT: "SILENT",
	}

	levelColors = map[LogLevel]string{
		DEBUG:  "\033[36m", // Cyan
		INFO:   "\033[32m", // Green
		WARN:   "\033[33m", // Yellow
		ERROR:  "\033[31m", // Red
		SILENT: "",
	}

	resetColor = "\033[0m"
)

// Logger provides leveled logging tagged with a module name.
// A module may carry its own level, which takes precedence over the
// logger-wide level.
type Logger struct {
	mu           sync.Mutex
	level        LogLevel
	moduleLevels map[string]LogLevel
	useColor     bool
	out          *log.Logger
}

var defaultLogger atomic.Pointer[Logger]

// Init installs the process-wide logger. Only the first call has effect.
func Init(level LogLevel, output io.Writer, useColor bool) {
	defaultLogger.CompareAndSwap(nil, New(level, output, useColor))
}

// Default returns the process-wide logger, or nil before Init.
func Default() *Logger {
	return defaultLogger.Load()
}

// New creates a new Logger instance
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	return &Logger{
		level:        level,
		moduleLevels: make(map[string]LogLevel),
		useColor:     useColor,
		out:          log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetModuleLevel overrides the level for one module. Passing the
// logger-wide level back does not clear the override; use ClearModuleLevel.
func (l *Logger) SetModuleLevel(module string, level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moduleLevels[module] = level
}

// ClearModuleLevel removes a module override.
func (l *Logger) ClearModuleLevel(module string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.moduleLevels, module)
}

// Enabled reports whether a message at level for module would be written.
func (l *Logger) Enabled(level LogLevel, module string) bool {
	l.mu.Lock()
	threshold, ok := l.moduleLevels[module]
	if !ok {
		threshold = l.level
	}
	l.mu.Unlock()
	return level >= threshold && level < SILENT
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	if !l.Enabled(level, module) {
		return
	}

	prefix := "[" + levelNames[level] + "]"
	if l.useColor {
		prefix = levelColors[level] + prefix + resetColor
	}
	if module != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, module)
	}

	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Module is a handle bound to one module name. Handles from For resolve the
// process-wide default on every call, so handles created before Init still
// log once Init has run.
type Module struct {
	name   string
	target *Logger
}

// For returns a handle for module that writes through the default logger.
func For(module string) *Module {
	return &Module{name: module}
}

// Module returns a handle for module bound to l.
func (l *Logger) Module(module string) *Module {
	return &Module{name: module, target: l}
}

func (m *Module) logger() *Logger {
	if m.target != nil {
		return m.target
	}
	return defaultLogger.Load()
}

// Name returns the module tag.
func (m *Module) Name() string { return m.name }

// Debug logs a debug message for the module.
func (m *Module) Debug(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Debug(m.name, format, args...)
	}
}

// Info logs an info message for the module.
func (m *Module) Info(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Info(m.name, format, args...)
	}
}

// Warn logs a warning for the module.
func (m *Module) Warn(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Warn(m.name, format, args...)
	}
}

// Error logs an error for the module.
func (m *Module) Error(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Error(m.name, format, args...)
	}
}

// Global logger functions (use default logger)

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if l := defaultLogger.Load(); l != nil {
		l.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if l := defaultLogger.Load(); l != nil {
		return l.GetLevel()
	}
	return INFO
}

// SetModuleLevel overrides one module's level on the global logger.
func SetModuleLevel(module string, level LogLevel) {
	if l := defaultLogger.Load(); l != nil {
		l.SetModuleLevel(module, level)
	}
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Debug(module, format, args...)
	}
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Info(module, format, args...)
	}
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Warn(module, format, args...)
	}
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Error(module, format, args...)
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) (LogLevel, error) {
	switch s {
	case "debug", "DEBUG":
		return DEBUG, nil
	case "info", "INFO":
		return INFO, nil
	case "warn", "WARN", "warning", "WARNING":
		return WARN, nil
	case "error", "ERROR":
		return ERROR, nil
	case "silent", "SILENT", "none", "NONE":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText lets levels appear as strings in config files.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *LogLevel) UnmarshalText(text []byte) error {
	lvl, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}
