package logging

// Levelled logging for tlvscope

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

var levelNames = []string{"silent", "error", "info", "verbose", "debug"}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name from config or flags.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LogLevelInfo, nil
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i), nil
		}
	}
	return LogLevelInfo, fmt.Errorf("invalid log level %q (want one of %s)", s, strings.Join(levelNames, ", "))
}

// Logger provides levelled logging to the console and an optional file
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *log.Logger
	stdout   *log.Logger
	stderr   *log.Logger
}

// NewLogger creates a new text logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger with an output format ("text" or
// "json") and a sampling rate for per-frame messages on the console.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	if logEvery <= 0 {
		logEvery = 1
	}
	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   log.New(os.Stdout, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		flags := log.LstdFlags
		if format == "json" {
			flags = 0
		}
		l.fileLog = log.New(file, "", flags)
	}

	return l, nil
}

// SetOutput redirects console output, mainly for tests.
func (l *Logger) SetOutput(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = log.New(stdout, "", 0)
	l.stderr = log.New(stderr, "", 0)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write(LogLevelError, fmt.Sprintf(format, v...), false)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write(LogLevelInfo, fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write(LogLevelVerbose, fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write(LogLevelDebug, fmt.Sprintf(format, v...), false)
	}
}

func (l *Logger) render(level LogLevel, msg string) string {
	if l.format == "json" {
		b, err := json.Marshal(map[string]string{
			"time":    time.Now().UTC().Format(time.RFC3339),
			"level":   level.String(),
			"message": msg,
		})
		if err == nil {
			return string(b)
		}
	}
	return strings.ToUpper(level.String()) + ": " + msg
}

// write sends a message to the file and console. Sampled messages still
// reach the file; only console output is thinned.
func (l *Logger) write(level LogLevel, msg string, sampled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.render(level, msg)
	if l.fileLog != nil {
		l.fileLog.Println(line)
	}

	if sampled {
		l.counter++
		if l.counter%l.logEvery != 0 {
			return
		}
	}

	// Errors go to stderr; everything else only at verbose or above.
	if level == LogLevelError {
		l.stderr.Println(line)
	} else if l.level >= LogLevelVerbose {
		l.stdout.Println(line)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogFrame logs the outcome of dissecting one frame. Frames with
// diagnostics are logged at info level, clean frames at verbose.
func (l *Logger) LogFrame(number int, protocol, info string, diagnostics int) {
	if diagnostics > 0 {
		if l.level >= LogLevelInfo {
			l.write(LogLevelInfo, fmt.Sprintf("frame %d: %s %s (%d diagnostics)", number, protocol, info, diagnostics), true)
		}
		return
	}
	if l.level >= LogLevelVerbose {
		l.write(LogLevelVerbose, fmt.Sprintf("frame %d: %s %s", number, protocol, info), true)
	}
}

// LogStartup logs startup information
func (l *Logger) LogStartup(inputs []string, workers, maxDepth int, configPath string) {
	l.Info("Starting tlvscope dissection of %d input(s)", len(inputs))
	for _, in := range inputs {
		l.Verbose("  Input: %s", in)
	}
	l.Verbose("  Workers: %d", workers)
	l.Verbose("  Max depth: %d", maxDepth)
	if configPath != "" {
		l.Verbose("  Config: %s", configPath)
	}
}

// LogHex logs bytes as space separated hex (debug level only)
func (l *Logger) LogHex(label string, data []byte) {
	if l.level < LogLevelDebug {
		return
	}
	var b strings.Builder
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	l.Debug("%s: %s", label, b.String())
}
