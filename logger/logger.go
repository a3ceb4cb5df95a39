package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
)

// MaxLogLines is the default number of lines kept in the log file
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = map[LogLevel]string{
	LogLevelTrace: "TRACE",
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLogLevel maps a config string to a level. Unknown names mean info.
func ParseLogLevel(s string) LogLevel {
	s = strings.ToUpper(s)
	if s == "WARNING" {
		return LogLevelWarn
	}
	for level, name := range levelNames {
		if name == s {
			return level
		}
	}
	return LogLevelInfo
}

// LimitedLogger writes leveled lines to a file capped at a line limit. Lines
// trimmed on rotation go to a brotli-compressed archive when one is set.
// The level may change while the daemon runs.
type LimitedLogger struct {
	level atomic.Int32

	mutex       sync.Mutex
	file        *os.File
	lineCount   int
	maxLines    int
	archivePath string
}

// globalLogger is set by NewLimitedLogger
var globalLogger *LimitedLogger

// stderrLogger is used until a file logger exists
var stderrLogger = newStderrLogger()

func newStderrLogger() *LimitedLogger {
	ll := &LimitedLogger{file: os.Stderr}
	ll.level.Store(int32(LogLevelInfo))
	return ll
}

func current() *LimitedLogger {
	if globalLogger != nil {
		return globalLogger
	}
	return stderrLogger
}

// NewLimitedLogger wraps an append-mode file and makes it the global logger.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	ll := &LimitedLogger{file: file, maxLines: MaxLogLines}
	ll.level.Store(int32(level))
	ll.lineCount = countLines(file)
	globalLogger = ll
	return ll
}

func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.level.Store(int32(level))
}

// SetMaxLines changes the rotation threshold. n <= 0 restores MaxLogLines.
func (ll *LimitedLogger) SetMaxLines(n int) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()
	if n <= 0 {
		n = MaxLogLines
	}
	ll.maxLines = n
}

// SetArchivePath sets where rotation stores trimmed lines. Each rotation
// replaces the previous archive. Empty disables archiving.
func (ll *LimitedLogger) SetArchivePath(path string) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()
	ll.archivePath = path
}

// SetGlobalLevel changes the level of the global logger, if any
func SetGlobalLevel(level LogLevel) {
	if globalLogger != nil {
		globalLogger.SetLevel(level)
	}
}

func (ll *LimitedLogger) enabled(level LogLevel) bool {
	return level >= LogLevel(ll.level.Load())
}

// logf goes through Write so every line counts toward rotation
func (ll *LimitedLogger) logf(level LogLevel, format string, v ...any) {
	if !ll.enabled(level) {
		return
	}
	fmt.Fprintf(ll, "%s [%s] %s\n", time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
}

func (ll *LimitedLogger) Debug(format string, v ...any) { ll.logf(LogLevelDebug, format, v...) }
func (ll *LimitedLogger) Info(format string, v ...any)  { ll.logf(LogLevelInfo, format, v...) }
func (ll *LimitedLogger) Warn(format string, v ...any)  { ll.logf(LogLevelWarn, format, v...) }
func (ll *LimitedLogger) Error(format string, v ...any) { ll.logf(LogLevelError, format, v...) }

// Fatal logs at error level and exits with code 1
func (ll *LimitedLogger) Fatal(format string, v ...any) {
	ll.logf(LogLevelError, format, v...)
	os.Exit(1)
}

func Debug(format string, v ...any) { current().Debug(format, v...) }
func Info(format string, v ...any)  { current().Info(format, v...) }
func Warn(format string, v ...any)  { current().Warn(format, v...) }
func Error(format string, v ...any) { current().Error(format, v...) }
func Fatal(format string, v ...any) { current().Fatal(format, v...) }

var noopFunc = func() {}

// Trace returns a function that logs the time since Trace was called.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	ll := current()
	if !ll.enabled(LogLevelTrace) {
		return noopFunc
	}
	start := time.Now()
	return func() {
		ll.logf(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// countLines counts the lines already in f and leaves the offset at the end
func countLines(f *os.File) int {
	f.Seek(0, io.SeekStart)
	defer f.Seek(0, io.SeekEnd)

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count
}

// Write implements io.Writer. log.SetOutput points here as well.
func (ll *LimitedLogger) Write(p []byte) (int, error) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()

	n, err := ll.file.Write(p)
	if err != nil {
		return n, err
	}

	ll.lineCount += strings.Count(string(p), "\n")
	if ll.maxLines > 0 && ll.lineCount > ll.maxLines {
		ll.rotate()
	}
	return n, nil
}

// rotate keeps the newest maxLines lines and archives the rest
func (ll *LimitedLogger) rotate() {
	ll.file.Seek(0, io.SeekStart)
	var lines []string
	scanner := bufio.NewScanner(ll.file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) > ll.maxLines {
		cut := len(lines) - ll.maxLines
		if ll.archivePath != "" {
			if err := writeArchive(ll.archivePath, lines[:cut]); err != nil {
				fmt.Fprintf(os.Stderr, "log archive: %v\n", err)
			}
		}
		lines = lines[cut:]
	}

	ll.file.Truncate(0)
	ll.file.Seek(0, io.SeekStart)
	w := bufio.NewWriter(ll.file)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.Flush()

	ll.lineCount = len(lines)
}

// writeArchive replaces path with a brotli stream of lines
func writeArchive(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := brotli.NewWriterLevel(f, brotli.BestSpeed)
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// Close closes the underlying file
func (ll *LimitedLogger) Close() error {
	return ll.file.Close()
}
