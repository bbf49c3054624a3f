// Package logger implements the process-wide console+file logger:
// every message mirrors to stdout and to the run's operation.log, the
// file sink seeing everything and the console seeing only what the
// configured verbosity allows.
//
// One Logger is instantiated per run, rather than a package-level
// singleton, so concurrent runs in the same process don't share a log
// file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level lists supported log severities.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

// LevelForVerbosity maps the config.LogConfig.Verbosity grammar
// ("quiet", "normal", "verbose") onto the console's minimum level.
// The file sink always receives every level regardless of verbosity.
func LevelForVerbosity(verbosity string) Level {
	switch verbosity {
	case "quiet":
		return Warn
	case "verbose":
		return Debug
	default:
		return Info
	}
}

// Logger writes every entry to a backing file and mirrors entries at
// or above consoleLevel to stdout.
type Logger struct {
	mu           sync.Mutex
	file         *os.File
	fileLog      *log.Logger
	console      *log.Logger
	consoleLevel Level
}

// New opens "operation.log" under dir (creating dir if needed) and
// returns a Logger whose console mirror is gated at consoleLevel.
func New(dir string, consoleLevel Level) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("logger: create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, "operation.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return &Logger{
		file:         f,
		fileLog:      log.New(f, "", 0),
		console:      log.New(os.Stdout, "", 0),
		consoleLevel: consoleLevel,
	}, nil
}

// Close closes the backing file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Writer exposes the backing file for collaborators that want to
// write raw lines (e.g. a third-party library's own logger adapter).
func (l *Logger) Writer() io.Writer {
	return l.file
}

func (l *Logger) emit(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s [%s] %s", time.Now().Format("2006-01-02 15:04:05"), levelNames[level], fmt.Sprintf(format, args...))
	l.fileLog.Println(line)
	if level >= l.consoleLevel {
		l.console.Println(line)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.emit(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.emit(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.emit(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.emit(Error, format, args...) }
