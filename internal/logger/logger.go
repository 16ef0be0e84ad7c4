// Package logger sets up zerolog with console output, a rotating
// all_logs.txt, an in-memory ring of recent lines for the /logs endpoint,
// and a per-run log file that the engine truncates at run start.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // all_logs.txt location; empty disables file output
	MaxSizeMB  int    // max size in MB before rotation (default: 10)
	MaxBackups int    // max number of old log files to keep (default: 5)
	MaxAgeDays int    // max age in days to keep old files (default: 30)
	Compress   bool
	RingSize   int // recent lines kept in memory (default: 2000)
}

// Logger wraps zerolog plus the recent-line ring and the run log.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
	ring    *RingBuffer[string]
	runLog  *RunLog

	bcastMu sync.RWMutex
	bcast   func(line string)
}

// IsDevBuild reports whether the binary runs via "go run".
func IsDevBuild() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	return strings.Contains(exe, "go-build")
}

// New creates a new logger instance.
func New(cfg Config) *Logger {
	var consoleOutput io.Writer
	if cfg.Format == "json" {
		consoleOutput = os.Stdout
	} else {
		consoleOutput = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	level := parseLevel(cfg.Level)
	if IsDevBuild() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	ringSize := cfg.RingSize
	if ringSize <= 0 {
		ringSize = 2000
	}

	l := &Logger{
		ring:   NewRingBuffer[string](ringSize),
		runLog: NewRunLog(""),
	}

	var output io.Writer = consoleOutput
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err == nil {
			maxSize := cfg.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 10
			}
			maxBackups := cfg.MaxBackups
			if maxBackups <= 0 {
				maxBackups = 5
			}
			maxAge := cfg.MaxAgeDays
			if maxAge <= 0 {
				maxAge = 30
			}
			l.rotator = &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    maxSize,
				MaxBackups: maxBackups,
				MaxAge:     maxAge,
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			output = io.MultiWriter(consoleOutput, l.rotator)
		}
	}

	// The tap mirrors every rendered line into the ring and the run log.
	output = io.MultiWriter(output, &lineTap{logger: l})

	l.Logger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return l
}

// SetBroadcast installs a hook receiving every rendered line, used to mirror
// logs onto the websocket hub. The hook must not log.
func (l *Logger) SetBroadcast(fn func(line string)) {
	l.bcastMu.Lock()
	l.bcast = fn
	l.bcastMu.Unlock()
}

// SetRunLogPath points the run log at last_run.txt under the data folder.
func (l *Logger) SetRunLogPath(path string) {
	l.runLog.SetPath(path)
}

// RunLog returns the per-run log.
func (l *Logger) RunLog() *RunLog {
	return l.runLog
}

// RecentLines returns up to n of the most recent rendered log lines.
func (l *Logger) RecentLines(n int) []string {
	lines := l.ring.GetAll()
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// WithComponent returns a sub-logger carrying a component field.
func (l *Logger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

// lineTap feeds rendered log lines into the ring buffer and the run log.
type lineTap struct {
	logger *Logger
}

func (t *lineTap) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		t.logger.ring.Push(line)
		t.logger.runLog.Append(line)
		t.logger.bcastMu.RLock()
		fn := t.logger.bcast
		t.logger.bcastMu.RUnlock()
		if fn != nil {
			fn(line)
		}
	}
	return len(p), nil
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
