package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levels = [...]struct {
	name  string
	color string
}{
	DEBUG: {"DEBUG", "\033[90m"},
	INFO:  {"INFO", "\033[34m"},
	WARN:  {"WARN", "\033[33m"},
	ERROR: {"ERROR", "\033[35m"},
	FATAL: {"FATAL", "\033[31m"},
}

const colorReset = "\033[0m"

func (l LogLevel) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel maps a level name (case-insensitive) to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "WARNING" {
		return WARN, nil
	}
	for l, lv := range levels {
		if lv.name == name {
			return LogLevel(l), nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// Logger writes leveled lines to one writer. It is safe for concurrent use.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	level      LogLevel
	prefix     string
	colorize   bool
	showTime   bool
	timeFormat string
}

type Config struct {
	Level      LogLevel
	Prefix     string
	Colorize   bool
	ShowTime   bool
	TimeFormat string
	Output     io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   true,
		ShowTime:   true,
		TimeFormat: time.DateTime,
		Output:     os.Stderr,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.DateTime
	}
	return &Logger{
		out:        cfg.Output,
		level:      cfg.Level,
		prefix:     cfg.Prefix,
		colorize:   cfg.Colorize,
		showTime:   cfg.ShowTime,
		timeFormat: cfg.TimeFormat,
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the process logger, configured from LOG_LEVEL and NO_COLOR
// on first use.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if level, err := ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
			cfg.Level = level
		}
		if os.Getenv("NO_COLOR") != "" {
			cfg.Colorize = false
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// write formats msg only when args are given, so literal percent signs survive.
func (l *Logger) write(level LogLevel, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	var b strings.Builder
	if l.showTime {
		b.WriteString(time.Now().Format(l.timeFormat))
		b.WriteByte(' ')
	}
	if l.colorize {
		b.WriteString(levels[level].color)
	}
	b.WriteString("[" + levels[level].name + "]")
	if l.colorize {
		b.WriteString(colorReset)
	}
	if l.prefix != "" {
		b.WriteString(" " + l.prefix)
	}
	b.WriteByte(' ')
	if len(args) > 0 {
		fmt.Fprintf(&b, msg, args...)
	} else {
		b.WriteString(msg)
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string) { l.write(DEBUG, msg) }
func (l *Logger) Info(msg string)  { l.write(INFO, msg) }
func (l *Logger) Warn(msg string)  { l.write(WARN, msg) }
func (l *Logger) Error(msg string) { l.write(ERROR, msg) }

func (l *Logger) Debugf(format string, args ...any) { l.write(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.write(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.write(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.write(ERROR, format, args...) }

// Fatalf logs at FATAL level and exits the process.
func (l *Logger) Fatalf(format string, args ...any) { l.write(FATAL, format, args...) }

// SetLevel sets the level of the process logger.
func SetLevel(level LogLevel) { GetLogger().SetLevel(level) }

// Errorf logs through the process logger.
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }
