package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	once         sync.Once
	mu           sync.RWMutex
)

// GetLogger returns the process logger. Until New is called it is an info level console logger.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		mu.Lock()
		globalLogger = zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		mu.Unlock()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// New builds a logger for the configured level and format ("json" or "console")
// and installs it as the process logger.
func New(level, format string) (zerolog.Logger, error) {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var base zerolog.Logger
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = zerolog.New(out)
	case "console", "":
		base = zerolog.New(consoleWriter(out))
	default:
		return zerolog.Logger{}, fmt.Errorf("unsupported log format %q", format)
	}

	GetLogger()
	zerolog.SetGlobalLevel(lvl)

	mu.Lock()
	globalLogger = base.With().Timestamp().Logger().Level(lvl)
	logger := globalLogger
	mu.Unlock()

	return logger, nil
}

// Component returns the process logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}
