package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process logger and the sinks behind it
type Logger struct {
	logger zerolog.Logger
	file   *RotatingWriter
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path, empty disables file output
	Console   bool
	Pretty    bool
	Redaction bool
	MaxSize   int // MB before rotation
	MaxAge    int // days rotated files are kept
	Compress  bool

	// Output overrides the console sink, used by tests
	Output io.Writer
}

// New builds the process logger and installs it as the zerolog global
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var out io.Writer = os.Stderr
		if cfg.Output != nil {
			out = cfg.Output
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		writers = append(writers, out)
	}

	var file *RotatingWriter
	if cfg.File != "" {
		file, err = NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("service", "conclave").
		Logger()

	log.Logger = logger

	return &Logger{logger: logger, file: file}, nil
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
