package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`
}

var (
	mu     sync.RWMutex
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// New builds a logger on stdout.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds a logger on w, wrapped in a console writer when
// cfg.Pretty is set.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str(FieldService, cfg.ServiceName)
	}
	return ctx.Logger()
}

// Init replaces the global logger and routes the stdlib logger through it,
// so stray log.Printf calls from dependencies come out structured.
func Init(cfg Config) zerolog.Logger {
	logger := New(cfg)

	mu.Lock()
	global = logger
	mu.Unlock()

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str("source", "stdlog").Logger())
	return logger
}

// L returns the global logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
