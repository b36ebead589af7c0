package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/ridefleet/core/logger"
)

type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)            {}
func (NopLogger) Debugw(string, corelogger.Fields) {}
func (NopLogger) Infof(string, ...any)             {}
func (NopLogger) Warnf(string, ...any)             {}
func (NopLogger) Errorf(string, ...any)            {}

// Options select the process-wide log output.
type Options struct {
	Level string
	// Format is "json" or "console". Empty follows APP_ENV.
	Format string
	// File, when set, receives the logs instead of stdout and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	outMu  sync.RWMutex
	output io.Writer
)

// Configure applies o to every logger created afterwards by New. The
// returned func closes the log file, if any.
func Configure(o Options) (func() error, error) {
	if err := setGlobalLevel(o.Level); err != nil {
		return nil, err
	}
	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
		}
		w, closeFn = lj, lj.Close
	}
	switch strings.ToLower(o.Format) {
	case "":
		if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: o.File != ""}
	default:
		_ = closeFn()
		return nil, fmt.Errorf("log format %q", o.Format)
	}
	outMu.Lock()
	output = w
	outMu.Unlock()
	return closeFn, nil
}

// New returns a Logger tagged with component. Before Configure it writes
// JSON to stdout, or console text when APP_ENV=dev.
func New(component string) Logger {
	outMu.RLock()
	w := output
	outMu.RUnlock()
	if w == nil {
		return NewZerologLogger(component)
	}
	return NewWithWriter(component, w)
}

// SetLevel sets the process-wide minimum level ("debug", "info", "warn",
// "error"). An empty level leaves the current one in place.
func SetLevel(level string) error {
	return setGlobalLevel(level)
}
