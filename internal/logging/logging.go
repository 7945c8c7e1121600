// Package logging builds the leveled loggers used across the viewer. They are
// gommon loggers, the same type echo uses for e.Logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} [${prefix}]"

var (
	defaultOnce   sync.Once
	defaultLogger *log.Logger
)

// New creates a logger with the given prefix and level name.
func New(prefix, level string) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetLevel(lvl)
	return l, nil
}

// Default returns the shared "eqmap" logger at info level.
func Default() *log.Logger {
	defaultOnce.Do(func() {
		defaultLogger = log.New("eqmap")
		defaultLogger.SetHeader(header)
		defaultLogger.SetLevel(log.INFO)
	})
	return defaultLogger
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *log.Logger {
	l := log.New("discard")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}

// ParseLevel maps a config level name to a gommon level. Empty means info.
func ParseLevel(level string) (log.Lvl, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off", "none":
		return log.OFF, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
