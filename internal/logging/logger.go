// Package logging provides structured logging for Knowbase Core.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger with the given level and format.
// Format is "json" or "text". Init is safe to call more than once; only
// the first call takes effect.
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		global = newLogger(os.Stdout, level, format, &initErr)
	})
	return initErr
}

// Get returns the global logger, initializing it with defaults if
// needed.
func Get() *logrus.Logger {
	if global == nil {
		_ = Init("info", "text")
	}
	return global
}

// New creates an independent logger, used by tests to capture output.
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	var err error
	log := newLogger(out, level, format, &err)
	return log, err
}

func newLogger(out io.Writer, level, format string, initErr *error) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		*initErr = fmt.Errorf("invalid log level %q: %w", level, err)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		*initErr = fmt.Errorf("invalid log format %q", format)
	}

	return log
}
