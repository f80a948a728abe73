// Package chefog configures process-wide structured logging.
//
// Every daemon and CLI entry point calls [Configure] once at startup:
// level from flags, pretty formatting to a TTY, a named component field
// on every line.
package chefog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls the process logger.
type Options struct {
	Component string // Group name attached to every log line (e.g. "bake", "cvd", "served").
	Debug     bool
	Quiet     bool
	Verbose   bool
}

// Configure installs the process-wide logger according to opts and returns
// it. Subsequent calls replace the previous configuration.
func Configure(opts Options) *logrus.Entry {
	logger := logrus.StandardLogger()

	logger.SetOutput(os.Stderr)
	logger.SetLevel(level(opts))

	formatter := &logrus.TextFormatter{
		DisableColors:    !isatty(os.Stderr),
		FullTimestamp:    opts.Verbose,
		DisableTimestamp: !opts.Verbose,
	}
	logger.SetFormatter(formatter)

	return logger.WithField("component", opts.Component)
}

// level derives the effective log level: debug wins, then quiet, then
// the default info level.
func level(opts Options) logrus.Level {
	switch {
	case opts.Debug:
		return logrus.DebugLevel
	case opts.Quiet:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// isatty reports whether f is attached to an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
