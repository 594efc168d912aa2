package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeyStep      = "step"
	KeyOutcome   = "outcome"
	KeyPath      = "path"
	KeyVersion   = "version"
	KeySource    = "source"
)

// Log is the process-wide logger. Package loggers obtained through L before
// Init runs share it, so they pick up the configured level and format.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init configures the global logger. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
func Init(format, level string, output io.Writer) error {
	if output == nil {
		output = os.Stderr
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	Log.SetOutput(output)
	Log.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ParseLevel maps a config level string onto a logrus level. Trace and panic
// are not exposed.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "fatal":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// L returns a logger tagged with the given component name.
func L(component string) *logrus.Entry {
	return Log.WithField(KeyComponent, component)
}
