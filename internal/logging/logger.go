package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before Bootstrap is called.
var Log = logrus.New()

// Bootstrap configures Log with the given level name (e.g. "INFO", "debug").
// Unknown levels fall back to info.
func Bootstrap(level string, verbose bool) {
	Log = &logrus.Logger{
		Out: os.Stderr,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		},
		Hooks:    make(logrus.LevelHooks),
		Level:    ParseLevel(level),
		ExitFunc: os.Exit,
	}
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetReportCaller(true)
	}
}

// ParseLevel maps a config level name onto a logrus level.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
