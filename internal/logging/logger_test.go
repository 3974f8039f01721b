package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"INFO":   logrus.InfoLevel,
		"debug":  logrus.DebugLevel,
		" WARN ": logrus.WarnLevel,
		"error":  logrus.ErrorLevel,
		"":       logrus.InfoLevel,
		"chatty": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBootstrapVerbose(t *testing.T) {
	old := Log
	t.Cleanup(func() { Log = old })

	Bootstrap("ERROR", false)
	if Log.GetLevel() != logrus.ErrorLevel {
		t.Errorf("expected error level, got %v", Log.GetLevel())
	}

	Bootstrap("ERROR", true)
	if Log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected verbose to force debug, got %v", Log.GetLevel())
	}
	if !Log.ReportCaller {
		t.Error("expected caller reporting in verbose mode")
	}
}
