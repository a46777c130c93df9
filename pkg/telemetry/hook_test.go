package telemetry

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestHook_FireAppendsToLogRing(t *testing.T) {
	reporter := NewReporter(0, 10)
	logger := logrus.New()
	logger.AddHook(NewHook(reporter, logger.Formatter))

	logger.Info("first line")
	logger.Warn("second line")

	lines := reporter.LogLines()
	if len(lines) != 2 {
		t.Fatalf("LogLines() = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "first line") || !strings.Contains(lines[1], "second line") {
		t.Errorf("LogLines() = %v", lines)
	}
}

func TestHook_LevelsCoversAll(t *testing.T) {
	h := NewHook(NewReporter(0, 0), nil)
	levels := h.Levels()
	if len(levels) != len(logrus.AllLevels) {
		t.Errorf("Levels() = %d entries, want %d", len(levels), len(logrus.AllLevels))
	}
}
