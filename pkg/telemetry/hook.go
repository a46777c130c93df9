package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Hook is a logrus.Hook that mirrors every log line into a Reporter's
// bounded log ring buffer (spec §4.H: "a bounded ring buffer of ...
// last N log lines"). Install it once on the worker's root logger:
//
//	logger.AddHook(telemetry.NewHook(reporter, logrus.New().Formatter))
type Hook struct {
	reporter  *Reporter
	formatter logrus.Formatter
}

// NewHook builds a Hook writing through formatter into reporter's log
// ring buffer.
func NewHook(reporter *Reporter, formatter logrus.Formatter) *Hook {
	if formatter == nil {
		formatter = &logrus.TextFormatter{DisableColors: true}
	}
	return &Hook{reporter: reporter, formatter: formatter}
}

// Levels reports that the hook fires for every log level.
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire formats entry and appends it to the reporter's log ring buffer.
func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.reporter.RecordLogLine(string(line))
	return nil
}
