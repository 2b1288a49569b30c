package transmit

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Log only logs the event. It stands in for a real channel in development.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

// SideChannel marks Log as non-confirming: next to a real transmitter its
// success never counts as delivery.
func (l *Log) SideChannel() bool { return true }

func (l *Log) Send(_ context.Context, ev event.EmergencyEvent) error {
	attrs := []any{"key", ev.Key, "source", ev.Source, "plate", ev.PlateNumber}
	if ev.Location.Known() {
		attrs = append(attrs, "lat", *ev.Location.Lat, "lng", *ev.Location.Lng)
	}
	l.logger.Info("emergency event transmitted", attrs...)
	return nil
}
