package sink

import (
	"context"
	"log/slog"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// LogSink writes statuses and batch summaries to slog.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) PublishStatus(ctx context.Context, e models.StatusEvent) error {
	level := slog.LevelInfo
	switch e.Kind {
	case models.StatusFetching:
		level = slog.LevelDebug
	case models.StatusWarning, models.StatusBackoff:
		level = slog.LevelWarn
	case models.StatusFatal:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, e.Text(), "status", string(e.Kind))
	return nil
}

func (s *LogSink) PublishBatch(ctx context.Context, b models.Batch) error {
	s.logger.InfoContext(ctx, "Live matches updated",
		"matches", len(b.Records),
		"changed", len(b.Changes),
		"fingerprint", b.Fingerprint)

	for _, r := range b.Records {
		delta, ok := b.Changes[r.Key()]
		if !ok {
			continue
		}
		s.logger.DebugContext(ctx, "Match changed",
			"match", r.Key().String(),
			"league", r.League,
			"score", r.HomeScore+"-"+r.AwayScore,
			"time", r.MatchTime,
			"new", delta.New,
			"fields", delta.Fields)
	}
	return nil
}
