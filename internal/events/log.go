package events

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter writes each event to a zap logger. cmd/worker uses it when no OTLP collector is configured.
type LogEmitter struct {
	log *zap.Logger
}

// NewLogEmitter returns a LogEmitter. A nil log discards events.
func NewLogEmitter(log *zap.Logger) *LogEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	e.log.Info("account event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("user_id", event.UserID),
		zap.String("actor_id", event.ActorID),
		zap.Any("attributes", event.Attributes),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
