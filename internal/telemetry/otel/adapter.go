package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"passwordless-auth/backend/internal/events"
)

// recordEmitter is the subset of otellog.Logger used by the event adapter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an events.Emitter that writes events as OTel log records through provider.
// A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) events.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("passwordless.account-events")}
}

// NewEventEmitterWithLogger is NewEventEmitter over an arbitrary record sink.
func NewEventEmitterWithLogger(l recordEmitter) events.Emitter {
	return &otelEmitter{logger: l}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *events.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit maps identifiers to attributes and the attribute map to a JSON body.
func (e *otelEmitter) Emit(ctx context.Context, event *events.Event) error {
	if event == nil {
		return nil
	}
	var rec otellog.Record
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	if len(event.Attributes) > 0 {
		body, err := json.Marshal(event.Attributes)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	for _, kv := range []struct{ k, v string }{
		{"event_id", event.ID},
		{"event_type", event.Type},
		{"user_id", event.UserID},
		{"email", event.Email},
		{"actor_id", event.ActorID},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
