package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogEmitter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	em := NewLogEmitter(zap.New(core))

	ev := New(TypeUserRoleChanged, "u1", "a@b.com", time.Now()).With("role", "moderator")
	if err := em.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Fatalf("Emit(nil): %v", err)
	}
	entries := logs.FilterMessage("account event").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["event_type"]; got != TypeUserRoleChanged {
		t.Errorf("event_type = %v", got)
	}
}
