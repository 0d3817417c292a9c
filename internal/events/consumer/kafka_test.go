package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"passwordless-auth/backend/internal/events"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	errs   []error
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
	got    chan struct{}
}

func (s *captureSink) Emit(ctx context.Context, ev *events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func encode(t *testing.T, ev *events.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestRun_ForwardsEventsAndSkipsMalformed(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := events.New(events.TypeUserBanned, "u1", "a@b.com", at).With("reason", "spam")
	reader := &fakeReader{
		errs: []error{errors.New("broker unavailable")},
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte("not json")},
			{Offset: 2, Value: []byte(`{"id":"x"}`)},
			{Offset: 3, Value: encode(t, ev)},
		},
	}
	sink := &captureSink{got: make(chan struct{}, 4), err: errors.New("collector down")}
	core, logs := observer.New(zap.WarnLevel)
	c := newConsumer(reader, sink, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 {
		t.Fatalf("forwarded %d events, want 1", len(sink.events))
	}
	got := sink.events[0]
	if got.ID != ev.ID || got.Type != events.TypeUserBanned || got.Attributes["reason"] != "spam" || !got.OccurredAt.Equal(at) {
		t.Errorf("event = %+v", got)
	}
	if n := logs.FilterMessage("skipping malformed event").Len(); n != 2 {
		t.Errorf("malformed warnings = %d, want 2", n)
	}
	if logs.FilterMessage("kafka read failed").Len() != 1 {
		t.Error("read error not logged")
	}
	if logs.FilterMessage("event sink failed").Len() != 1 {
		t.Error("sink error not logged")
	}
}

func TestClose(t *testing.T) {
	reader := &fakeReader{}
	c := newConsumer(reader, events.NewLogEmitter(nil), nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}
