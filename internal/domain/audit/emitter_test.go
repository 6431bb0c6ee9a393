package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clinivoice-server-go/internal/platform/config"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Write(ctx context.Context, event Event) error {
	s.calls++
	return errors.New("disk gone")
}

func (s *failingSink) Close() error { return nil }

func TestEmitterAssignsSequenceInOrder(t *testing.T) {
	sink := NewMemorySink()
	emitter := NewEmitter(sink, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := emitter.Emit(ctx, Event{SessionID: "s1", Type: TypeModeSwitch}); err != nil {
			t.Fatalf("Emit() error: %v", err)
		}
	}

	events := sink.Events()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d: expected seq %d, got %d", i, i+1, ev.Seq)
		}
		if ev.ID == "" {
			t.Errorf("event %d: missing id", i)
		}
		if ev.At.IsZero() {
			t.Errorf("event %d: missing timestamp", i)
		}
	}
}

func TestEmitterRedactsPayload(t *testing.T) {
	sink := NewMemorySink()
	emitter := NewEmitter(sink, nil)

	err := emitter.Emit(context.Background(), Event{
		SessionID: "s1",
		Type:      TypePHIBlocked,
		Payload: map[string]interface{}{
			"detail": "patient SSN 123-45-6789 on file",
			"count":  2,
		},
	})
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	got := sink.Events()[0].Payload["detail"].(string)
	if strings.Contains(got, "123-45-6789") {
		t.Errorf("payload not redacted: %q", got)
	}
	if !strings.Contains(got, "[SSN]") {
		t.Errorf("expected [SSN] tag, got %q", got)
	}
	if sink.Events()[0].Payload["count"] != 2 {
		t.Errorf("non-string payload value altered")
	}
}

func TestEmitterSinkFailureIsOperational(t *testing.T) {
	sink := &failingSink{}
	emitter := NewEmitter(sink, nil)

	ctx := context.Background()
	if err := emitter.Emit(ctx, Event{SessionID: "s1", Type: TypeDuplexConflict}); err == nil {
		t.Fatal("expected sink error")
	}

	select {
	case err := <-emitter.Errs():
		if err == nil {
			t.Fatal("expected error on channel")
		}
	default:
		t.Fatal("expected sink failure on Errs channel")
	}

	// the emitter keeps accepting events after a failure
	if err := emitter.Emit(ctx, Event{SessionID: "s1", Type: TypeModeSwitch}); err == nil {
		t.Fatal("expected second sink error")
	}
	if sink.calls != 2 {
		t.Errorf("expected 2 sink calls, got %d", sink.calls)
	}
}

func TestEmitterFanoutWritesEverySink(t *testing.T) {
	first := NewMemorySink()
	second := NewMemorySink()
	emitter := NewEmitter(NewFanoutSink(first, second), nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := emitter.Emit(ctx, Event{SessionID: "s1", Type: TypePHIBlocked}); err != nil {
			t.Fatalf("Emit() error: %v", err)
		}
	}

	for name, sink := range map[string]*MemorySink{"first": first, "second": second} {
		events := sink.Events()
		if len(events) != 3 {
			t.Fatalf("%s sink: expected 3 events, got %d", name, len(events))
		}
		for i, ev := range events {
			if ev.Seq != uint64(i+1) {
				t.Errorf("%s sink event %d: expected seq %d, got %d", name, i, i+1, ev.Seq)
			}
		}
	}
}

func TestFanoutReportsChildFailureButKeepsWriting(t *testing.T) {
	failing := &failingSink{}
	healthy := NewMemorySink()
	fanout := NewFanoutSink(failing, healthy)

	err := fanout.Write(context.Background(), Event{SessionID: "s1", Type: TypeModeSwitch})
	if err == nil {
		t.Fatal("expected the child failure to surface")
	}
	if len(healthy.Events()) != 1 {
		t.Fatalf("healthy sink should still receive the event, got %d", len(healthy.Events()))
	}
	if failing.calls != 1 {
		t.Fatalf("failing sink should have been attempted once, got %d", failing.calls)
	}
}

func TestNewSinkCompositeBuildsFanout(t *testing.T) {
	cfg := config.AuditConfig{Sink: "memory,memory"}
	sink, err := NewSink(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewSink() error: %v", err)
	}
	defer sink.Close()

	if _, ok := sink.(*FanoutSink); !ok {
		t.Fatalf("expected a fanout sink, got %T", sink)
	}
}

func TestNewSinkRejectsUnknownComponent(t *testing.T) {
	cfg := config.AuditConfig{Sink: "memory,carrier-pigeon"}
	if _, err := NewSink(cfg, nil, nil); err == nil {
		t.Fatal("expected error for unknown sink name")
	}
}
