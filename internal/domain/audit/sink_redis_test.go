package audit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"clinivoice-server-go/internal/platform/config"
)

func TestRedisSinkAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)

	sink, err := NewRedisSink(config.AuditRedisSink{
		Addr:   mr.Addr(),
		Stream: "test:audit",
	}, nil)
	if err != nil {
		t.Fatalf("NewRedisSink() error: %v", err)
	}
	defer sink.Close()

	emitter := NewEmitter(sink, nil)
	ctx := context.Background()

	events := []Event{
		{SessionID: "s1", Type: TypeConfirmationGranted, Mode: "patient"},
		{SessionID: "s1", Type: TypeModeSwitch, Mode: "provider"},
	}
	for _, ev := range events {
		if err := emitter.Emit(ctx, ev); err != nil {
			t.Fatalf("Emit() error: %v", err)
		}
	}

	entries, err := mr.Stream("test:audit")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 stream entries, got %d", len(entries))
	}

	first := streamValues(t, entries[0].Values)
	if first["type"] != TypeConfirmationGranted {
		t.Errorf("expected first entry type %s, got %s", TypeConfirmationGranted, first["type"])
	}
	second := streamValues(t, entries[1].Values)
	if second["type"] != TypeModeSwitch {
		t.Errorf("expected second entry type %s, got %s", TypeModeSwitch, second["type"])
	}
}

func streamValues(t *testing.T, kv []string) map[string]string {
	t.Helper()
	if len(kv)%2 != 0 {
		t.Fatalf("odd stream entry: %v", kv)
	}
	out := make(map[string]string, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
