package confirm

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/audit"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *audit.MemorySink, *fakeClock) {
	t.Helper()
	logger := platformtesting.SetupTestLogger(t)
	sink := audit.NewMemorySink()
	emitter := audit.NewEmitter(sink, logger)
	m := NewManager("s1", 5*time.Second, emitter, nil, logger)
	clock := newFakeClock()
	m.SetClock(clock.Now)
	return m, sink, clock
}

func auditTypes(sink *audit.MemorySink) []string {
	var out []string
	for _, e := range sink.Events() {
		out = append(out, e.Type)
	}
	return out
}

func TestResolveAffirmativeWithinDeadline(t *testing.T) {
	m, sink, clock := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindLabOrder, Summary: "order CBC stat"})
	clock.Advance(2 * time.Second)

	if got := m.Resolve(ctx, p.ID, true); got != StatusConfirmed {
		t.Fatalf("Resolve() = %s, want confirmed", got)
	}

	types := auditTypes(sink)
	if len(types) != 2 || types[1] != audit.TypeConfirmationGranted {
		t.Fatalf("unexpected audit trail: %v", types)
	}
}

func TestResolveNegative(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindMedicationRefill, Summary: "refill lisinopril"})
	if got := m.Resolve(ctx, p.ID, false); got != StatusDenied {
		t.Fatalf("Resolve() = %s, want denied", got)
	}
}

// The deadline check runs before the classification is even looked at.
func TestLateAffirmativeExpires(t *testing.T) {
	m, sink, clock := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindMedicationRefill, Summary: "refill metformin"})
	clock.Advance(5001 * time.Millisecond)

	if got := m.Resolve(ctx, p.ID, true); got != StatusExpired {
		t.Fatalf("Resolve() after deadline = %s, want expired", got)
	}

	types := auditTypes(sink)
	if types[len(types)-1] != audit.TypeConfirmationExpired {
		t.Fatalf("expected CONFIRMATION_EXPIRED, got %v", types)
	}
}

func TestExpireBeforeDeadlineIsNoop(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindLabOrder, Summary: "order BMP"})
	clock.Advance(4 * time.Second)

	if got := m.Expire(ctx, p.ID); got != StatusPending {
		t.Fatalf("Expire() before deadline = %s, want pending", got)
	}
	clock.Advance(2 * time.Second)
	if got := m.Expire(ctx, p.ID); got != StatusExpired {
		t.Fatalf("Expire() after deadline = %s, want expired", got)
	}
}

// Resolving a terminal confirmation again changes nothing and emits no
// duplicate audit event.
func TestTerminalStatusIsIdempotent(t *testing.T) {
	m, sink, _ := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindLabOrder, Summary: "order CMP"})
	if got := m.Resolve(ctx, p.ID, false); got != StatusDenied {
		t.Fatalf("first Resolve() = %s", got)
	}
	before := len(sink.Events())

	if got := m.Resolve(ctx, p.ID, true); got != StatusDenied {
		t.Fatalf("second Resolve() = %s, want denied unchanged", got)
	}
	if got := m.Expire(ctx, p.ID); got != StatusDenied {
		t.Fatalf("Expire() on terminal = %s, want denied unchanged", got)
	}
	if len(sink.Events()) != before {
		t.Fatalf("duplicate audit events emitted: %v", auditTypes(sink))
	}
}

func TestCancelAllExpiresWithReason(t *testing.T) {
	m, sink, _ := newTestManager(t)
	ctx := context.Background()

	a := m.Request(ctx, action.Payload{Kind: action.KindLabOrder, Summary: "order CBC"})
	b := m.Request(ctx, action.Payload{Kind: action.KindAudioOverride, Summary: "read phi aloud"})

	m.CancelAll(ctx, "session_terminated")

	for _, id := range []string{a.ID, b.ID} {
		p, ok := m.Get(id)
		if !ok {
			t.Fatalf("confirmation %s dropped", id)
		}
		if p.Status != StatusExpired || p.Reason != "session_terminated" {
			t.Fatalf("confirmation %s = %s/%s, want expired/session_terminated", id, p.Status, p.Reason)
		}
	}

	var expiredCount int
	for _, e := range sink.Events() {
		if e.Type == audit.TypeConfirmationExpired {
			expiredCount++
			if e.Payload["reason"] != "session_terminated" {
				t.Errorf("expected session_terminated reason, got %v", e.Payload["reason"])
			}
		}
	}
	if expiredCount != 2 {
		t.Fatalf("expected 2 expiry events, got %d", expiredCount)
	}
}

func TestHasConfirmedAndConsumeKind(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	p := m.Request(ctx, action.Payload{Kind: action.KindAudioOverride, Summary: "read phi aloud"})
	if m.HasConfirmed(action.KindAudioOverride) {
		t.Fatal("override confirmed before resolution")
	}
	m.Resolve(ctx, p.ID, true)
	if !m.HasConfirmed(action.KindAudioOverride) {
		t.Fatal("confirmed override not visible")
	}

	m.ConsumeKind(action.KindAudioOverride)
	if m.HasConfirmed(action.KindAudioOverride) {
		t.Fatal("override survived turn boundary")
	}
}
