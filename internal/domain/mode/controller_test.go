package mode

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinivoice-server-go/internal/domain/audit"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestController(t *testing.T) (*Controller, *audit.MemorySink, *fakeClock) {
	t.Helper()
	logger := platformtesting.SetupTestLogger(t)
	sink := audit.NewMemorySink()
	emitter := audit.NewEmitter(sink, logger)
	c := NewController("s1", 5*time.Minute, emitter, nil, logger)
	clock := &fakeClock{now: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)}
	c.SetClock(clock.Now)
	return c, sink, clock
}

func TestDefaultModeIsPatient(t *testing.T) {
	c, _, _ := newTestController(t)
	if c.Current() != ModePatient {
		t.Fatalf("default mode = %s, want patient", c.Current())
	}
}

func TestActivateProviderSetsExpiry(t *testing.T) {
	c, sink, clock := newTestController(t)
	ctx := context.Background()

	expires := c.ActivateProvider(ctx)
	if c.Current() != ModeProvider {
		t.Fatalf("mode = %s, want provider", c.Current())
	}
	want := clock.Now().Add(5 * time.Minute)
	if !expires.Equal(want) {
		t.Fatalf("expiry = %s, want %s", expires, want)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Type != audit.TypeModeSwitch {
		t.Fatalf("expected one MODE_SWITCH event, got %+v", events)
	}
	if events[0].Payload["reason"] != ReasonExplicit {
		t.Errorf("reason = %v, want explicit", events[0].Payload["reason"])
	}
}

func TestCheckExpiryAutoReverts(t *testing.T) {
	c, sink, clock := newTestController(t)
	ctx := context.Background()

	c.ActivateProvider(ctx)

	clock.Advance(4 * time.Minute)
	if c.CheckExpiry(ctx) {
		t.Fatal("reverted before ttl elapsed")
	}
	if c.Current() != ModeProvider {
		t.Fatalf("mode = %s, want provider", c.Current())
	}

	clock.Advance(2 * time.Minute)
	if !c.CheckExpiry(ctx) {
		t.Fatal("expected auto-revert at turn boundary")
	}
	if c.Current() != ModePatient {
		t.Fatalf("mode = %s, want patient", c.Current())
	}

	events := sink.Events()
	last := events[len(events)-1]
	if last.Type != audit.TypeModeSwitch || last.Payload["reason"] != ReasonAutoExpiry {
		t.Fatalf("expected MODE_SWITCH auto_expiry, got %+v", last)
	}
}

func TestExplicitRevert(t *testing.T) {
	c, sink, _ := newTestController(t)
	ctx := context.Background()

	c.ActivateProvider(ctx)
	c.RevertToPatient(ctx, ReasonExplicit)

	if c.Current() != ModePatient {
		t.Fatalf("mode = %s, want patient", c.Current())
	}
	if !c.ExpiresAt().IsZero() {
		t.Fatal("expiry not cleared on revert")
	}

	// reverting while already patient emits nothing further
	before := len(sink.Events())
	c.RevertToPatient(ctx, ReasonExplicit)
	if len(sink.Events()) != before {
		t.Fatal("duplicate MODE_SWITCH emitted for no-op revert")
	}
}
