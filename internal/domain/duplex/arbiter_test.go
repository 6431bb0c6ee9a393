package duplex

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/platform/config"
	platformerrors "clinivoice-server-go/internal/platform/errors"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

func newTestArbiter(t *testing.T, policy config.PolicyConfig) (*Arbiter, *audit.MemorySink) {
	t.Helper()
	logger := platformtesting.SetupTestLogger(t)
	sink := audit.NewMemorySink()
	emitter := audit.NewEmitter(sink, logger)
	bus := eventbus.New()
	return NewArbiter("s1", nil, policy, bus, emitter, logger), sink
}

func TestPressReleaseCycle(t *testing.T) {
	arb, _ := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	opened, err := arb.PressTalk(ctx)
	if err != nil || !opened {
		t.Fatalf("PressTalk() = %v, %v; want open", opened, err)
	}
	if arb.State() != StateListening || !arb.CaptureActive() {
		t.Fatalf("expected listening with capture open, got %s", arb.State())
	}

	if !arb.ReleaseTalk() {
		t.Fatal("ReleaseTalk() = false, want buffer ready")
	}
	if arb.State() != StateIdle || arb.CaptureActive() {
		t.Fatalf("expected idle with capture closed, got %s", arb.State())
	}
}

func TestSpeakingBlocksCapture(t *testing.T) {
	arb, _ := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	if err := arb.BeginSpeaking(ctx); err != nil {
		t.Fatalf("BeginSpeaking() error: %v", err)
	}

	opened, err := arb.PressTalk(ctx)
	if err != nil {
		t.Fatalf("PressTalk() error: %v", err)
	}
	if opened {
		t.Fatal("capture opened while speaking")
	}
	if arb.CaptureActive() {
		t.Fatal("mutual exclusion violated")
	}
}

func TestQueuedListenReplaysAfterPlayback(t *testing.T) {
	arb, _ := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	if err := arb.BeginSpeaking(ctx); err != nil {
		t.Fatalf("BeginSpeaking() error: %v", err)
	}
	if opened, _ := arb.PressTalk(ctx); opened {
		t.Fatal("expected press to queue, not open")
	}

	if !arb.FinishSpeaking() {
		t.Fatal("FinishSpeaking() = false, want queued listen replay")
	}
	// second finish has nothing queued
	if arb.FinishSpeaking() {
		t.Fatal("replay flag not cleared")
	}
}

func TestBargeInCutsPlayback(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.BargeInEnabled = true
	arb, _ := newTestArbiter(t, policy)
	ctx := context.Background()

	if err := arb.BeginSpeaking(ctx); err != nil {
		t.Fatalf("BeginSpeaking() error: %v", err)
	}
	opened, err := arb.PressTalk(ctx)
	if err != nil {
		t.Fatalf("PressTalk() error: %v", err)
	}
	if !opened {
		t.Fatal("barge-in did not open capture")
	}
	if arb.State() != StateListening {
		t.Fatalf("expected listening after barge-in, got %s", arb.State())
	}
}

func TestConcurrentSpeakIsConflict(t *testing.T) {
	arb, sink := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	if err := arb.BeginSpeaking(ctx); err != nil {
		t.Fatalf("BeginSpeaking() error: %v", err)
	}
	err := arb.BeginSpeaking(ctx)
	if !errors.Is(err, platformerrors.ErrDuplexConflict) {
		t.Fatalf("expected duplex conflict, got %v", err)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Type != audit.TypeDuplexConflict {
		t.Fatalf("expected one DUPLEX_CONFLICT event, got %+v", events)
	}
}

func TestDeviceErrorForcesIdle(t *testing.T) {
	arb, sink := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	if err := arb.BeginSpeaking(ctx); err != nil {
		t.Fatalf("BeginSpeaking() error: %v", err)
	}
	arb.DeviceError(ctx, errors.New("alsa underrun"))

	if arb.State() != StateIdle {
		t.Fatalf("expected idle after device error, got %s", arb.State())
	}
	if arb.FinishSpeaking() {
		t.Fatal("queued listen survived device error")
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Type != audit.TypeDuplexConflict {
		t.Fatalf("expected DUPLEX_CONFLICT audit event, got %+v", events)
	}
}

func TestCancelCollapsesAnyState(t *testing.T) {
	arb, _ := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()

	if _, err := arb.PressTalk(ctx); err != nil {
		t.Fatalf("PressTalk() error: %v", err)
	}
	arb.Cancel()
	if arb.State() != StateIdle || arb.CaptureActive() {
		t.Fatal("cancel did not collapse to idle")
	}
}

// Randomized event sequences never observe capture open while speaking.
func TestMutualExclusionInvariant(t *testing.T) {
	arb, _ := newTestArbiter(t, config.DefaultPolicy())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0:
			_, _ = arb.PressTalk(ctx)
		case 1:
			arb.ReleaseTalk()
		case 2:
			_ = arb.BeginSpeaking(ctx)
		case 3:
			arb.FinishSpeaking()
		case 4:
			arb.DeviceError(ctx, errors.New("fault"))
		}
		if arb.State() == StateSpeaking && arb.CaptureActive() {
			t.Fatalf("step %d: capture active while speaking", i)
		}
	}
}
