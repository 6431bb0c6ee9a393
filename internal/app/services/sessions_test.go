package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/domain/session"
	"clinivoice-server-go/internal/domain/tts"
	"clinivoice-server-go/internal/platform/storage"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

type consoleTestOutput struct{}

func (consoleTestOutput) Play(ctx context.Context, turn uint64, audio *tts.Audio) error { return nil }
func (consoleTestOutput) Display(ctx context.Context, text string) error               { return nil }
func (consoleTestOutput) Notify(ctx context.Context, text string) error                { return nil }

func setupSessionService(t *testing.T) *SessionService {
	t.Helper()

	cfg := platformtesting.SetupTestConfig(t)
	ttsCfg := cfg.TTS[cfg.Selected.TTS]
	ttsCfg.OutputDir = t.TempDir()
	cfg.TTS[cfg.Selected.TTS] = ttsCfg

	logger := platformtesting.SetupTestLogger(t)
	db, err := storage.Open(filepath.Join(t.TempDir(), "clinivoice.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	emitter := audit.NewEmitter(audit.NewMemorySink(), logger)
	svc, err := NewSessionService(cfg, db, emitter, logger)
	if err != nil {
		t.Fatalf("build session service: %v", err)
	}
	return svc
}

func TestOpenSnapshotsSessionForConsole(t *testing.T) {
	svc := setupSessionService(t)

	sess, err := svc.Open(consoleTestOutput{})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	infos := svc.Infos()
	if len(infos) != 1 {
		t.Fatalf("expected 1 session info, got %d", len(infos))
	}
	if infos[0].ID != sess.ID || infos[0].State != "idle" || infos[0].Mode != "patient" {
		t.Fatalf("unexpected initial snapshot: %+v", infos[0])
	}

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), sess)
		close(done)
	}()
	sess.Post(session.Hangup{Reason: "test over"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not exit on hangup")
	}
	if got := len(svc.Infos()); got != 0 {
		t.Fatalf("expected no infos after hangup, got %d", got)
	}
}

func TestBusEventsUpdateSessionSnapshot(t *testing.T) {
	svc := setupSessionService(t)

	sess, err := svc.Open(consoleTestOutput{})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	bus := eventbus.New()
	if err := svc.watch(sess.ID, bus); err != nil {
		t.Fatalf("watch: %v", err)
	}

	bus.Publish(eventbus.EventDuplexStateChanged, eventbus.DuplexEventData{
		SessionID: sess.ID,
		From:      "idle",
		To:        "listening",
		At:        time.Now(),
	})
	bus.Publish(eventbus.EventModeSwitched, eventbus.ModeEventData{
		SessionID: sess.ID,
		From:      "patient",
		To:        "provider",
		Reason:    "explicit_request",
	})

	infos := svc.Infos()
	if len(infos) != 1 {
		t.Fatalf("expected 1 session info, got %d", len(infos))
	}
	if infos[0].State != "listening" || infos[0].Mode != "provider" {
		t.Fatalf("snapshot did not follow bus events: %+v", infos[0])
	}
}
