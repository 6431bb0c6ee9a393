package tts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"clinivoice-server-go/internal/platform/config"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

func writeClip(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if age > 0 {
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	return path
}

func TestPurgeRemovesOldClips(t *testing.T) {
	dir := t.TempDir()
	logger := platformtesting.SetupTestLogger(t)
	provider := NewEdgeProvider(config.TTSConfig{OutputDir: dir}, logger)

	old := writeClip(t, dir, "old.mp3", 2*time.Hour)
	fresh := writeClip(t, dir, "fresh.mp3", 0)
	other := writeClip(t, dir, "notes.txt", 2*time.Hour)

	provider.Purge(time.Hour)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old clip should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh clip should survive: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("non-clip files must not be touched: %v", err)
	}
}

func TestPurgeZeroAgeClearsEverything(t *testing.T) {
	dir := t.TempDir()
	logger := platformtesting.SetupTestLogger(t)
	provider := NewEdgeProvider(config.TTSConfig{OutputDir: dir}, logger)

	first := writeClip(t, dir, "a.mp3", time.Minute)
	second := writeClip(t, dir, "b.mp3", time.Second)

	provider.Purge(0)

	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", filepath.Base(path))
		}
	}
}
