package tts

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
)

// EdgeProvider synthesizes with the Edge speech service. Output lands
// in outputDir; clips are small and cleaned by Purge between calls.
type EdgeProvider struct {
	voice     string
	outputDir string
	logger    *logging.Logger
}

func NewEdgeProvider(cfg config.TTSConfig, logger *logging.Logger) *EdgeProvider {
	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-JennyNeural"
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	return &EdgeProvider{
		voice:     voice,
		outputDir: outputDir,
		logger:    logger,
	}
}

func (p *EdgeProvider) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.TTSError("tts.EdgeProvider.Synthesize", err)
	}

	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(p.voice))
	if err != nil {
		return nil, errors.TTSError("tts.EdgeProvider.Synthesize", err)
	}

	start := time.Now()
	mp3Data, err := communicate.Stream()
	if err != nil {
		return nil, errors.TTSError("tts.EdgeProvider.Synthesize", err)
	}
	p.logger.DebugTag("TTS", "synthesized %d bytes in %v", len(mp3Data), time.Since(start))

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, errors.TTSError("tts.EdgeProvider.Synthesize", err)
	}
	path := filepath.Join(p.outputDir, uuid.New().String()+".mp3")
	if err := os.WriteFile(path, mp3Data, 0o644); err != nil {
		return nil, errors.TTSError("tts.EdgeProvider.Synthesize", err)
	}

	return &Audio{FilePath: path, MP3: mp3Data}, nil
}

// Purge deletes clips older than maxAge from the output dir.
func (p *EdgeProvider) Purge(maxAge time.Duration) {
	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".mp3" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(p.outputDir, entry.Name()))
	}
}
