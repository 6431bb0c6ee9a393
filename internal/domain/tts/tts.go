// Package tts is the text-to-speech boundary. Providers synthesize a
// ruled-on speech string into audio; playback scheduling stays with
// the arbiter.
package tts

import (
	"fmt"
	"context"
	"time"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// Audio is one synthesized clip, kept both as raw MP3 and on disk so
// the transport can stream whichever form the device wants.
type Audio struct {
	FilePath string
	MP3      []byte
}

type Provider interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// Purger is implemented by providers that leave clips on disk. Spoken
// responses can carry PHI after an override, so clips must not outlive
// their playback window by much.
type Purger interface {
	Purge(maxAge time.Duration)
}

// New builds the provider selected in config.
func New(name string, cfg config.TTSConfig, logger *logging.Logger) (Provider, error) {
	switch cfg.Type {
	case "", "edge":
		return NewEdgeProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider type %q (provider %s)", cfg.Type, name)
	}
}
