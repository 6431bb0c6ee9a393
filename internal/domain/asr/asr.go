// Package asr is the speech-to-text boundary. Providers are black
// boxes that accept a captured audio buffer and return a transcribed
// utterance; recognition runs off the session loop and its result is
// delivered back as an event.
package asr

import (
	"context"
	"fmt"
	"time"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// Utterance is one transcribed unit of speech. Consumed once per turn
// and then discarded; only redacted summaries outlive the turn.
type Utterance struct {
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

type Provider interface {
	Transcribe(ctx context.Context, pcm []byte) (*Utterance, error)
}

// New builds the provider selected in config.
func New(name string, cfg config.ASRConfig, logger *logging.Logger) (Provider, error) {
	switch cfg.Type {
	case "", "stream":
		return NewStreamProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown ASR provider type %q (provider %s)", cfg.Type, name)
	}
}
