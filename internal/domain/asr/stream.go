package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
)

const chunkSize = 4096

// StreamProvider speaks a simple websocket protocol to a recognition
// service: a JSON start frame, binary PCM chunks, a JSON end frame,
// then one JSON result frame back. One connection per utterance.
type StreamProvider struct {
	wsURL      string
	apiKey     string
	sampleRate int
	logger     *logging.Logger
}

type startFrame struct {
	Type       string `json:"type"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type endFrame struct {
	Type string `json:"type"`
}

type resultFrame struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

func NewStreamProvider(cfg config.ASRConfig, logger *logging.Logger) *StreamProvider {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &StreamProvider{
		wsURL:      cfg.WSURL,
		apiKey:     cfg.APIKey,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (p *StreamProvider) Transcribe(ctx context.Context, pcm []byte) (*Utterance, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	headers := http.Header{}
	if p.apiKey != "" {
		headers.Set("Authorization", "Bearer "+p.apiKey)
	}

	conn, resp, err := dialer.DialContext(ctx, p.wsURL, headers)
	if err != nil {
		if resp != nil {
			p.logger.WarnTag("ASR", "dial failed status=%d: %v", resp.StatusCode, err)
		}
		return nil, errors.ASRError("asr.StreamProvider.Transcribe", err)
	}
	defer conn.Close()

	// cancellation closes the connection under the reader
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(startFrame{Type: "start", Format: "pcm16", SampleRate: p.sampleRate}); err != nil {
		return nil, errors.ASRError("asr.StreamProvider.Transcribe", err)
	}
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := offset + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return nil, errors.ASRError("asr.StreamProvider.Transcribe", err)
		}
	}
	if err := conn.WriteJSON(endFrame{Type: "end"}); err != nil {
		return nil, errors.ASRError("asr.StreamProvider.Transcribe", err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.ASRError("asr.StreamProvider.Transcribe", ctx.Err())
			}
			return nil, errors.ASRError("asr.StreamProvider.Transcribe", err)
		}

		var result resultFrame
		if err := json.Unmarshal(message, &result); err != nil {
			continue // interim frames the service may send
		}
		switch result.Type {
		case "result":
			return &Utterance{
				Text:       result.Text,
				At:         time.Now(),
				Source:     "mic",
				Confidence: result.Confidence,
			}, nil
		case "error":
			return nil, errors.ASRError("asr.StreamProvider.Transcribe",
				errors.New(errors.KindAudio, "asr.StreamProvider", result.Error))
		}
	}
}
