package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"clinivoice-server-go/internal/platform/config"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

var upgrader = websocket.Upgrader{}

func fakeASRServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var sawStart, sawEnd bool
		var audioBytes int
		for !sawEnd {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.TextMessage:
				var frame map[string]interface{}
				if err := json.Unmarshal(payload, &frame); err != nil {
					t.Errorf("bad frame: %v", err)
					return
				}
				switch frame["type"] {
				case "start":
					sawStart = true
				case "end":
					sawEnd = true
				}
			case websocket.BinaryMessage:
				audioBytes += len(payload)
			}
		}
		if !sawStart || audioBytes == 0 {
			t.Errorf("protocol violated: start=%v audio=%d", sawStart, audioBytes)
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"type": "result", "text": text, "confidence": 0.93,
		})
	}))
}

func TestStreamProviderTranscribe(t *testing.T) {
	srv := fakeASRServer(t, "order CBC stat")
	defer srv.Close()

	provider := NewStreamProvider(config.ASRConfig{
		WSURL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		SampleRate: 16000,
	}, platformtesting.SetupTestLogger(t))

	utt, err := provider.Transcribe(context.Background(), make([]byte, 10_000))
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if utt.Text != "order CBC stat" {
		t.Errorf("text = %q", utt.Text)
	}
	if utt.Confidence != 0.93 {
		t.Errorf("confidence = %v", utt.Confidence)
	}
}

func TestStreamProviderCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// swallow frames, never answer
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	provider := NewStreamProvider(config.ASRConfig{
		WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, platformtesting.SetupTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.Transcribe(ctx, make([]byte, 1024)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
