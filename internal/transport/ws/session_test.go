package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"clinivoice-server-go/internal/domain/session"
	"clinivoice-server-go/internal/domain/tts"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

// pairTestSession builds a wire session on the server side of a real
// websocket and hands back the client end for driving frames.
func pairTestSession(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()

	logger := platformtesting.SetupTestLogger(t)
	serverSockets := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSockets <- socket
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	sess := NewSession(NewConnection("device-under-test", <-serverSockets), logger)
	sess.Bind(session.New("device-under-test", session.Deps{}))
	t.Cleanup(func() { sess.Close(nil) })
	return sess, client
}

func readServerFrame(t *testing.T, client *websocket.Conn) serverFrame {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame serverFrame
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read control frame: %v", err)
	}
	return frame
}

func TestHelloFrameSwitchesAudioFormat(t *testing.T) {
	sess, client := pairTestSession(t)
	go sess.ReadPump(context.Background())

	if err := client.WriteJSON(clientFrame{Type: msgHello, Format: "pcm"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !sess.wantPCM.Load() {
		if time.Now().After(deadline) {
			t.Fatal("hello frame did not switch the session to pcm")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := client.WriteJSON(clientFrame{Type: msgHello, Format: "mp3"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for sess.wantPCM.Load() {
		if time.Now().After(deadline) {
			t.Fatal("hello frame did not switch the session back to mp3")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayFallsBackToMP3WhenDecodeFails(t *testing.T) {
	sess, client := pairTestSession(t)
	sess.wantPCM.Store(true)

	clip := &tts.Audio{MP3: []byte("not a real clip")}
	playErr := make(chan error, 1)
	go func() { playErr <- sess.Play(context.Background(), 3, clip) }()

	start := readServerFrame(t, client)
	if start.Type != msgAudioStart || start.Format != "mp3" || start.Turn != 3 {
		t.Fatalf("expected mp3 audio_start for turn 3, got %+v", start)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read audio frame: %v", err)
	}
	if messageType != websocket.BinaryMessage || string(payload) != "not a real clip" {
		t.Fatalf("expected the raw clip bytes, got type=%d payload=%q", messageType, payload)
	}
	if end := readServerFrame(t, client); end.Type != msgAudioEnd {
		t.Fatalf("expected audio_end, got %+v", end)
	}
	if err := <-playErr; err != nil {
		t.Fatalf("play: %v", err)
	}
}
