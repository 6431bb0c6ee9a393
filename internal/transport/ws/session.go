package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"clinivoice-server-go/internal/domain/session"
	"clinivoice-server-go/internal/domain/tts"
	"clinivoice-server-go/internal/platform/logging"
)

// Wire protocol. Text frames carry JSON control messages; binary
// frames carry audio, mic PCM inbound and MP3 clips outbound.
const (
	msgHello        = "hello"
	msgPTTDown      = "ptt_down"
	msgPTTUp        = "ptt_up"
	msgPlaybackDone = "playback_done"
	msgHangup       = "hangup"
	msgDeviceError  = "device_error"

	msgDisplay    = "display"
	msgNotify     = "notify"
	msgAudioStart = "audio_start"
	msgAudioEnd   = "audio_end"
)

type clientFrame struct {
	Type   string `json:"type"`
	Turn   uint64 `json:"turn,omitempty"`
	Detail string `json:"detail,omitempty"`
	Format string `json:"format,omitempty"`
}

type serverFrame struct {
	Type       string `json:"type"`
	Turn       uint64 `json:"turn,omitempty"`
	Text       string `json:"text,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Session binds one websocket connection to one domain session. It is
// the session's Output and feeds the session's loop from the read
// pump.
type Session struct {
	conn   *Connection
	inner  *session.Session
	logger *logging.Logger

	// wantPCM is set from the read pump and read from the session
	// loop, so it needs the atomic.
	wantPCM atomic.Bool
}

func NewSession(conn *Connection, logger *logging.Logger) *Session {
	return &Session{conn: conn, logger: logger}
}

// Bind attaches the domain session once the service has built it.
func (s *Session) Bind(inner *session.Session) {
	s.inner = inner
}

// ID returns the domain session id.
func (s *Session) ID() string {
	if s.inner == nil {
		return s.conn.ID()
	}
	return s.inner.ID
}

// Play streams a synthesized clip to the device. Devices that sent a
// hello frame asking for pcm get the clip decoded server-side; everyone
// else gets the raw MP3. The device posts playback_done when the
// speaker finishes, which the read pump turns into PlaybackComplete.
func (s *Session) Play(ctx context.Context, turn uint64, audio *tts.Audio) error {
	if s.wantPCM.Load() {
		pcm, sampleRate, err := tts.DecodePCM(audio)
		if err == nil {
			if err := s.conn.WriteJSON(serverFrame{Type: msgAudioStart, Turn: turn, Format: "pcm", SampleRate: sampleRate}); err != nil {
				return err
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				return err
			}
			return s.conn.WriteJSON(serverFrame{Type: msgAudioEnd, Turn: turn})
		}
		s.logger.WarnTag("WS", "pcm decode failed for %s, falling back to mp3: %v", s.conn.ID(), err)
	}
	if err := s.conn.WriteJSON(serverFrame{Type: msgAudioStart, Turn: turn, Format: "mp3"}); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio.MP3); err != nil {
		return err
	}
	return s.conn.WriteJSON(serverFrame{Type: msgAudioEnd, Turn: turn})
}

// Display pushes full response text to the device screen.
func (s *Session) Display(ctx context.Context, text string) error {
	return s.conn.WriteJSON(serverFrame{Type: msgDisplay, Text: text})
}

// Notify pushes a short status line to the device screen.
func (s *Session) Notify(ctx context.Context, text string) error {
	return s.conn.WriteJSON(serverFrame{Type: msgNotify, Text: text})
}

// ReadPump translates wire frames into session events until the
// socket closes. Must run on its own goroutine.
func (s *Session) ReadPump(ctx context.Context) {
	defer s.Close(nil)

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.inner.Post(session.Hangup{Reason: "connection closed"})
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.inner.Feed(payload)
		case websocket.TextMessage:
			var frame clientFrame
			if err := json.Unmarshal(payload, &frame); err != nil {
				s.logger.WarnTag("WS", "bad frame from %s: %v", s.conn.ID(), err)
				continue
			}
			switch frame.Type {
			case msgHello:
				s.wantPCM.Store(frame.Format == "pcm")
			case msgPTTDown:
				s.inner.Post(session.PTTPressed{})
			case msgPTTUp:
				s.inner.Post(session.PTTReleased{})
			case msgPlaybackDone:
				s.inner.Post(session.PlaybackComplete{Turn: frame.Turn})
			case msgDeviceError:
				s.inner.Post(session.DeviceError{Err: fmt.Errorf("device reported: %s", frame.Detail)})
			case msgHangup:
				s.inner.Post(session.Hangup{Reason: "client hangup"})
				return
			default:
				s.logger.DebugTag("WS", "unknown frame type %q from %s", frame.Type, s.conn.ID())
			}
		}
	}
}

// Close hangs up the domain session and closes the socket.
func (s *Session) Close(reason error) {
	if s.inner != nil {
		s.inner.Post(session.Hangup{Reason: "transport closed"})
	}
	if err := s.conn.Close(); err != nil {
		s.logger.DebugTag("WS", "close %s: %v", s.conn.ID(), err)
	}
}
