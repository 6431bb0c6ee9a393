package session

import (
	"clinivoice-server-go/internal/domain/asr"
	"clinivoice-server-go/internal/domain/tts"
)

// Event is the closed union carried on a session's loop channel. The
// loop pattern-matches on the concrete type; nothing else mutates
// session state.
type Event interface {
	isSessionEvent()
}

// PTTPressed reports the push-to-talk control going down.
type PTTPressed struct{}

// PTTReleased reports the control coming back up.
type PTTReleased struct{}

// CaptureClosed delivers the buffered utterance audio after capture
// shut. Always observed before ASR dispatch.
type CaptureClosed struct {
	PCM []byte
}

// TranscriptReady delivers the ASR result for a turn.
type TranscriptReady struct {
	Turn      uint64
	Utterance *asr.Utterance
	Err       error
}

// SpeechReady delivers the synthesized audio for a turn.
type SpeechReady struct {
	Turn  uint64
	Audio *tts.Audio
	Err   error
}

// PlaybackComplete reports the speaker finishing a clip.
type PlaybackComplete struct {
	Turn uint64
}

// DeviceError reports an audio device fault from either direction.
type DeviceError struct {
	Err error
}

// ConfirmationTimer fires when a pending confirmation's deadline
// passes without a reply.
type ConfirmationTimer struct {
	ConfirmationID string
}

// Hangup ends the session.
type Hangup struct {
	Reason string
}

func (PTTPressed) isSessionEvent()        {}
func (PTTReleased) isSessionEvent()       {}
func (CaptureClosed) isSessionEvent()     {}
func (TranscriptReady) isSessionEvent()   {}
func (SpeechReady) isSessionEvent()       {}
func (PlaybackComplete) isSessionEvent()  {}
func (DeviceError) isSessionEvent()       {}
func (ConfirmationTimer) isSessionEvent() {}
func (Hangup) isSessionEvent()            {}
