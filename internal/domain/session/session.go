// Package session drives one call/encounter. A single event loop owns
// all session state; audio I/O and external services communicate with
// it exclusively through posted events.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/asr"
	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/confirm"
	"clinivoice-server-go/internal/domain/duplex"
	"clinivoice-server-go/internal/domain/intent"
	"clinivoice-server-go/internal/domain/mode"
	"clinivoice-server-go/internal/domain/phi"
	"clinivoice-server-go/internal/domain/tts"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// Planner composes the response candidate for a classified utterance.
// The clinical reply content is external to the safety core; the
// session only rules on whatever the planner proposes.
type Planner interface {
	Plan(ctx context.Context, res intent.Result) (phi.ResponseCandidate, error)
}

// Output is the transport-facing side of a session: playing audio and
// putting text on the display. Play must post PlaybackComplete for the
// given turn when the clip finishes.
type Output interface {
	Play(ctx context.Context, turn uint64, audio *tts.Audio) error
	Display(ctx context.Context, text string) error
	Notify(ctx context.Context, text string) error
}

// Deps bundles everything a session needs at construction.
type Deps struct {
	PolicyCfg  config.PolicyConfig
	Arbiter    *duplex.Arbiter
	Confirms   *confirm.Manager
	Modes      *mode.Controller
	Policy     *phi.Policy
	Classifier intent.Classifier
	ASR        asr.Provider
	TTS        tts.Provider
	Executor   action.Executor
	Planner    Planner
	Output     Output
	Emitter    *audit.Emitter
	Logger     *logging.Logger
}

type Session struct {
	ID   string
	gate *Gate

	deps   Deps
	events chan Event
	done   chan struct{}

	closeOnce sync.Once

	// loop-owned state, touched only from Run
	turn             uint64
	pendingConfirmID string
	pendingSpeech    []SpeechReady
	heldCandidate    *phi.ResponseCandidate
	timers           map[string]*time.Timer
	createdAt        time.Time
	lastActivity     time.Time
}

func New(id string, deps Deps) *Session {
	return &Session{
		ID:        id,
		gate:      &Gate{},
		deps:      deps,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		timers:    make(map[string]*time.Timer),
		createdAt: time.Now(),
	}
}

// Post delivers an event to the loop. After the session closes the
// event is discarded, never applied.
func (s *Session) Post(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// Feed routes a raw mic frame through the push-to-talk gate.
func (s *Session) Feed(frame []byte) {
	s.gate.Feed(frame)
}

// Done closes when the loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run is the session's event loop. It exits on Hangup or when ctx is
// cancelled; either way all pending confirmations expire and the
// duplex state collapses to idle.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown(ctx)

	s.deps.Logger.InfoTag("SESSION", "session %s started", s.ID)
	s.auditSession(ctx, audit.TypeSessionStarted, "")

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.lastActivity = time.Now()
			switch e := ev.(type) {
			case PTTPressed:
				s.handlePTTPressed(ctx)
			case PTTReleased:
				s.handlePTTReleased(ctx)
			case CaptureClosed:
				s.handleCaptureClosed(ctx, e)
			case TranscriptReady:
				s.handleTranscript(ctx, e)
			case SpeechReady:
				s.handleSpeechReady(ctx, e)
			case PlaybackComplete:
				s.handlePlaybackComplete(ctx, e)
			case DeviceError:
				s.deps.Arbiter.DeviceError(ctx, e.Err)
				s.notify(ctx, "Audio device trouble. Please try again.")
			case ConfirmationTimer:
				s.handleConfirmationTimer(ctx, e)
			case Hangup:
				s.deps.Logger.InfoTag("SESSION", "session %s hangup: %s", s.ID, e.Reason)
				return
			}
		}
	}
}

func (s *Session) teardown(ctx context.Context) {
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.deps.Confirms.CancelAll(ctx, "session_terminated")
	s.deps.Modes.RevertToPatient(ctx, mode.ReasonSessionEnd)
	s.deps.Arbiter.Cancel()
	s.auditSession(ctx, audit.TypeSessionEnded, "")
	s.closeOnce.Do(func() { close(s.done) })
	s.deps.Logger.InfoTag("SESSION", "session %s closed", s.ID)
}

func (s *Session) handlePTTPressed(ctx context.Context) {
	opened, err := s.deps.Arbiter.PressTalk(ctx)
	if err != nil {
		s.deps.Logger.ErrorTag("PTT", "press failed session=%s: %v", s.ID, err)
		s.notify(ctx, "The microphone is unavailable right now.")
		return
	}
	if !opened {
		// queued behind playback; replayed on PlaybackComplete
		s.notify(ctx, "I'll listen right after this.")
		return
	}
	s.gate.Open()
}

func (s *Session) handlePTTReleased(ctx context.Context) {
	if !s.deps.Arbiter.ReleaseTalk() {
		return
	}
	pcm := s.gate.Close()
	if len(pcm) == 0 {
		s.flushPendingSpeech()
		return
	}
	// capture-close is observed strictly before ASR dispatch
	s.Post(CaptureClosed{PCM: pcm})
}

func (s *Session) handleCaptureClosed(ctx context.Context, e CaptureClosed) {
	s.turn++
	turn := s.turn
	go func() {
		utt, err := s.deps.ASR.Transcribe(ctx, e.PCM)
		s.Post(TranscriptReady{Turn: turn, Utterance: utt, Err: err})
	}()
}

func (s *Session) handleTranscript(ctx context.Context, e TranscriptReady) {
	if e.Turn != s.turn {
		s.deps.Logger.DebugTag("SESSION", "discarding stale transcript turn=%d current=%d", e.Turn, s.turn)
		return
	}
	if e.Err != nil {
		s.deps.Logger.WarnTag("ASR", "transcription failed session=%s: %v", s.ID, e.Err)
		s.notify(ctx, "I didn't catch that. Please try again.")
		return
	}

	// turn boundary: provider-mode TTL is applied before anything else
	if s.deps.Modes.CheckExpiry(ctx) {
		s.notify(ctx, "Provider mode has ended. Back in patient mode.")
	}

	text := e.Utterance.Text

	// a pending confirmation consumes the reply before intent routing
	if s.pendingConfirmID != "" {
		if s.resolvePending(ctx, text) {
			return
		}
	}

	res, err := s.deps.Classifier.Classify(ctx, text)
	if err != nil {
		s.deps.Logger.WarnTag("INTENT", "classification failed session=%s: %v", s.ID, err)
		s.notify(ctx, "I couldn't process that request.")
		return
	}
	s.deps.Logger.InfoTag("INTENT", "session=%s intent=%s confidence=%.2f", s.ID, res.Intent, res.Confidence)

	switch res.Intent {
	case intent.IntentSwitchToProvider:
		s.requestConfirmation(ctx, action.Payload{
			Kind:    action.KindModeSwitch,
			Summary: "switch to provider mode",
		}, "Please confirm you are in a private setting.")
	case intent.IntentSwitchToPatient:
		s.deps.Modes.RevertToPatient(ctx, mode.ReasonExplicit)
		s.speakText(ctx, "Patient mode is on. Protected information stays on screen.")
	case intent.IntentAudioOverride:
		payload := action.Payload{
			Kind:    action.KindAudioOverride,
			Summary: "read protected information aloud",
		}
		if !s.deps.PolicyCfg.PHIReadbackRequiresConfirm {
			pending := s.deps.Confirms.Request(ctx, payload)
			s.deps.Confirms.Resolve(ctx, pending.ID, true)
			s.executeConfirmed(ctx, pending.ID, payload)
			return
		}
		s.requestConfirmation(ctx, payload, "You asked me to read protected information aloud. Confirm?")
	case intent.IntentUnknown:
		s.speakText(ctx, "I'm not sure what you need. You can ask about labs, allergies, notes, or refills.")
	default:
		s.runClinicalTurn(ctx, res)
	}
}

// resolvePending applies a yes/no reply to the outstanding
// confirmation. Returns false when the utterance is neither, in which
// case it falls through to normal intent routing.
func (s *Session) resolvePending(ctx context.Context, text string) bool {
	affirmative := intent.IsAffirmative(text)
	if !affirmative && !intent.IsNegative(text) {
		return false
	}

	id := s.pendingConfirmID
	s.pendingConfirmID = ""
	s.stopTimer(id)

	pending, _ := s.deps.Confirms.Get(id)
	status := s.deps.Confirms.Resolve(ctx, id, affirmative)
	switch status {
	case confirm.StatusConfirmed:
		s.executeConfirmed(ctx, id, pending.Payload)
	case confirm.StatusDenied:
		s.speakText(ctx, "Okay, cancelled.")
	case confirm.StatusExpired:
		s.speakText(ctx, "That confirmation window has passed, so nothing was done.")
	}
	return true
}

func (s *Session) executeConfirmed(ctx context.Context, id string, payload action.Payload) {
	switch payload.Kind {
	case action.KindModeSwitch:
		expires := s.deps.Modes.ActivateProvider(ctx)
		s.deps.Confirms.Consume(id)
		s.speakText(ctx, "Provider mode is on until "+expires.Format("3:04 PM")+".")
	case action.KindAudioOverride:
		// the grant stays visible to the policy until the next spoken
		// response consumes it
		if s.heldCandidate != nil {
			held := *s.heldCandidate
			s.heldCandidate = nil
			s.speakCandidate(ctx, held)
			return
		}
		s.speakText(ctx, "Okay, I'll read it aloud this once.")
	default:
		result, err := s.deps.Executor.Execute(ctx, payload)
		s.deps.Confirms.Consume(id)
		if err != nil {
			s.deps.Logger.ErrorTag("ACTION", "execute failed session=%s: %v", s.ID, err)
			s.speakText(ctx, "I couldn't complete that. Nothing was changed.")
			return
		}
		s.speakText(ctx, result.Message)
	}
}

func (s *Session) runClinicalTurn(ctx context.Context, res intent.Result) {
	if res.RequiresConfirmation {
		payload := intent.BuildPayload(res)
		s.requestConfirmation(ctx, payload, "You asked me to "+payload.Summary+". Should I proceed?")
		return
	}

	candidate, err := s.deps.Planner.Plan(ctx, res)
	if err != nil {
		s.deps.Logger.WarnTag("SESSION", "plan failed session=%s: %v", s.ID, err)
		s.notify(ctx, "I couldn't prepare a response for that.")
		return
	}
	s.speakCandidate(ctx, candidate)
}

func (s *Session) requestConfirmation(ctx context.Context, payload action.Payload, prompt string) {
	pending := s.deps.Confirms.Request(ctx, payload)
	s.pendingConfirmID = pending.ID

	// the deadline runs independently of playback; the prompt may still
	// be speaking when it lapses
	delay := time.Until(pending.Deadline)
	id := pending.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.Post(ConfirmationTimer{ConfirmationID: id})
	})

	s.speakText(ctx, prompt)
}

func (s *Session) handleConfirmationTimer(ctx context.Context, e ConfirmationTimer) {
	s.stopTimer(e.ConfirmationID)
	if s.deps.Confirms.Expire(ctx, e.ConfirmationID) != confirm.StatusExpired {
		return
	}
	pending, ok := s.deps.Confirms.Get(e.ConfirmationID)
	if s.pendingConfirmID == e.ConfirmationID {
		s.pendingConfirmID = ""
	}
	what := "that request"
	if ok && pending.Payload.Summary != "" {
		what = "the " + pending.Payload.Summary
	}
	s.speakText(ctx, "I didn't hear a confirmation, so "+what+" was not processed.")
}

// speakCandidate runs the PHI policy and routes the ruling to screen
// and speaker.
func (s *Session) speakCandidate(ctx context.Context, candidate phi.ResponseCandidate) {
	override := s.deps.Confirms.HasConfirmed(action.KindAudioOverride)
	decision := s.deps.Policy.Apply(ctx, s.turnID(), candidate, s.deps.Modes.Current(), override)

	// display is never blocked
	if err := s.deps.Output.Display(ctx, decision.Display); err != nil {
		s.deps.Logger.WarnTag("SESSION", "display failed session=%s: %v", s.ID, err)
	}
	if decision.OverrideUsed {
		s.deps.Confirms.ConsumeKind(action.KindAudioOverride)
	}
	if decision.BlockedSpans > 0 {
		// kept so a subsequent confirmed override can speak this reply
		held := candidate
		s.heldCandidate = &held
	}
	if decision.Speech == "" {
		return
	}
	s.speakText(ctx, decision.Speech)
}

// speakText synthesizes off-loop and posts SpeechReady.
func (s *Session) speakText(ctx context.Context, text string) {
	turn := s.turn
	go func() {
		audio, err := s.deps.TTS.Synthesize(ctx, text)
		s.Post(SpeechReady{Turn: turn, Audio: audio, Err: err})
	}()
}

func (s *Session) handleSpeechReady(ctx context.Context, e SpeechReady) {
	if e.Turn != s.turn {
		return
	}
	if e.Err != nil {
		s.deps.Logger.WarnTag("TTS", "synthesis failed session=%s: %v", s.ID, e.Err)
		s.notify(ctx, "I can't speak right now; the response is on screen.")
		return
	}

	if err := s.deps.Arbiter.BeginSpeaking(ctx); err != nil {
		// mic is busy; hold the clip until the duplex state clears
		s.pendingSpeech = append(s.pendingSpeech, e)
		return
	}
	if err := s.deps.Output.Play(ctx, e.Turn, e.Audio); err != nil {
		s.deps.Arbiter.DeviceError(ctx, err)
		s.notify(ctx, "Playback failed; the response is on screen.")
	}
}

func (s *Session) handlePlaybackComplete(ctx context.Context, e PlaybackComplete) {
	replay := s.deps.Arbiter.FinishSpeaking()
	if replay {
		s.Post(PTTPressed{})
	}
	s.flushPendingSpeech()
}

func (s *Session) flushPendingSpeech() {
	if len(s.pendingSpeech) == 0 || s.deps.Arbiter.State() != duplex.StateIdle {
		return
	}
	held := s.pendingSpeech[0]
	s.pendingSpeech = s.pendingSpeech[1:]
	s.Post(held)
}

func (s *Session) notify(ctx context.Context, text string) {
	if err := s.deps.Output.Notify(ctx, text); err != nil {
		s.deps.Logger.WarnTag("SESSION", "notify failed session=%s: %v", s.ID, err)
	}
}

func (s *Session) stopTimer(id string) {
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Session) turnID() string {
	return s.ID + "-" + strconv.FormatUint(s.turn, 10)
}

func (s *Session) auditSession(ctx context.Context, eventType, reason string) {
	payload := map[string]interface{}{}
	if reason != "" {
		payload["reason"] = reason
	}
	_ = s.deps.Emitter.Emit(ctx, audit.Event{
		SessionID: s.ID,
		Type:      eventType,
		Mode:      string(s.deps.Modes.Current()),
		Payload:   payload,
	})
}
