package duplex

import (
	"context"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
)

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
)

// Device is the physical mic+speaker pair. The arbiter is its sole
// owner; no other component opens or closes it.
type Device interface {
	OpenCapture() error
	CloseCapture() error
	StopPlayback() error
}

// NopDevice satisfies Device for transports that manage audio frames
// themselves over the wire.
type NopDevice struct{}

func (NopDevice) OpenCapture() error  { return nil }
func (NopDevice) CloseCapture() error { return nil }
func (NopDevice) StopPlayback() error { return nil }

// Arbiter owns the duplex state of one session and enforces half-duplex
// mutual exclusion between capture and playback. All transitions run
// under a single mutex so capture can never be observed open while the
// state is speaking.
type Arbiter struct {
	mu sync.Mutex

	sessionID string
	state     State
	device    Device
	policy    config.PolicyConfig
	bus       evbus.Bus
	emitter   *audit.Emitter
	logger    *logging.Logger
	now       func() time.Time

	captureOpen  bool
	queuedListen bool
}

func NewArbiter(sessionID string, device Device, policy config.PolicyConfig, bus evbus.Bus, emitter *audit.Emitter, logger *logging.Logger) *Arbiter {
	if device == nil {
		device = NopDevice{}
	}
	return &Arbiter{
		sessionID: sessionID,
		state:     StateIdle,
		device:    device,
		policy:    policy,
		bus:       bus,
		emitter:   emitter,
		logger:    logger,
		now:       time.Now,
	}
}

// State returns the current duplex state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CaptureActive reports whether the mic is open.
func (a *Arbiter) CaptureActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.captureOpen
}

// PressTalk handles push-to-talk activation. The boolean reports
// whether capture opened now. A press during speaking is queued for
// replay after playback unless barge-in is enabled, in which case
// playback is cut and capture opens immediately.
func (a *Arbiter) PressTalk(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateListening:
		return true, nil

	case StateSpeaking:
		if a.policy.BargeInEnabled {
			if err := a.device.StopPlayback(); err != nil {
				a.logger.WarnTag("ARBITER", "barge-in playback stop failed: %v", err)
			}
			a.transition(StateIdle, "barge_in")
			return true, a.openCapture()
		}
		observability.IncrCounter(observability.CounterBargeInAttemptsBlocked)
		a.queuedListen = true
		a.logger.InfoTag("ARBITER", "ptt during playback queued session=%s", a.sessionID)
		return false, nil

	default: // idle
		return true, a.openCapture()
	}
}

// ReleaseTalk handles push-to-talk release. The boolean reports
// whether capture was actually open, so the caller knows a buffer is
// ready for recognition.
func (a *Arbiter) ReleaseTalk() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateListening {
		return false
	}
	a.closeCapture()
	a.transition(StateIdle, "ptt_released")
	return true
}

// BeginSpeaking moves the session into playback. Capture must already
// be closed; a begin while listening or already speaking is a duplex
// conflict and the turn fails.
func (a *Arbiter) BeginSpeaking(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIdle || a.captureOpen {
		a.auditConflict(ctx, "begin_speaking", string(a.state))
		return errors.ErrDuplexConflict
	}
	a.transition(StateSpeaking, "response_ready")
	return nil
}

// FinishSpeaking completes playback. The boolean reports whether a
// queued push-to-talk should be replayed now.
func (a *Arbiter) FinishSpeaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateSpeaking {
		return false
	}
	a.transition(StateIdle, "playback_complete")
	replay := a.queuedListen
	a.queuedListen = false
	return replay
}

// DeviceError forces the session out of playback after an audio device
// fault. The remaining playback buffer is the device's to discard;
// there is no retry here.
func (a *Arbiter) DeviceError(ctx context.Context, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.ErrorTag("ARBITER", "device error session=%s state=%s: %v", a.sessionID, a.state, cause)
	if a.captureOpen {
		a.closeCapture()
	}
	if a.state != StateIdle {
		a.transition(StateIdle, "device_error")
	}
	a.queuedListen = false
	a.auditConflict(ctx, "device_error", errString(cause))
}

// Cancel tears the arbiter down on hangup. Any state collapses to
// idle and the queued listen is dropped.
func (a *Arbiter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.captureOpen {
		a.closeCapture()
	}
	if a.state != StateIdle {
		a.transition(StateIdle, "session_cancelled")
	}
	a.queuedListen = false
}

// callers hold a.mu for everything below

func (a *Arbiter) openCapture() error {
	if err := a.device.OpenCapture(); err != nil {
		return errors.Wrap(errors.KindAudio, "duplex.openCapture", "open capture device", err)
	}
	a.captureOpen = true
	a.transition(StateListening, "ptt_pressed")
	return nil
}

func (a *Arbiter) closeCapture() {
	if err := a.device.CloseCapture(); err != nil {
		a.logger.WarnTag("ARBITER", "capture close failed session=%s: %v", a.sessionID, err)
	}
	a.captureOpen = false
}

func (a *Arbiter) transition(to State, reason string) {
	from := a.state
	if from == to {
		return
	}
	a.state = to
	a.logger.DebugTag("ARBITER", "session=%s %s -> %s (%s)", a.sessionID, from, to, reason)

	if from == StateSpeaking || to == StateSpeaking {
		observability.IncrCounter(observability.CounterSpeakerSafeEvents)
		if a.bus != nil {
			a.bus.Publish(eventbus.EventDuplexStateChanged, eventbus.DuplexEventData{
				SessionID: a.sessionID,
				From:      string(from),
				To:        string(to),
				Reason:    reason,
				At:        a.now(),
			})
		}
	}
}

func (a *Arbiter) auditConflict(ctx context.Context, op, detail string) {
	if a.emitter == nil {
		return
	}
	_ = a.emitter.Emit(ctx, audit.Event{
		SessionID: a.sessionID,
		Type:      audit.TypeDuplexConflict,
		Payload: map[string]interface{}{
			"op":     op,
			"detail": detail,
			"state":  string(a.state),
		},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
