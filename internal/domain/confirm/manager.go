package confirm

import (
	"context"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDenied    Status = "denied"
	StatusExpired   Status = "expired"
)

// terminal reports whether no further resolution may change the status.
func (s Status) terminal() bool {
	return s != StatusPending
}

// Pending is one confirmation awaiting a verbal yes or no.
type Pending struct {
	ID        string
	Payload   action.Payload
	CreatedAt time.Time
	Deadline  time.Time
	Status    Status
	// Reason qualifies a terminal status, e.g. session_terminated for
	// expiries forced by hangup.
	Reason string
}

// Manager tracks pending confirmations for one session. It owns
// deadlines and status transitions only; deciding whether an utterance
// means yes is the NLP boundary's job. Deadlines run on the wall clock
// (or the injected one) and are checked before any semantic input is
// considered, so a late "yes" can never execute an action.
type Manager struct {
	mu sync.Mutex

	sessionID string
	timeout   time.Duration
	pending   map[string]*Pending
	emitter   *audit.Emitter
	bus       evbus.Bus
	logger    *logging.Logger
	now       func() time.Time
}

func NewManager(sessionID string, timeout time.Duration, emitter *audit.Emitter, bus evbus.Bus, logger *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		sessionID: sessionID,
		timeout:   timeout,
		pending:   make(map[string]*Pending),
		emitter:   emitter,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock. Tests drive deadlines with it.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Request registers a high-risk payload and returns its confirmation.
// The caller synthesizes the yes/no prompt; the deadline starts now,
// not when the prompt finishes playing.
func (m *Manager) Request(ctx context.Context, payload action.Payload) *Pending {
	m.mu.Lock()
	now := m.now()
	p := &Pending{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: now,
		Deadline:  now.Add(m.timeout),
		Status:    StatusPending,
	}
	m.pending[p.ID] = p
	snapshot := *p
	m.mu.Unlock()

	m.logger.InfoTag("CONFIRM", "requested id=%s kind=%s deadline=%s",
		snapshot.ID, payload.Kind, snapshot.Deadline.Format(time.RFC3339))
	m.audit(ctx, audit.TypeConfirmationRequested, snapshot)
	m.publish(eventbus.EventConfirmationRequested, snapshot)
	return &snapshot
}

// Resolve applies a yes/no classification to a pending confirmation.
// The deadline check precedes the classification: anything arriving
// after the deadline expires the confirmation no matter what was said.
// Resolving an already-terminal confirmation returns its status
// unchanged and emits nothing.
func (m *Manager) Resolve(ctx context.Context, id string, affirmative bool) Status {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return StatusExpired
	}
	if p.Status.terminal() {
		status := p.Status
		m.mu.Unlock()
		return status
	}

	if m.now().After(p.Deadline) {
		p.Status = StatusExpired
		p.Reason = "deadline"
		snapshot := *p
		m.mu.Unlock()
		m.finishExpired(ctx, snapshot)
		return StatusExpired
	}

	if affirmative {
		p.Status = StatusConfirmed
	} else {
		p.Status = StatusDenied
	}
	snapshot := *p
	m.mu.Unlock()

	if snapshot.Status == StatusConfirmed {
		m.audit(ctx, audit.TypeConfirmationGranted, snapshot)
	} else {
		m.audit(ctx, audit.TypeConfirmationDenied, snapshot)
	}
	m.publish(eventbus.EventConfirmationResolved, snapshot)
	return snapshot.Status
}

// Expire forces the deadline check for one confirmation. The session
// loop calls it from its confirmation timer; it is a no-op before the
// deadline or after a terminal resolution.
func (m *Manager) Expire(ctx context.Context, id string) Status {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return StatusExpired
	}
	if p.Status.terminal() {
		status := p.Status
		m.mu.Unlock()
		return status
	}
	if m.now().Before(p.Deadline) {
		m.mu.Unlock()
		return StatusPending
	}
	p.Status = StatusExpired
	p.Reason = "deadline"
	snapshot := *p
	m.mu.Unlock()

	m.finishExpired(ctx, snapshot)
	return StatusExpired
}

// CancelAll expires every pending confirmation, used on hangup.
func (m *Manager) CancelAll(ctx context.Context, reason string) {
	m.mu.Lock()
	var expired []Pending
	for _, p := range m.pending {
		if p.Status.terminal() {
			continue
		}
		p.Status = StatusExpired
		p.Reason = reason
		expired = append(expired, *p)
	}
	m.mu.Unlock()

	for _, snapshot := range expired {
		m.finishExpired(ctx, snapshot)
	}
}

// Get returns a copy of the confirmation, or false if unknown.
func (m *Manager) Get(id string) (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

// HasConfirmed reports whether a confirmed confirmation of the given
// payload kind exists. The PHI policy asks this for audio overrides.
func (m *Manager) HasConfirmed(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.Status == StatusConfirmed && p.Payload.Kind == kind {
			return true
		}
	}
	return false
}

// Consume removes a terminal confirmation so a grant cannot be reused
// on a later turn.
func (m *Manager) Consume(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[id]; ok && p.Status.terminal() {
		delete(m.pending, id)
	}
}

// ConsumeKind removes every terminal confirmation of the given kind.
// Called at turn boundaries to retire single-turn audio overrides.
func (m *Manager) ConsumeKind(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.pending {
		if p.Payload.Kind == kind && p.Status.terminal() {
			delete(m.pending, id)
		}
	}
}

// Timeout returns the configured confirmation window.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

func (m *Manager) finishExpired(ctx context.Context, snapshot Pending) {
	observability.IncrCounter(observability.CounterConfirmationExpired)
	m.logger.InfoTag("CONFIRM", "expired id=%s kind=%s reason=%s",
		snapshot.ID, snapshot.Payload.Kind, snapshot.Reason)
	m.audit(ctx, audit.TypeConfirmationExpired, snapshot)
	m.publish(eventbus.EventConfirmationResolved, snapshot)
}

func (m *Manager) audit(ctx context.Context, eventType string, p Pending) {
	if m.emitter == nil {
		return
	}
	_ = m.emitter.Emit(ctx, audit.Event{
		SessionID: m.sessionID,
		Type:      eventType,
		Payload: map[string]interface{}{
			"confirmation_id": p.ID,
			"kind":            p.Payload.Kind,
			"summary":         p.Payload.Summary,
			"reason":          p.Reason,
			"deadline":        p.Deadline.UTC().Format(time.RFC3339Nano),
		},
	})
}

func (m *Manager) publish(topic string, p Pending) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, eventbus.ConfirmationEventData{
		SessionID:      m.sessionID,
		ConfirmationID: p.ID,
		Kind:           p.Payload.Kind,
		Status:         string(p.Status),
		Deadline:       p.Deadline,
	})
}
