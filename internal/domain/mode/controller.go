package mode

import (
	"context"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
)

type Mode string

const (
	ModePatient  Mode = "patient"
	ModeProvider Mode = "provider"
)

// Revert reasons recorded on MODE_SWITCH audit events.
const (
	ReasonExplicit   = "explicit"
	ReasonAutoExpiry = "auto_expiry"
	ReasonSessionEnd = "session_end"
)

// Controller owns the session mode and its expiry. Patient is the
// default and the safe harbor: provider mode is always time-boxed and
// lapses back to patient at the first turn boundary past the TTL. The
// mode is session state, never process state; concurrent calls carry
// independent controllers.
type Controller struct {
	mu sync.Mutex

	sessionID string
	mode      Mode
	ttl       time.Duration
	expiresAt time.Time
	emitter   *audit.Emitter
	bus       evbus.Bus
	logger    *logging.Logger
	now       func() time.Time
}

func NewController(sessionID string, ttl time.Duration, emitter *audit.Emitter, bus evbus.Bus, logger *logging.Logger) *Controller {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Controller{
		sessionID: sessionID,
		mode:      ModePatient,
		ttl:       ttl,
		emitter:   emitter,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock. Tests drive expiry with it.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Current returns the mode without touching expiry. Expiry is applied
// only at turn boundaries via CheckExpiry.
func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ExpiresAt returns the provider-mode deadline, zero in patient mode.
func (c *Controller) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// ActivateProvider switches to provider mode. The caller has already
// collected the confirmed mode-switch confirmation; this method only
// applies the transition and starts the TTL.
func (c *Controller) ActivateProvider(ctx context.Context) time.Time {
	c.mu.Lock()
	from := c.mode
	c.mode = ModeProvider
	c.expiresAt = c.now().Add(c.ttl)
	expires := c.expiresAt
	c.mu.Unlock()

	observability.IncrCounter(observability.CounterProviderModeSwitches)
	c.logger.InfoTag("MODE", "session=%s %s -> provider expires=%s",
		c.sessionID, from, expires.Format(time.RFC3339))
	c.record(ctx, from, ModeProvider, ReasonExplicit, expires)
	return expires
}

// RevertToPatient switches back on explicit request or hangup.
func (c *Controller) RevertToPatient(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.mode == ModePatient {
		c.mu.Unlock()
		return
	}
	from := c.mode
	c.mode = ModePatient
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	c.logger.InfoTag("MODE", "session=%s %s -> patient reason=%s", c.sessionID, from, reason)
	c.record(ctx, from, ModePatient, reason, time.Time{})
}

// CheckExpiry applies the TTL at a turn boundary. Returns true when it
// auto-reverted. No background timer exists for mode expiry; every
// turn passes through here first.
func (c *Controller) CheckExpiry(ctx context.Context) bool {
	c.mu.Lock()
	if c.mode != ModeProvider || c.now().Before(c.expiresAt) {
		c.mu.Unlock()
		return false
	}
	from := c.mode
	c.mode = ModePatient
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	c.logger.InfoTag("MODE", "session=%s provider ttl lapsed, reverting", c.sessionID)
	c.record(ctx, from, ModePatient, ReasonAutoExpiry, time.Time{})
	return true
}

func (c *Controller) record(ctx context.Context, from, to Mode, reason string, expires time.Time) {
	if c.emitter != nil {
		payload := map[string]interface{}{
			"from":   string(from),
			"to":     string(to),
			"reason": reason,
		}
		if !expires.IsZero() {
			payload["expires_at"] = expires.UTC().Format(time.RFC3339Nano)
		}
		_ = c.emitter.Emit(ctx, audit.Event{
			SessionID: c.sessionID,
			Type:      audit.TypeModeSwitch,
			Mode:      string(to),
			Payload:   payload,
		})
	}
	if c.bus != nil {
		c.bus.Publish(eventbus.EventModeSwitched, eventbus.ModeEventData{
			SessionID: c.sessionID,
			From:      string(from),
			To:        string(to),
			Reason:    reason,
			ExpiresAt: expires,
		})
	}
}
