package eventbus

import "time"

// Topic names. The duplex topic is the internal DUPLEX_STATE_CHANGED
// signal: the mode controller and confirmation manager subscribe to
// learn when PHI-safe windows open and close.
const (
	EventDuplexStateChanged = "duplex:state_changed"
	EventDuplexConflict     = "duplex:conflict"

	EventConfirmationRequested = "confirmation:requested"
	EventConfirmationResolved  = "confirmation:resolved"

	EventModeSwitched = "mode:switched"

	EventPHIBlocked  = "phi:blocked"
	EventPHIOverride = "phi:override_spoken"

	EventSessionClosed = "session:closed"

	EventSystemError = "system:error"
)

type DuplexEventData struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type ConfirmationEventData struct {
	SessionID      string    `json:"session_id"`
	ConfirmationID string    `json:"confirmation_id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Deadline       time.Time `json:"deadline"`
}

type ModeEventData struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type PHIEventData struct {
	SessionID    string `json:"session_id"`
	TurnID       string `json:"turn_id"`
	BlockedSpans int    `json:"blocked_spans"`
	Category     string `json:"category,omitempty"`
}

type SessionEventData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type SystemEventData struct {
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
