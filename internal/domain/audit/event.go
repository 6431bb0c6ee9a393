package audit

import "time"

// Event types. The safety-relevant set is fixed; anything new must be
// added here rather than free-formed by callers.
const (
	TypePHIBlocked            = "PHI_BLOCKED"
	TypePHISpokenWithOverride = "PHI_SPOKEN_WITH_OVERRIDE"
	TypeModeSwitch            = "MODE_SWITCH"
	TypeConfirmationRequested = "CONFIRMATION_REQUESTED"
	TypeConfirmationGranted   = "CONFIRMATION_GRANTED"
	TypeConfirmationDenied    = "CONFIRMATION_DENIED"
	TypeConfirmationExpired   = "CONFIRMATION_EXPIRED"
	TypeDuplexConflict        = "DUPLEX_CONFLICT"
	TypeOrderExecuted         = "ORDER_EXECUTED"
	TypeSessionStarted        = "SESSION_STARTED"
	TypeSessionEnded          = "SESSION_ENDED"
)

// Event is a single audit entry. Payload values must be PHI-free by
// the time they reach a sink; the emitter runs every string value
// through the redactor before writing.
type Event struct {
	ID        string                 `json:"id"`
	Seq       uint64                 `json:"seq"`
	SessionID string                 `json:"session_id"`
	TurnID    string                 `json:"turn_id,omitempty"`
	Type      string                 `json:"type"`
	Mode      string                 `json:"mode,omitempty"`
	At        time.Time              `json:"at"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
