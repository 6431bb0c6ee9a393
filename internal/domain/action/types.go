// Package action defines the payloads that execute against clinical
// systems and the executor boundary that runs them.
package action

// Payload kinds. High-risk kinds are gated behind verbal confirmation;
// the two non-clinical kinds drive the audio-override and mode-switch
// protocols and never reach the executor.
const (
	KindLabOrder         = "lab_order"
	KindMedicationRefill = "medication_refill"
	KindNoteUpdate       = "note_update"
	KindNavigation       = "navigation"
	KindAudioOverride    = "audio_override"
	KindModeSwitch       = "mode_switch"
)

// Payload describes what would actually execute if confirmed, e.g.
// "order CBC stat".
type Payload struct {
	Kind    string            `json:"kind"`
	Summary string            `json:"summary"`
	Args    map[string]string `json:"args,omitempty"`
}

// HighRisk reports whether the payload requires verbal confirmation
// before execution.
func (p Payload) HighRisk() bool {
	switch p.Kind {
	case KindLabOrder, KindMedicationRefill:
		return true
	}
	return p.Args["controlled_substance"] == "true"
}

// ExecutionResult is what the executor reports back for the spoken
// acknowledgment.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
