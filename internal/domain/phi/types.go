// Package phi owns the audio-safety policy for protected health
// information: which parts of a response may be spoken, and which are
// diverted to the screen.
package phi

import "clinivoice-server-go/internal/domain/action"

// ContentSpan is one unit of outbound response text with its PHI
// classification. Classification may come from the regex detector in
// this package or from an external NLP service; the policy only reads
// the flags.
type ContentSpan struct {
	Text     string `json:"text"`
	IsPHI    bool   `json:"is_phi"`
	Category string `json:"category,omitempty"`
}

// ResponseCandidate is the system's proposed reply before the policy
// has ruled on it.
type ResponseCandidate struct {
	Spans                []ContentSpan  `json:"spans"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	Action               action.Payload `json:"action,omitempty"`
}

// Decision is the policy's ruling on a candidate. Display always
// carries the full text; Speech carries what may reach the TTS
// boundary, with blocked spans replaced by the placeholder sentence.
type Decision struct {
	Speech       string `json:"speech"`
	Display      string `json:"display"`
	BlockedSpans int    `json:"blocked_spans"`
	OverrideUsed bool   `json:"override_used"`
}
