package phi

import (
	"context"
	"strings"

	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/mode"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
)

// Policy rules on response candidates before anything reaches the TTS
// boundary. Display is never blocked; only the audio path is.
type Policy struct {
	sessionID   string
	placeholder string
	speakerSafe bool
	categories  map[string]bool
	emitter     *audit.Emitter
	logger      *logging.Logger
}

func NewPolicy(sessionID string, cfg config.PolicyConfig, emitter *audit.Emitter, logger *logging.Logger) *Policy {
	categories := make(map[string]bool, len(cfg.PHICategories))
	for _, c := range cfg.PHICategories {
		categories[c] = true
	}
	placeholder := cfg.PlaceholderSentence
	if placeholder == "" {
		placeholder = "I'll display that on screen."
	}
	return &Policy{
		sessionID:   sessionID,
		placeholder: placeholder,
		speakerSafe: cfg.SpeakerSafeDefault,
		categories:  categories,
		emitter:     emitter,
		logger:      logger,
	}
}

// Placeholder returns the sentence spoken in place of blocked spans.
func (p *Policy) Placeholder() string {
	return p.placeholder
}

// Apply decides span by span whether the candidate may be spoken. A
// span is blocked when it is PHI of a sensitive category, the session
// is in patient mode with speaker-safe on, and no audio override was
// confirmed for this turn. Consecutive blocked spans collapse into one
// placeholder so the spoken output stays natural.
func (p *Policy) Apply(ctx context.Context, turnID string, candidate ResponseCandidate, currentMode mode.Mode, overrideGranted bool) Decision {
	var speech []string
	var display []string
	blocked := 0
	overrideSpoke := false
	lastWasPlaceholder := false

	for _, span := range candidate.Spans {
		display = append(display, span.Text)

		if !p.blockable(span, currentMode, overrideGranted) {
			if span.IsPHI && overrideGranted && currentMode == mode.ModePatient {
				overrideSpoke = true
			}
			speech = append(speech, span.Text)
			lastWasPlaceholder = false
			continue
		}

		blocked++
		p.auditBlocked(ctx, turnID, span, currentMode)
		if !lastWasPlaceholder {
			speech = append(speech, p.placeholder)
			lastWasPlaceholder = true
		}
	}

	if blocked > 0 {
		observability.IncrCounter(observability.CounterPHIReadbackDenials)
		p.logger.InfoTag("PHI", "session=%s turn=%s blocked %d span(s)", p.sessionID, turnID, blocked)
	}
	if overrideSpoke {
		p.auditOverride(ctx, turnID, currentMode)
	}

	return Decision{
		Speech:       joinSpans(speech),
		Display:      joinSpans(display),
		BlockedSpans: blocked,
		OverrideUsed: overrideSpoke,
	}
}

func (p *Policy) blockable(span ContentSpan, currentMode mode.Mode, overrideGranted bool) bool {
	if !span.IsPHI || !p.speakerSafe {
		return false
	}
	if currentMode == mode.ModeProvider {
		return false
	}
	if overrideGranted {
		return false
	}
	if span.Category != "" && len(p.categories) > 0 && !p.categories[span.Category] {
		return false
	}
	return true
}

func (p *Policy) auditBlocked(ctx context.Context, turnID string, span ContentSpan, currentMode mode.Mode) {
	if p.emitter == nil {
		return
	}
	_ = p.emitter.Emit(ctx, audit.Event{
		SessionID: p.sessionID,
		TurnID:    turnID,
		Type:      audit.TypePHIBlocked,
		Mode:      string(currentMode),
		Payload: map[string]interface{}{
			"category": span.Category,
			"length":   len(span.Text),
		},
	})
}

func (p *Policy) auditOverride(ctx context.Context, turnID string, currentMode mode.Mode) {
	if p.emitter == nil {
		return
	}
	_ = p.emitter.Emit(ctx, audit.Event{
		SessionID: p.sessionID,
		TurnID:    turnID,
		Type:      audit.TypePHISpokenWithOverride,
		Mode:      string(currentMode),
		Payload: map[string]interface{}{
			"mode_at_grant": string(currentMode),
		},
	})
}

func joinSpans(parts []string) string {
	joined := strings.Join(parts, " ")
	return strings.Join(strings.Fields(joined), " ")
}
