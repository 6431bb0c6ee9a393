// Package intent classifies transcribed utterances into clinical
// intents and extracts the entities needed to build action payloads.
package intent

import (
	"context"
	"fmt"

	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// Clinical intents.
const (
	IntentAddToNote        = "AddToNoteSection"
	IntentOrderLabs        = "OrderLabs"
	IntentCheckAllergies   = "CheckAllergies"
	IntentRetrieveLabs     = "RetrieveLabResults"
	IntentCreateSOAPNote   = "CreateSOAPNote"
	IntentNavigateChart    = "NavigateChart"
	IntentRefillMedication = "RefillMedication"
	IntentGenerateAVS      = "GenerateAVS"
	IntentCalculateMDM     = "CalculateMDM"
	IntentUnknown          = "Unknown"

	// Session-control intents consumed by the safety layer rather than
	// the clinical executor.
	IntentAudioOverride    = "AudioOverride"
	IntentSwitchToProvider = "SwitchToProvider"
	IntentSwitchToPatient  = "SwitchToPatient"
)

// Result is one classification. Entities are intent-specific (lab
// names, medication, dose, section).
type Result struct {
	Intent               string            `json:"intent"`
	Confidence           float64           `json:"confidence"`
	Entities             map[string]string `json:"entities,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
}

// Classifier is the NLP boundary.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// New builds the classifier selected in config.
func New(name string, cfg config.NLPConfig, logger *logging.Logger) (Classifier, error) {
	switch cfg.Type {
	case "", "rules":
		return NewRuleRouter(), nil
	case "openai":
		return NewOpenAIClassifier(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown NLP classifier type %q (provider %s)", cfg.Type, name)
	}
}

// BuildPayload turns a classification into the action payload that the
// confirmation manager and executor work with.
func BuildPayload(res Result) action.Payload {
	switch res.Intent {
	case IntentOrderLabs:
		summary := "order labs"
		if tests := res.Entities["test_names"]; tests != "" {
			summary = "order " + tests
			if p := res.Entities["priority"]; p != "" && p != "routine" {
				summary += " " + p
			}
		}
		return action.Payload{Kind: action.KindLabOrder, Summary: summary, Args: res.Entities}
	case IntentRefillMedication:
		summary := "refill medication"
		if med := res.Entities["medication"]; med != "" {
			summary = "refill " + med
			if dose := res.Entities["dose"]; dose != "" {
				summary += " " + dose
			}
		}
		return action.Payload{Kind: action.KindMedicationRefill, Summary: summary, Args: res.Entities}
	case IntentAddToNote:
		return action.Payload{Kind: action.KindNoteUpdate, Summary: "add to " + res.Entities["section"], Args: res.Entities}
	case IntentNavigateChart:
		return action.Payload{Kind: action.KindNavigation, Summary: "navigate chart", Args: res.Entities}
	case IntentAudioOverride:
		return action.Payload{Kind: action.KindAudioOverride, Summary: "read PHI aloud"}
	case IntentSwitchToProvider:
		return action.Payload{Kind: action.KindModeSwitch, Summary: "switch to provider mode"}
	default:
		return action.Payload{Kind: res.Intent, Summary: res.Intent, Args: res.Entities}
	}
}
