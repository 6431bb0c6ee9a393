package intent

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
)

const classifyPrompt = `You classify clinical voice-assistant utterances.
Reply with a single JSON object: {"intent": "...", "confidence": 0.0,
"entities": {"key": "value"}, "requires_confirmation": false}.
Valid intents: AddToNoteSection, OrderLabs, CheckAllergies,
RetrieveLabResults, CreateSOAPNote, NavigateChart, RefillMedication,
GenerateAVS, CalculateMDM, AudioOverride, SwitchToProvider,
SwitchToPatient, Unknown. Lab orders and medication refills always
require confirmation.`

// OpenAIClassifier sends utterances to a chat model and falls back to
// the rule router when the model is unreachable or returns garbage.
// Classification is advisory; the safety layer applies its own policy
// regardless of what the model says.
type OpenAIClassifier struct {
	client   *openai.Client
	model    string
	fallback *RuleRouter
	logger   *logging.Logger
}

func NewOpenAIClassifier(cfg config.NLPConfig, logger *logging.Logger) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfig, "intent.NewOpenAIClassifier", "missing api key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.ModelName
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClassifier{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		fallback: NewRuleRouter(),
		logger:   logger,
	}, nil
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		c.logger.WarnTag("INTENT", "model classify failed, using rules: %v", err)
		return c.fallback.Classify(ctx, text)
	}
	if len(resp.Choices) == 0 {
		return c.fallback.Classify(ctx, text)
	}

	var result Result
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "` \n")
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.WarnTag("INTENT", "model returned non-JSON, using rules: %v", err)
		return c.fallback.Classify(ctx, text)
	}
	if result.Intent == "" {
		result.Intent = IntentUnknown
	}
	if result.Entities == nil {
		result.Entities = map[string]string{}
	}
	return result, nil
}
