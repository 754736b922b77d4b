package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/narrative"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIConfig configures the OpenAI explainer
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional, for compatible gateways
}

// OpenAIExplainer generates narratives with the chat completions API
type OpenAIExplainer struct {
	client openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIExplainer creates an OpenAI explainer
func NewOpenAIExplainer(cfg OpenAIConfig, log zerolog.Logger) (*OpenAIExplainer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The rate gate owns retries
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIExplainer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		log:    log.With().Str("client", "openai").Str("model", cfg.Model).Logger(),
	}, nil
}

// Name implements domain.Explainer
func (e *OpenAIExplainer) Name() string { return "openai" }

// Explain implements domain.Explainer
func (e *OpenAIExplainer) Explain(ctx context.Context, d domain.Delta, style domain.StyleContext) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(narrative.SystemPrompt(style)),
			openai.UserMessage(narrative.UserPrompt(d, style)),
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(maxOutputTokens),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("OpenAI request failed")
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("openai.chat", apiErr.StatusCode, err)
		}
		return "", classifyTransport(ctx, "openai.chat", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewGenerationError(domain.GenerationMalformed, "openai.chat", errors.New("response has no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", domain.NewGenerationError(domain.GenerationMalformed, "openai.chat", errors.New("response has no content"))
	}
	return text, nil
}
