package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/narrative"
	"github.com/rs/zerolog"
)

// AnthropicConfig configures the Anthropic explainer
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional, used by tests
}

// AnthropicExplainer generates narratives with the Messages API
type AnthropicExplainer struct {
	client anthropic.Client
	model  string
	log    zerolog.Logger
}

// NewAnthropicExplainer creates an Anthropic explainer
func NewAnthropicExplainer(cfg AnthropicConfig, log zerolog.Logger) (*AnthropicExplainer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicExplainer{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		log:    log.With().Str("client", "anthropic").Str("model", cfg.Model).Logger(),
	}, nil
}

// Name implements domain.Explainer
func (e *AnthropicExplainer) Name() string { return "anthropic" }

// Explain implements domain.Explainer
func (e *AnthropicExplainer) Explain(ctx context.Context, d domain.Delta, style domain.StyleContext) (string, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: maxOutputTokens,
		System:    []anthropic.TextBlockParam{{Text: narrative.SystemPrompt(style)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(narrative.UserPrompt(d, style))),
		},
	})
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("Anthropic request failed")
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("anthropic.messages", apiErr.StatusCode, err)
		}
		return "", classifyTransport(ctx, "anthropic.messages", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", domain.NewGenerationError(domain.GenerationMalformed, "anthropic.messages", errors.New("response has no text blocks"))
	}
	return text, nil
}
