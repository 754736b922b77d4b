package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/narrative"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini explainer
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional, used by tests
}

// GeminiExplainer generates narratives with the Gemini API
type GeminiExplainer struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiExplainer creates a Gemini explainer
func NewGeminiExplainer(ctx context.Context, cfg GeminiConfig, log zerolog.Logger) (*GeminiExplainer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/",
			APIVersion: "v1beta",
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiExplainer{
		client: client,
		model:  cfg.Model,
		log:    log.With().Str("client", "gemini").Str("model", cfg.Model).Logger(),
	}, nil
}

// Name implements domain.Explainer
func (e *GeminiExplainer) Name() string { return "gemini" }

// Explain implements domain.Explainer
func (e *GeminiExplainer) Explain(ctx context.Context, d domain.Delta, style domain.StyleContext) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: narrative.SystemPrompt(style)}},
		},
		Temperature:     genai.Ptr(float32(0.3)),
		MaxOutputTokens: maxOutputTokens,
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(narrative.UserPrompt(d, style)), config)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("Gemini request failed")
		if code, ok := geminiStatus(err); ok {
			return "", classifyStatus("gemini.generate", code, err)
		}
		return "", classifyTransport(ctx, "gemini.generate", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.NewGenerationError(domain.GenerationMalformed, "gemini.generate",
			errors.New("response has no text"))
	}
	return text, nil
}

func geminiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
