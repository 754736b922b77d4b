// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel-insights/internal/clients/kite"
	"github.com/aristath/sentinel-insights/internal/clients/llm"
	"github.com/aristath/sentinel-insights/internal/clients/tradernet"
	"github.com/aristath/sentinel-insights/internal/clients/tradernet/sdk"
	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/changes"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/modules/narrative"
	"github.com/aristath/sentinel-insights/internal/reliability"
	"github.com/aristath/sentinel-insights/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates the broker client, the explainer and the monitoring pipeline
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.SnapshotRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	// Clients
	fetcher, err := NewFetcher(cfg, log)
	if err != nil {
		return err
	}
	container.Fetcher = fetcher
	if tn, ok := fetcher.(*tradernet.Fetcher); ok {
		container.closers = append(container.closers, func() error { tn.Close(); return nil })
	}

	explainer, err := NewExplainer(ctx, cfg.Generation, log)
	if err != nil {
		return err
	}
	container.Explainer = explainer

	// Optional snapshot archive
	if cfg.Archive.Enabled() {
		r2, err := reliability.NewR2Client(ctx, reliability.R2Config{
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshot archive: %w", err)
		}
		container.Archiver = reliability.NewSnapshotArchiver(r2, log)
		container.SnapshotRepo.SetArchiver(container.Archiver, cfg.Archive.Timeout)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Snapshot archive enabled")
	}

	// Pipeline
	container.Detector = changes.NewDetector(cfg.Monitor.ValueThreshold)
	container.Generator = insights.NewGenerator(explainer, insights.GeneratorConfig{
		Timeout:       cfg.Generation.Timeout,
		Bucket:        cfg.Insights.Bucket,
		CacheSize:     cfg.Insights.CacheSize,
		CacheTTL:      cfg.Insights.CacheTTL,
		RatePerMinute: cfg.Generation.RatePerMinute,
		QueueDepth:    cfg.Generation.QueueDepth,
	}, log)

	container.State = scheduler.NewState(cfg.Monitor.DegradedAfter)
	container.Monitor = scheduler.NewMonitor(
		fetcher,
		container.SnapshotRepo,
		container.Detector,
		insights.Filter{
			SignificanceThreshold: cfg.Insights.SignificanceThreshold,
			Cooldown:              cfg.Insights.Cooldown,
			Bucket:                cfg.Insights.Bucket,
		},
		container.Generator,
		container.InsightRepo,
		container.CycleRepo,
		container.State,
		scheduler.MonitorConfig{
			FetchTimeout: cfg.Monitor.FetchTimeout,
			Persona:      narrative.DefaultPersona,
		},
		log,
	)
	container.Monitor.AddSink(scheduler.NewLogSink(log))
	container.Scheduler = scheduler.New(container.Monitor, cfg.Monitor.PollInterval, log)

	log.Info().
		Str("broker", fetcher.Name()).
		Str("provider", explainer.Name()).
		Msg("Services initialized")
	return nil
}

// NewFetcher returns the holdings reader for the configured broker
func NewFetcher(cfg *config.Config, log zerolog.Logger) (domain.HoldingsFetcher, error) {
	switch cfg.Broker {
	case config.BrokerKite:
		return kite.NewClient(kite.Config{
			APIKey:      cfg.Kite.APIKey,
			AccessToken: cfg.Kite.AccessToken,
			BaseURL:     cfg.Kite.BaseURL,
			Timeout:     cfg.Monitor.FetchTimeout,
		}, log), nil
	case config.BrokerTradernet:
		return tradernet.NewFetcher(cfg.Tradernet.APIKey, cfg.Tradernet.APISecret, log,
			sdk.WithBaseURL(cfg.Tradernet.BaseURL),
			sdk.WithTimeout(cfg.Monitor.FetchTimeout),
		), nil
	}
	return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
}

// NewExplainer returns the narrative provider selected by cfg.Provider
func NewExplainer(ctx context.Context, cfg config.GenerationConfig, log zerolog.Logger) (domain.Explainer, error) {
	switch cfg.Provider {
	case config.ProviderRules, "":
		return narrative.NewRulesExplainer(), nil
	case config.ProviderGemini:
		return llm.NewGeminiExplainer(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, log)
	case config.ProviderOpenAI:
		return llm.NewOpenAIExplainer(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, log)
	case config.ProviderAnthropic:
		return llm.NewAnthropicExplainer(llm.AnthropicConfig{APIKey: cfg.AnthropicKey, Model: cfg.AnthropicModel}, log)
	}
	return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
}
