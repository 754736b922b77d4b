package insights

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/ratelimit"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// GeneratorConfig bounds generation
type GeneratorConfig struct {
	Timeout       time.Duration
	Bucket        float64
	CacheSize     int
	CacheTTL      time.Duration
	RatePerMinute int
	QueueDepth    int
}

// CacheStats is a point-in-time view of the narrative cache
type CacheStats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Generator produces insights, serving repeated fingerprints from cache
type Generator struct {
	explainer domain.Explainer
	cache     *expirable.LRU[string, domain.Insight]
	capacity  int
	gate      *ratelimit.Gate
	timeout   time.Duration
	bucket    float64
	now       func() time.Time
	log       zerolog.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewGenerator creates a generator around an explainer
func NewGenerator(explainer domain.Explainer, cfg GeneratorConfig, log zerolog.Logger) *Generator {
	if cfg.Bucket <= 0 {
		cfg.Bucket = DefaultBucket
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1
	}
	g := &Generator{
		explainer: explainer,
		capacity:  cfg.CacheSize,
		gate:      ratelimit.NewGate(cfg.RatePerMinute, cfg.QueueDepth),
		timeout:   cfg.Timeout,
		bucket:    cfg.Bucket,
		now:       time.Now,
		log:       log.With().Str("component", "insight_generator").Str("provider", explainer.Name()).Logger(),
	}
	// A non-positive TTL disables expiry; capacity evictions and expiry both count
	g.cache = expirable.NewLRU[string, domain.Insight](cfg.CacheSize, func(string, domain.Insight) {
		g.evictions.Add(1)
	}, cfg.CacheTTL)
	return g
}

// SetClock replaces the time source stamped on generated insights (tests)
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Provider returns the explainer name
func (g *Generator) Provider() string {
	return g.explainer.Name()
}

// CacheStats returns cache counters
func (g *Generator) CacheStats() CacheStats {
	return CacheStats{
		Size:      g.cache.Len(),
		Capacity:  g.capacity,
		Hits:      g.hits.Load(),
		Misses:    g.misses.Load(),
		Evictions: g.evictions.Load(),
	}
}

// Generate returns an insight for delta. A cached fingerprint is served without
// calling the explainer; the returned insight carries the current delta and Cached=true.
// ID, CycleID and EmittedAt are left for the caller.
func (g *Generator) Generate(ctx context.Context, delta domain.Delta, style domain.StyleContext) (domain.Insight, error) {
	fp := Fingerprint(delta, g.bucket)

	if cached, ok := g.cache.Get(fp); ok {
		g.hits.Add(1)
		cached.Delta = delta
		cached.Cached = true
		g.log.Debug().Str("symbol", delta.Symbol).Str("fingerprint", fp[:12]).Msg("Insight served from cache")
		return cached, nil
	}
	g.misses.Add(1)

	genCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	release, err := g.gate.Acquire(genCtx)
	if err != nil {
		g.log.Warn().Err(err).Str("symbol", delta.Symbol).Msg("Generation throttled")
		return domain.Insight{}, err
	}
	defer release()

	start := time.Now()
	text, err := g.explainer.Explain(genCtx, delta, style)
	if err != nil {
		return domain.Insight{}, classify(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Insight{}, domain.NewGenerationError(domain.GenerationMalformed, g.explainer.Name(),
			errors.New("empty narrative"))
	}

	insight := domain.Insight{
		Fingerprint: fp,
		Delta:       delta,
		Narrative:   text,
		Provider:    g.explainer.Name(),
		GeneratedAt: g.now().UTC(),
	}
	g.cache.Add(fp, insight)

	g.log.Debug().
		Str("symbol", delta.Symbol).
		Str("kind", string(delta.Kind)).
		Dur("duration_ms", time.Since(start)).
		Msg("Insight generated")

	return insight, nil
}

// classify maps explainer failures onto GenerationError kinds
func classify(err error) error {
	var ge *domain.GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return domain.NewGenerationError(domain.GenerationUnavailable, "explain", err)
}
