package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// persistTimeout bounds recording a cycle once its own context is gone
const persistTimeout = 10 * time.Second

// Differ computes deltas between adjacent snapshots
type Differ interface {
	Diff(before, after *domain.Snapshot) ([]domain.Delta, error)
}

// InsightGenerator produces the narrative for one delta
type InsightGenerator interface {
	Generate(ctx context.Context, delta domain.Delta, style domain.StyleContext) (domain.Insight, error)
}

// MonitorConfig tunes one cycle
type MonitorConfig struct {
	FetchTimeout time.Duration
	Persona      string
}

// Monitor runs fetch, diff, filter and generate as one cycle
type Monitor struct {
	fetcher   domain.HoldingsFetcher
	store     domain.SnapshotStore
	detector  Differ
	filter    insights.Filter
	generator InsightGenerator
	history   domain.InsightHistory
	recorder  domain.CycleRecorder
	sinks     []domain.CycleSink
	state     *State
	cfg       MonitorConfig
	now       func() time.Time
	log       zerolog.Logger
}

// NewMonitor wires a monitor. Every dependency is required.
func NewMonitor(
	fetcher domain.HoldingsFetcher,
	store domain.SnapshotStore,
	detector Differ,
	filter insights.Filter,
	generator InsightGenerator,
	history domain.InsightHistory,
	recorder domain.CycleRecorder,
	state *State,
	cfg MonitorConfig,
	log zerolog.Logger,
) *Monitor {
	return &Monitor{
		fetcher:   fetcher,
		store:     store,
		detector:  detector,
		filter:    filter,
		generator: generator,
		history:   history,
		recorder:  recorder,
		state:     state,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("component", "monitor").Logger(),
	}
}

// AddSink registers a receiver for every finished cycle record
func (m *Monitor) AddSink(sink domain.CycleSink) {
	m.sinks = append(m.sinks, sink)
}

// SetClock replaces the time source (tests)
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// State returns the monitoring state
func (m *Monitor) State() *State {
	return m.state
}

// cycle carries one run through its stages
type cycle struct {
	rec      domain.CycleRunRecord
	snapshot *domain.Snapshot
	deltas   []domain.Delta
	selected []domain.Delta
	log      zerolog.Logger
}

func (c *cycle) fail(outcome domain.Outcome, stage domain.Stage, err error) {
	c.rec.Outcome = outcome
	c.rec.FailedStage = stage
	c.rec.ErrorKind = domain.ErrorKind(err)
	c.rec.Error = err.Error()
}

// RunCycle executes one monitoring cycle and returns its record. A call made
// while another cycle runs is skipped with domain.ErrCycleInProgress.
func (m *Monitor) RunCycle(ctx context.Context) (domain.CycleRunRecord, error) {
	if err := m.state.begin(); err != nil {
		m.log.Info().Err(err).Msg("Cycle skipped")
		return domain.CycleRunRecord{}, err
	}

	c := &cycle{rec: domain.CycleRunRecord{
		ID:        uuid.New().String(),
		StartedAt: m.now().UTC(),
		Outcome:   domain.OutcomeSuccess,
		Insights:  []domain.Insight{},
	}}
	c.log = m.log.With().Str("cycle_id", c.rec.ID).Logger()
	c.log.Info().Msg("Cycle started")

	m.runStages(ctx, c)

	c.rec.FinishedAt = m.now().UTC()
	if c.rec.Outcome != domain.OutcomeSuccess && c.rec.Outcome != domain.OutcomePartial {
		m.state.setStage(domain.StageFailed)
	}
	m.persist(ctx, c)
	m.state.finish(c.rec)
	m.deliver(ctx, c)

	event := c.log.Info()
	if c.rec.Outcome.Failed() {
		event = c.log.Warn()
	}
	event.
		Str("outcome", string(c.rec.Outcome)).
		Str("failed_stage", string(c.rec.FailedStage)).
		Str("error_kind", c.rec.ErrorKind).
		Int("deltas", c.rec.DeltaCount).
		Int("selected", c.rec.SelectedCount).
		Int("insights", len(c.rec.Insights)).
		Dur("duration_ms", c.rec.Duration()).
		Msg("Cycle finished")

	return c.rec, nil
}

// stageOutcome is the failed outcome reported when a stage panics
var stageOutcome = map[domain.Stage]domain.Outcome{
	domain.StageFetching:   domain.OutcomeFetchFailed,
	domain.StageDiffing:    domain.OutcomeStoreFailed,
	domain.StageFiltering:  domain.OutcomeStoreFailed,
	domain.StageGenerating: domain.OutcomeGenerationFailed,
}

// runStages drives the cycle through its stages. A panic in any collaborator
// fails the cycle with an internal error instead of unwinding past RunCycle,
// so the record is still persisted and the single-flight guard released.
func (m *Monitor) runStages(ctx context.Context, c *cycle) {
	stages := []struct {
		stage domain.Stage
		run   func(context.Context, *cycle) bool
	}{
		{domain.StageFetching, m.fetch},
		{domain.StageDiffing, m.diff},
		{domain.StageFiltering, m.selectDeltas},
		{domain.StageGenerating, m.generate},
	}

	current := domain.StageFetching
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("stage", string(current)).
				Interface("panic", r).
				Msg("Cycle stage panicked")
			c.fail(stageOutcome[current], current, fmt.Errorf("panic in %s: %v", current, r))
		}
	}()

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			c.fail(domain.OutcomeCancelled, s.stage, err)
			return
		}
		current = s.stage
		m.state.setStage(s.stage)
		if !s.run(ctx, c) {
			return
		}
	}
}

func (m *Monitor) fetch(ctx context.Context, c *cycle) bool {
	fetchCtx := ctx
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	snap, err := m.fetcher.Fetch(fetchCtx)
	if err == nil && snap == nil {
		err = domain.NewFetchError(domain.FetchMalformed, m.fetcher.Name(), errors.New("no snapshot returned"))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.fail(domain.OutcomeCancelled, domain.StageFetching, ctxErr)
			return false
		}
		m.state.fetchFailed(err)
		c.fail(domain.OutcomeFetchFailed, domain.StageFetching, err)
		return false
	}

	m.state.fetchSucceeded()
	c.snapshot = snap
	c.log.Debug().
		Str("stage", string(domain.StageFetching)).
		Int("holdings", snap.Len()).
		Dur("duration_ms", time.Since(start)).
		Msg("Holdings fetched")
	return true
}

func (m *Monitor) diff(ctx context.Context, c *cycle) bool {
	previous, err := m.store.Latest(ctx)
	if err != nil {
		c.fail(domain.OutcomeStoreFailed, domain.StageDiffing, err)
		return false
	}

	id, err := m.store.Save(ctx, c.snapshot)
	if err != nil {
		c.fail(domain.OutcomeStoreFailed, domain.StageDiffing, err)
		return false
	}
	c.rec.SnapshotID = id

	if previous == nil {
		c.log.Info().Int64("snapshot_id", id).Msg("First snapshot stored, nothing to compare")
		return false
	}

	deltas, err := m.detector.Diff(previous, c.snapshot)
	if err != nil {
		c.fail(domain.OutcomeStoreFailed, domain.StageDiffing,
			domain.NewStoreError(domain.StoreConflict, "monitor.diff", err))
		return false
	}
	c.deltas = deltas
	c.rec.DeltaCount = len(deltas)
	return len(deltas) > 0
}

func (m *Monitor) selectDeltas(ctx context.Context, c *cycle) bool {
	now := m.now().UTC()
	recent, err := m.history.RecentSince(ctx, now.Add(-m.filter.Cooldown))
	if err != nil {
		c.fail(domain.OutcomeStoreFailed, domain.StageFiltering, err)
		return false
	}

	c.selected = m.filter.Select(c.deltas, recent, now)
	c.rec.SelectedCount = len(c.selected)
	c.log.Debug().
		Str("stage", string(domain.StageFiltering)).
		Int("deltas", len(c.deltas)).
		Int("recent", len(recent)).
		Int("selected", len(c.selected)).
		Msg("Deltas filtered")
	return len(c.selected) > 0
}

func (m *Monitor) generate(ctx context.Context, c *cycle) bool {
	var failures []error
	for _, d := range c.selected {
		if err := ctx.Err(); err != nil {
			c.fail(domain.OutcomeCancelled, domain.StageGenerating, err)
			return false
		}

		style := risk.Style(m.cfg.Persona, c.snapshot, d)
		ins, err := m.generator.Generate(ctx, d, style)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.fail(domain.OutcomeCancelled, domain.StageGenerating, ctxErr)
				return false
			}
			c.log.Warn().Err(err).Str("symbol", d.Symbol).Str("kind", string(d.Kind)).Msg("Insight generation failed")
			failures = append(failures, fmt.Errorf("%s: %w", d.Symbol, err))
			continue
		}

		ins.ID = uuid.New().String()
		ins.CycleID = c.rec.ID
		ins.EmittedAt = m.now().UTC()
		c.rec.Insights = append(c.rec.Insights, ins)
	}

	if len(failures) > 0 {
		outcome := domain.OutcomePartial
		if len(c.rec.Insights) == 0 {
			outcome = domain.OutcomeGenerationFailed
		}
		c.rec.Outcome = outcome
		c.rec.FailedStage = domain.StageGenerating
		c.rec.ErrorKind = domain.ErrorKind(failures[0])
		msgs := make([]string, len(failures))
		for i, err := range failures {
			msgs[i] = err.Error()
		}
		c.rec.Error = strings.Join(msgs, "; ")
	}
	return true
}

// persist records the cycle even when ctx was cancelled, so the record is never lost
func (m *Monitor) persist(ctx context.Context, c *cycle) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := guard(func() error { return m.recorder.Record(pctx, c.rec) })
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to record cycle")
	}
}

func (m *Monitor) deliver(ctx context.Context, c *cycle) {
	dctx := context.WithoutCancel(ctx)
	for _, sink := range m.sinks {
		if err := guard(func() error { return sink.Deliver(dctx, c.rec) }); err != nil {
			c.log.Warn().Err(err).Msg("Cycle sink delivery failed")
		}
	}
}

// guard turns a panic in fn into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
