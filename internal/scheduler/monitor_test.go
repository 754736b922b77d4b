package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/changes"
	"github.com/aristath/sentinel-insights/internal/modules/cycles"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/modules/snapshots"
	testingpkg "github.com/aristath/sentinel-insights/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	monitor   *Monitor
	state     *State
	fetcher   *testingpkg.MockFetcher
	explainer *testingpkg.MockExplainer
	snapshots *snapshots.Repository
	cycles    *cycles.Repository
	sink      *testingpkg.RecordingSink

	mu  sync.Mutex
	now time.Time
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func newHarness(t *testing.T, generator InsightGenerator) *harness {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	snapDB, cleanupSnap := testingpkg.NewTestDB(t, database.NameSnapshots)
	t.Cleanup(cleanupSnap)
	insightDB, cleanupInsight := testingpkg.NewTestDB(t, database.NameInsights)
	t.Cleanup(cleanupInsight)

	h := &harness{
		state:     NewState(3),
		fetcher:   testingpkg.NewMockFetcher(),
		explainer: testingpkg.NewMockExplainer(),
		snapshots: snapshots.NewRepository(snapDB.Conn(), 10, log),
		cycles:    cycles.NewRepository(insightDB.Conn(), log),
		sink:      &testingpkg.RecordingSink{},
		now:       testingpkg.BaseTime,
	}
	if generator == nil {
		generator = insights.NewGenerator(h.explainer, insights.GeneratorConfig{
			Timeout:       5 * time.Second,
			Bucket:        0.05,
			CacheSize:     16,
			CacheTTL:      time.Hour,
			RatePerMinute: 600,
			QueueDepth:    4,
		}, log)
	}

	h.monitor = NewMonitor(
		h.fetcher,
		h.snapshots,
		changes.NewDetector(0.05),
		insights.Filter{SignificanceThreshold: 0.05, Cooldown: 24 * time.Hour, Bucket: 0.05},
		generator,
		insights.NewRepository(insightDB.Conn(), log),
		h.cycles,
		h.state,
		MonitorConfig{FetchTimeout: 5 * time.Second, Persona: "mentor"},
		log,
	)
	h.monitor.SetClock(h.clock)
	h.monitor.AddSink(h.sink)
	return h
}

func (h *harness) run(t *testing.T) domain.CycleRunRecord {
	t.Helper()
	rec, err := h.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	h.advance(15 * time.Minute)
	return rec
}

func aapl(t *testing.T, at time.Time, qty int64) *domain.Snapshot {
	return testingpkg.NewSnapshot(t, at, testingpkg.NewHolding("AAPL", qty, 100), testingpkg.NewHolding("MSFT", 5, 300))
}

func TestMonitor_FirstCycleStoresSnapshotOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.QueueSnapshot(aapl(t, testingpkg.BaseTime, 10))

	rec := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	assert.NotZero(t, rec.SnapshotID)
	assert.Zero(t, rec.DeltaCount)
	assert.Empty(t, rec.Insights)
	assert.Zero(t, h.explainer.Calls())

	stored, err := h.cycles.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, HealthNoNewInsights, h.state.Snapshot().Health)
}

func TestMonitor_OpenedPositionProducesInsight(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(testingpkg.NewSnapshot(t, testingpkg.BaseTime.Add(15*time.Minute),
			testingpkg.NewHolding("AAPL", 10, 100), testingpkg.NewHolding("GOOG", 5, 150), testingpkg.NewHolding("MSFT", 5, 300)))

	h.run(t)
	rec := h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, 1, rec.DeltaCount)
	require.Len(t, rec.Insights, 1)
	ins := rec.Insights[0]
	assert.Equal(t, domain.DeltaOpened, ins.Delta.Kind)
	assert.Equal(t, "GOOG", ins.Delta.Symbol)
	assert.Equal(t, rec.ID, ins.CycleID)
	assert.NotEmpty(t, ins.ID)
	assert.Equal(t, "opened GOOG", ins.Narrative)
	assert.Equal(t, HealthOK, h.state.Snapshot().Health)

	records := h.sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, rec.ID, records[1].ID)
}

func TestMonitor_CooldownSuppressesRepeatAcrossCycles(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 100)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(15*time.Minute), 110)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(30*time.Minute), 120))

	h.run(t)
	first := h.run(t)
	second := h.run(t)

	require.Len(t, first.Insights, 1)
	assert.Equal(t, domain.DeltaQuantityChanged, first.Insights[0].Delta.Kind)
	assert.Equal(t, 10.0, first.Insights[0].Delta.Magnitude)
	assert.Equal(t, 1, second.DeltaCount)
	assert.Zero(t, second.SelectedCount)
	assert.Empty(t, second.Insights)
	assert.Equal(t, domain.OutcomeSuccess, second.Outcome)
	assert.Equal(t, 1, h.explainer.Calls())
}

func TestMonitor_LargerTradeIsNotSuppressed(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(15*time.Minute), 20)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(30*time.Minute), 40))

	h.run(t)
	first := h.run(t)
	second := h.run(t)

	require.Len(t, first.Insights, 1)
	require.Len(t, second.Insights, 1)
	assert.NotEqual(t, first.Insights[0].Fingerprint, second.Insights[0].Fingerprint)
	assert.Equal(t, 2, h.explainer.Calls())
}

func TestMonitor_UnauthorizedLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueError(domain.NewFetchError(domain.FetchUnauthorized, "kite.holdings", errors.New("token expired"))).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(time.Hour), 10))
	h.run(t)

	before, err := h.snapshots.Latest(ctx)
	require.NoError(t, err)

	rec := h.run(t)

	assert.Equal(t, domain.OutcomeFetchFailed, rec.Outcome)
	assert.Equal(t, domain.StageFetching, rec.FailedStage)
	assert.Equal(t, "unauthorized", rec.ErrorKind)
	assert.Empty(t, rec.Insights)
	assert.Zero(t, h.explainer.Calls())

	after, err := h.snapshots.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	count, err := h.snapshots.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	status := h.state.Snapshot()
	assert.True(t, status.Degraded)
	assert.Equal(t, HealthDegraded, status.Health)
	assert.Contains(t, status.DegradedReason, "credentials")

	recovered := h.run(t)
	assert.Equal(t, domain.OutcomeSuccess, recovered.Outcome)
	degraded, _ := h.state.Degraded()
	assert.False(t, degraded)
}

func TestMonitor_RepeatedFailuresDegrade(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.QueueError(domain.NewFetchError(domain.FetchUnavailable, "kite.holdings", errors.New("503")))

	for i := 0; i < 2; i++ {
		h.run(t)
	}
	degraded, _ := h.state.Degraded()
	assert.False(t, degraded)

	h.run(t)
	degraded, reason := h.state.Degraded()
	assert.True(t, degraded)
	assert.Equal(t, "3 consecutive failed cycles", reason)
	assert.Equal(t, 3, h.state.Snapshot().ConsecutiveFailures)
}

func TestMonitor_OverlappingCycleIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.QueueSnapshot(aapl(t, testingpkg.BaseTime, 10))
	release := make(chan struct{})
	h.fetcher.BlockUntil(release)

	done := make(chan domain.CycleRunRecord, 1)
	go func() {
		rec, _ := h.monitor.RunCycle(context.Background())
		done <- rec
	}()
	require.Eventually(t, func() bool { return h.fetcher.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.state.Running())
	assert.Equal(t, domain.StageFetching, h.state.Stage())

	_, err := h.monitor.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrCycleInProgress)

	close(release)
	rec := <-done
	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	assert.False(t, h.state.Running())
	assert.Equal(t, domain.StageIdle, h.state.Stage())
	assert.Len(t, h.sink.Records(), 1, "skipped call produces no record")
}

func TestMonitor_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := h.monitor.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCancelled, rec.Outcome)
	assert.Equal(t, domain.StageFetching, rec.FailedStage)
	assert.Zero(t, h.fetcher.Calls())

	stored, err := h.cycles.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "cancelled cycles are still recorded")
	assert.Zero(t, h.state.Snapshot().ConsecutiveFailures)
}

func TestMonitor_CancelledDuringFetch(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.QueueSnapshot(aapl(t, testingpkg.BaseTime, 10))
	h.fetcher.BlockUntil(make(chan struct{}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for h.fetcher.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	rec, err := h.monitor.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, rec.Outcome)
	assert.Equal(t, "cancelled", rec.ErrorKind)

	count, err := h.snapshots.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMonitor_GenerationFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.explainer.SetError(domain.NewGenerationError(domain.GenerationUnavailable, "mock", errors.New("503")))
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(15*time.Minute), 20))

	h.run(t)
	rec := h.run(t)

	assert.Equal(t, domain.OutcomeGenerationFailed, rec.Outcome)
	assert.Equal(t, domain.StageGenerating, rec.FailedStage)
	assert.Equal(t, "unavailable", rec.ErrorKind)
	assert.Empty(t, rec.Insights)
	assert.Equal(t, 1, h.state.Snapshot().ConsecutiveFailures)
}

type flakyGenerator struct {
	failFor string
}

func (g *flakyGenerator) Generate(_ context.Context, d domain.Delta, _ domain.StyleContext) (domain.Insight, error) {
	if d.Symbol == g.failFor {
		return domain.Insight{}, domain.NewGenerationError(domain.GenerationThrottled, "flaky", errors.New("queue full"))
	}
	return domain.Insight{Delta: d, Narrative: "ok", Provider: "flaky", Fingerprint: insights.Fingerprint(d, 0.05)}, nil
}

func TestMonitor_PartialGeneration(t *testing.T) {
	h := newHarness(t, &flakyGenerator{failFor: "MSFT"})
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(testingpkg.NewSnapshot(t, testingpkg.BaseTime.Add(15*time.Minute), testingpkg.NewHolding("AAPL", 20, 100)))

	h.run(t)
	rec := h.run(t)

	assert.Equal(t, domain.OutcomePartial, rec.Outcome)
	assert.Equal(t, 2, rec.SelectedCount)
	require.Len(t, rec.Insights, 1)
	assert.Equal(t, "AAPL", rec.Insights[0].Delta.Symbol)
	assert.Equal(t, "throttled", rec.ErrorKind)
	assert.Contains(t, rec.Error, "MSFT")
	assert.False(t, rec.Outcome.Failed())
}

func TestMonitor_StoppedStateRejectsCycles(t *testing.T) {
	h := newHarness(t, nil)
	h.state.Close()

	_, err := h.monitor.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, h.fetcher.Calls())
}

type panickyFetcher struct {
	domain.HoldingsFetcher
	panics int
}

func (f *panickyFetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	if f.panics > 0 {
		f.panics--
		panic("broker client nil map")
	}
	return f.HoldingsFetcher.Fetch(ctx)
}

func TestMonitor_PanicInFetchFailsCycleAndReleasesSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.monitor.fetcher = &panickyFetcher{HoldingsFetcher: h.fetcher, panics: 1}
	h.fetcher.QueueSnapshot(aapl(t, testingpkg.BaseTime, 10))

	rec := h.run(t)

	assert.Equal(t, domain.OutcomeFetchFailed, rec.Outcome)
	assert.Equal(t, domain.StageFetching, rec.FailedStage)
	assert.Equal(t, "internal", rec.ErrorKind)
	assert.Contains(t, rec.Error, "broker client nil map")
	assert.False(t, h.state.Running())
	assert.Equal(t, domain.StageIdle, h.state.Stage())

	stored, err := h.cycles.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.OutcomeFetchFailed, stored.Outcome)

	next := h.run(t)
	assert.Equal(t, domain.OutcomeSuccess, next.Outcome)
	assert.NotZero(t, next.SnapshotID)
}

type panickyGenerator struct{}

func (panickyGenerator) Generate(context.Context, domain.Delta, domain.StyleContext) (domain.Insight, error) {
	panic("sdk decoder")
}

func TestMonitor_PanicInGenerateFailsCycle(t *testing.T) {
	h := newHarness(t, panickyGenerator{})
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(15*time.Minute), 20))

	h.run(t)
	rec := h.run(t)

	assert.Equal(t, domain.OutcomeGenerationFailed, rec.Outcome)
	assert.Equal(t, domain.StageGenerating, rec.FailedStage)
	assert.Equal(t, "internal", rec.ErrorKind)
	assert.False(t, h.state.Running())
	assert.Equal(t, 1, h.state.Snapshot().ConsecutiveFailures)
}

type panickySink struct{}

func (panickySink) Deliver(context.Context, domain.CycleRunRecord) error {
	panic("closed channel")
}

func TestMonitor_PanickingSinkDoesNotBlockLaterSinks(t *testing.T) {
	h := newHarness(t, nil)
	later := &testingpkg.RecordingSink{}
	h.monitor.sinks = []domain.CycleSink{panickySink{}, later}
	h.fetcher.
		QueueSnapshot(aapl(t, testingpkg.BaseTime, 10)).
		QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(15*time.Minute), 10))

	first := h.run(t)
	h.run(t)

	assert.Equal(t, domain.OutcomeSuccess, first.Outcome)
	assert.False(t, h.state.Running())
	assert.Len(t, later.Records(), 2)
}

type stalledArchiver struct{}

func (stalledArchiver) Archive(ctx context.Context, _ []*domain.Snapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMonitor_StalledArchiveDoesNotHoldCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.snapshots.SetArchiver(stalledArchiver{}, 50*time.Millisecond)

	// The eleventh save is the first to exceed the retained history
	for i := 0; i < h.snapshots.MaxHistory()+1; i++ {
		h.fetcher.QueueSnapshot(aapl(t, testingpkg.BaseTime.Add(time.Duration(i)*15*time.Minute), 10))
	}
	var last domain.CycleRunRecord
	for i := 0; i < h.snapshots.MaxHistory()+1; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rec, err := h.monitor.RunCycle(ctx)
		cancel()
		require.NoError(t, err)
		h.advance(15 * time.Minute)
		last = rec
	}

	assert.Equal(t, domain.OutcomeSuccess, last.Outcome)
	assert.NotZero(t, last.SnapshotID)
}
