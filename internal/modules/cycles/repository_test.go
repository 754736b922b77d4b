package cycles

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	testingpkg "github.com/aristath/sentinel-insights/internal/testing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Repository, *insights.Repository) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameInsights)
	t.Cleanup(cleanup)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db.Conn(), log), insights.NewRepository(db.Conn(), log)
}

func newRecord(startedAt time.Time, symbols ...string) domain.CycleRunRecord {
	rec := domain.CycleRunRecord{
		ID:            uuid.New().String(),
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(2 * time.Second),
		Outcome:       domain.OutcomeSuccess,
		SnapshotID:    3,
		DeltaCount:    len(symbols),
		SelectedCount: len(symbols),
	}
	for _, s := range symbols {
		after := testingpkg.NewHolding(s, 5, 100)
		delta := domain.Delta{Kind: domain.DeltaOpened, Symbol: s, After: &after, Magnitude: 5, Relative: 1}
		rec.Insights = append(rec.Insights, domain.Insight{
			ID:          uuid.New().String(),
			CycleID:     rec.ID,
			Fingerprint: insights.Fingerprint(delta, 0.05),
			Delta:       delta,
			Narrative:   "A new position in " + s,
			Provider:    "rules",
			GeneratedAt: startedAt.Add(time.Second),
			EmittedAt:   startedAt.Add(time.Second),
		})
	}
	return rec
}

func TestRepository_RecordAndGet(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	rec := newRecord(testingpkg.BaseTime, "GOOG", "AAPL")
	require.NoError(t, repo.Record(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OutcomeSuccess, got.Outcome)
	assert.Equal(t, int64(3), got.SnapshotID)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	require.Len(t, got.Insights, 2)
	assert.Equal(t, "AAPL", got.Insights[0].Delta.Symbol)
	require.NotNil(t, got.Insights[0].Delta.After)
	assert.Equal(t, int64(5), got.Insights[0].Delta.After.Quantity)

	missing, err := repo.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_FailedRecordKeepsErrorDetails(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	rec := domain.CycleRunRecord{
		ID:          uuid.New().String(),
		StartedAt:   testingpkg.BaseTime,
		FinishedAt:  testingpkg.BaseTime.Add(time.Second),
		Outcome:     domain.OutcomeFetchFailed,
		FailedStage: domain.StageFetching,
		ErrorKind:   "unauthorized",
		Error:       "fetch kite.holdings: unauthorized",
	}
	require.NoError(t, repo.Record(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFetching, got.FailedStage)
	assert.Equal(t, "unauthorized", got.ErrorKind)
	assert.Equal(t, int64(0), got.SnapshotID)
	assert.Empty(t, got.Insights)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()

	older := newRecord(testingpkg.BaseTime, "AAPL")
	newer := newRecord(testingpkg.BaseTime.Add(15*time.Minute), "MSFT")
	require.NoError(t, repo.Record(ctx, older))
	require.NoError(t, repo.Record(ctx, newer))

	records, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
	assert.Len(t, records[0].Insights, 1)
}

func TestRepository_DeleteOlderThanCascades(t *testing.T) {
	repo, insightRepo := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, newRecord(testingpkg.BaseTime.Add(-100*24*time.Hour), "AAPL")))
	require.NoError(t, repo.Record(ctx, newRecord(testingpkg.BaseTime, "MSFT")))

	deleted, err := repo.DeleteOlderThan(ctx, testingpkg.BaseTime.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := insightRepo.List(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "MSFT", remaining[0].Delta.Symbol)
}

func TestInsightRepository_RecentSince(t *testing.T) {
	repo, insightRepo := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, newRecord(testingpkg.BaseTime, "AAPL")))
	require.NoError(t, repo.Record(ctx, newRecord(testingpkg.BaseTime.Add(2*time.Hour), "MSFT", "TSLA")))

	recent, err := insightRepo.RecentSince(ctx, testingpkg.BaseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	bySymbol, err := insightRepo.List(ctx, 10, "AAPL")
	require.NoError(t, err)
	require.Len(t, bySymbol, 1)
	assert.Equal(t, "rules", bySymbol[0].Provider)

	deleted, err := insightRepo.DeleteOlderThan(ctx, testingpkg.BaseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
