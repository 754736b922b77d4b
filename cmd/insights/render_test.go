package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/sentinel-insights/internal/domain"
	testingpkg "github.com/aristath/sentinel-insights/internal/testing"
)

func sampleInsight() domain.Insight {
	return domain.Insight{
		ID:        "i-1",
		Delta:     domain.Delta{Kind: domain.DeltaOpened, Symbol: "GOOG", Relative: 1},
		Narrative: "You opened a new position in GOOG.  ",
		Provider:  "rules",
		EmittedAt: testingpkg.BaseTime,
	}
}

func TestCycleMarkdown_Success(t *testing.T) {
	rec := domain.CycleRunRecord{
		ID:            "0123456789abcdef",
		StartedAt:     testingpkg.BaseTime,
		FinishedAt:    testingpkg.BaseTime.Add(1200 * time.Millisecond),
		Outcome:       domain.OutcomeSuccess,
		DeltaCount:    2,
		SelectedCount: 1,
		Insights:      []domain.Insight{sampleInsight()},
	}

	md := CycleMarkdown(rec)

	assert.Contains(t, md, "# Cycle 01234567")
	assert.Contains(t, md, "**Outcome:** success")
	assert.Contains(t, md, "**Duration:** 1.2s")
	assert.Contains(t, md, "2 detected, 1 selected")
	assert.Contains(t, md, "### GOOG opened")
	assert.Contains(t, md, "You opened a new position in GOOG.\n")
	assert.Contains(t, md, "+100.0%")
	assert.NotContains(t, md, "Failed stage")
}

func TestCycleMarkdown_Failure(t *testing.T) {
	rec := domain.CycleRunRecord{
		ID:          "c-2",
		StartedAt:   testingpkg.BaseTime,
		FinishedAt:  testingpkg.BaseTime,
		Outcome:     domain.OutcomeFetchFailed,
		FailedStage: domain.StageFetching,
		ErrorKind:   "unauthorized",
		Error:       "kite: token rejected",
	}

	md := CycleMarkdown(rec)

	assert.Contains(t, md, "# Cycle c-2")
	assert.Contains(t, md, "**Failed stage:** fetching (unauthorized)")
	assert.Contains(t, md, "**Error:** kite: token rejected")
	assert.Contains(t, md, "_No new insights._")
}

func TestCyclesMarkdown(t *testing.T) {
	assert.Equal(t, "_No cycles recorded yet._\n", CyclesMarkdown(nil))

	md := CyclesMarkdown([]domain.CycleRunRecord{{
		StartedAt:     testingpkg.BaseTime,
		FinishedAt:    testingpkg.BaseTime.Add(time.Second),
		Outcome:       domain.OutcomePartial,
		DeltaCount:    3,
		SelectedCount: 2,
		ErrorKind:     "a|b",
		Insights:      []domain.Insight{sampleInsight()},
	}})

	assert.Contains(t, md, "| Started | Outcome |")
	assert.Contains(t, md, "| partial | 2/3 | 1 | 1s | a\\|b |")
}

func TestInsightsMarkdown(t *testing.T) {
	assert.Equal(t, "_No insights emitted yet._\n", InsightsMarkdown(nil))

	ins := sampleInsight()
	ins.Cached = true
	md := InsightsMarkdown([]domain.Insight{ins})

	assert.Contains(t, md, "# Insights")
	assert.Contains(t, md, "rules, cached")
}
