package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

// CycleMarkdown renders one cycle record and its insights
func CycleMarkdown(rec domain.CycleRunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cycle %s\n\n", shortID(rec.ID))
	fmt.Fprintf(&b, "- **Outcome:** %s\n", rec.Outcome)
	fmt.Fprintf(&b, "- **Started:** %s\n", rec.StartedAt.Format(timeLayout))
	fmt.Fprintf(&b, "- **Duration:** %s\n", rec.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Changes:** %d detected, %d selected\n", rec.DeltaCount, rec.SelectedCount)
	if rec.FailedStage != "" {
		fmt.Fprintf(&b, "- **Failed stage:** %s (%s)\n", rec.FailedStage, rec.ErrorKind)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", rec.Error)
	}

	b.WriteString("\n## Insights\n\n")
	if len(rec.Insights) == 0 {
		b.WriteString("_No new insights._\n")
		return b.String()
	}
	for _, ins := range rec.Insights {
		writeInsight(&b, ins)
	}
	return b.String()
}

// CyclesMarkdown renders a table of cycle records
func CyclesMarkdown(records []domain.CycleRunRecord) string {
	if len(records) == 0 {
		return "_No cycles recorded yet._\n"
	}
	var b strings.Builder
	b.WriteString("| Started | Outcome | Changes | Insights | Duration | Error |\n")
	b.WriteString("|---|---|---:|---:|---:|---|\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "| %s | %s | %d/%d | %d | %s | %s |\n",
			rec.StartedAt.Format(timeLayout),
			rec.Outcome,
			rec.SelectedCount, rec.DeltaCount,
			len(rec.Insights),
			rec.Duration().Round(time.Millisecond),
			escapeCell(rec.ErrorKind),
		)
	}
	return b.String()
}

// InsightsMarkdown renders emitted insights, one section each
func InsightsMarkdown(list []domain.Insight) string {
	if len(list) == 0 {
		return "_No insights emitted yet._\n"
	}
	var b strings.Builder
	b.WriteString("# Insights\n\n")
	for _, ins := range list {
		writeInsight(&b, ins)
	}
	return b.String()
}

func writeInsight(b *strings.Builder, ins domain.Insight) {
	fmt.Fprintf(b, "### %s %s\n\n", ins.Delta.Symbol, ins.Delta.Kind)
	fmt.Fprintf(b, "%s\n\n", strings.TrimSpace(ins.Narrative))
	source := ins.Provider
	if ins.Cached {
		source += ", cached"
	}
	fmt.Fprintf(b, "_%s · %+.1f%% · %s_\n\n", ins.EmittedAt.Format(timeLayout), ins.Delta.Relative*100, source)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
