package insights

import (
	"math"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// significanceEpsilon makes the threshold inclusive despite float noise
const significanceEpsilon = 1e-9

// Filter decides which deltas deserve an insight
type Filter struct {
	SignificanceThreshold float64
	Cooldown              time.Duration
	Bucket                float64
}

// Significant reports whether a delta is large enough on its own.
// Opened and closed positions always are; other kinds need |Relative| >= threshold.
func (f *Filter) Significant(d domain.Delta) bool {
	if d.AlwaysSignificant() {
		return true
	}
	return math.Abs(d.Relative) >= f.SignificanceThreshold-significanceEpsilon
}

// Select keeps significant deltas whose fingerprint was not emitted within
// the cooldown window (now-Cooldown, now]. Input order is preserved.
func (f *Filter) Select(deltas []domain.Delta, recent []domain.Insight, now time.Time) []domain.Delta {
	cooling := f.coolingFingerprints(recent, now)

	selected := make([]domain.Delta, 0, len(deltas))
	for _, d := range deltas {
		if !f.Significant(d) {
			continue
		}
		fp := Fingerprint(d, f.Bucket)
		if cooling[fp] {
			continue
		}
		// Later duplicates in the same batch are suppressed too
		cooling[fp] = true
		selected = append(selected, d)
	}
	return selected
}

func (f *Filter) coolingFingerprints(recent []domain.Insight, now time.Time) map[string]bool {
	windowStart := now.Add(-f.Cooldown)
	cooling := make(map[string]bool, len(recent))
	for _, ins := range recent {
		if ins.EmittedAt.After(windowStart) && !ins.EmittedAt.After(now) {
			cooling[ins.Fingerprint] = true
		}
	}
	return cooling
}
