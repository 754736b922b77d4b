// Package changes detects holding-level changes between two snapshots.
package changes

import (
	"errors"
	"math"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// epsilon absorbs float noise when comparing relative moves to the threshold
const epsilon = 1e-9

// DefaultValueThreshold is the relative value move reported as value-moved
const DefaultValueThreshold = 0.05

// Detector diffs two snapshots
type Detector struct {
	// ValueThreshold is the relative value change a holding must exceed (strictly)
	// to produce a value-moved delta
	ValueThreshold float64
}

// NewDetector creates a detector with the given value threshold
func NewDetector(valueThreshold float64) *Detector {
	if valueThreshold <= 0 {
		valueThreshold = DefaultValueThreshold
	}
	return &Detector{ValueThreshold: valueThreshold}
}

// Diff returns the deltas from before to after in symbol order, at most one per symbol.
// A nil before (first cycle) yields no deltas. Snapshots that differ must be strictly
// ordered in time; otherwise ErrSnapshotsOutOfOrder is returned.
func (d *Detector) Diff(before, after *domain.Snapshot) ([]domain.Delta, error) {
	if after == nil {
		return nil, errors.New("diff requires an after snapshot")
	}
	if before == nil {
		return nil, nil
	}

	prev := before.Holdings()
	next := after.Holdings()
	deltas := make([]domain.Delta, 0)

	// Both slices are sorted by symbol; walk them like a merge
	i, j := 0, 0
	for i < len(prev) || j < len(next) {
		var delta *domain.Delta
		switch {
		case j >= len(next) || (i < len(prev) && prev[i].Symbol < next[j].Symbol):
			delta = closed(prev[i])
			i++
		case i >= len(prev) || next[j].Symbol < prev[i].Symbol:
			delta = opened(next[j])
			j++
		default:
			delta = d.compare(prev[i], next[j])
			i++
			j++
		}
		if delta != nil {
			delta.BeforeAt = before.TakenAt
			delta.AfterAt = after.TakenAt
			deltas = append(deltas, *delta)
		}
	}

	if len(deltas) > 0 && !before.TakenAt.Before(after.TakenAt) {
		return nil, domain.ErrSnapshotsOutOfOrder
	}
	return deltas, nil
}

func opened(h domain.Holding) *domain.Delta {
	return &domain.Delta{
		Kind:      domain.DeltaOpened,
		Symbol:    h.Symbol,
		After:     &h,
		Magnitude: float64(h.Quantity),
		Relative:  1,
	}
}

func closed(h domain.Holding) *domain.Delta {
	return &domain.Delta{
		Kind:      domain.DeltaClosed,
		Symbol:    h.Symbol,
		Before:    &h,
		Magnitude: -float64(h.Quantity),
		Relative:  -1,
	}
}

// compare reports a quantity change first; only unchanged quantities are checked for value moves
func (d *Detector) compare(before, after domain.Holding) *domain.Delta {
	if before.Quantity != after.Quantity {
		change := after.Quantity - before.Quantity
		return &domain.Delta{
			Kind:      domain.DeltaQuantityChanged,
			Symbol:    after.Symbol,
			Before:    &before,
			After:     &after,
			Magnitude: float64(change),
			Relative:  relativeChange(float64(before.Quantity), float64(after.Quantity)),
		}
	}

	rel := relativeChange(before.Value(), after.Value())
	if math.Abs(rel)-d.ValueThreshold <= epsilon {
		return nil
	}
	return &domain.Delta{
		Kind:      domain.DeltaValueMoved,
		Symbol:    after.Symbol,
		Before:    &before,
		After:     &after,
		Magnitude: rel,
		Relative:  rel,
	}
}

// relativeChange returns (to-from)/from; growth from zero counts as +1
func relativeChange(from, to float64) float64 {
	if from == 0 {
		switch {
		case to > 0:
			return 1
		case to < 0:
			return -1
		}
		return 0
	}
	return (to - from) / from
}
