// Package insights selects insight-worthy deltas and turns them into narratives.
package insights

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// DefaultBucket is the width of a magnitude band (5%)
const DefaultBucket = 0.05

// bandEpsilon keeps values that sit on a band edge in the upper band despite float noise
const bandEpsilon = 1e-9

// Band returns the magnitude band of a relative change
func Band(relative, bucket float64) int64 {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return int64(math.Floor(relative/bucket + bandEpsilon))
}

// Fingerprint is a stable hash of kind, symbol and magnitude band.
// Deltas in the same band share a fingerprint.
func Fingerprint(d domain.Delta, bucket float64) string {
	key := fmt.Sprintf("%s|%s|%d", d.Kind, d.Symbol, deltaBand(d, bucket))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// deltaBand buckets the magnitude that matters for each kind. Quantity changes
// band on the whole-share delta, so the same trade repeated twice collapses to one
// fingerprint whatever the position size. Value moves band on the relative change.
// Opened and closed carry only their direction.
func deltaBand(d domain.Delta, bucket float64) int64 {
	if d.Kind == domain.DeltaQuantityChanged {
		return int64(math.Round(d.Magnitude))
	}
	return Band(d.Relative, bucket)
}
