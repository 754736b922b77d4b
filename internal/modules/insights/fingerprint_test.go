package insights

import (
	"testing"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	d := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "AAPL", Relative: 0.06}
	assert.Equal(t, Fingerprint(d, 0.05), Fingerprint(d, 0.05))
	assert.Len(t, Fingerprint(d, 0.05), 64)
}

func TestFingerprint_DistinguishesKindSymbolAndBand(t *testing.T) {
	base := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "AAPL", Relative: 0.06}

	otherSymbol := base
	otherSymbol.Symbol = "MSFT"
	otherKind := base
	otherKind.Kind = domain.DeltaQuantityChanged
	otherBand := base
	otherBand.Relative = 0.11

	fp := Fingerprint(base, 0.05)
	assert.NotEqual(t, fp, Fingerprint(otherSymbol, 0.05))
	assert.NotEqual(t, fp, Fingerprint(otherKind, 0.05))
	assert.NotEqual(t, fp, Fingerprint(otherBand, 0.05))
}

func TestBand(t *testing.T) {
	testCases := []struct {
		relative float64
		want     int64
	}{
		{0, 0},
		{0.049, 0},
		{0.05, 1},
		{0.06, 1},
		{0.1, 2},
		{0.3, 6},
		{-0.01, -1},
		{-0.06, -2},
		{1, 20},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Band(tc.relative, 0.05), "relative %v", tc.relative)
	}
	assert.Equal(t, Band(0.07, DefaultBucket), Band(0.07, 0))
}

func TestFingerprint_BandStabilityProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("magnitudes in the same band share a fingerprint", prop.ForAll(
		func(band int, a, b float64) bool {
			const bucket = 0.05
			// a and b are offsets inside the band, kept clear of the upper edge
			lo := float64(band) * bucket
			d1 := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "INFY", Relative: lo + a*bucket*0.98}
			d2 := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "INFY", Relative: lo + b*bucket*0.98}
			return Fingerprint(d1, bucket) == Fingerprint(d2, bucket)
		},
		gen.IntRange(-40, 40),
		gen.Float64Range(0.01, 0.99),
		gen.Float64Range(0.01, 0.99),
	))

	properties.TestingRun(t)
}

func TestFingerprint_QuantityChangeBandsOnShareDelta(t *testing.T) {
	// 100 -> 110 then 110 -> 120: same +10 shares, different relative change
	first := domain.Delta{Kind: domain.DeltaQuantityChanged, Symbol: "AAPL", Magnitude: 10, Relative: 0.10}
	second := domain.Delta{Kind: domain.DeltaQuantityChanged, Symbol: "AAPL", Magnitude: 10, Relative: 10.0 / 110}
	assert.Equal(t, Fingerprint(first, 0.05), Fingerprint(second, 0.05))

	// 10 -> 20 then 20 -> 40: same relative change, different share delta
	doubled := domain.Delta{Kind: domain.DeltaQuantityChanged, Symbol: "AAPL", Magnitude: 10, Relative: 1}
	doubledAgain := domain.Delta{Kind: domain.DeltaQuantityChanged, Symbol: "AAPL", Magnitude: 20, Relative: 1}
	assert.NotEqual(t, Fingerprint(doubled, 0.05), Fingerprint(doubledAgain, 0.05))

	sold := first
	sold.Magnitude = -10
	assert.NotEqual(t, Fingerprint(first, 0.05), Fingerprint(sold, 0.05))
}

func TestFingerprint_ValueMoveIgnoresMagnitudeField(t *testing.T) {
	a := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "TCS", Magnitude: 0.06, Relative: 0.06}
	b := domain.Delta{Kind: domain.DeltaValueMoved, Symbol: "TCS", Magnitude: 0.07, Relative: 0.07}
	assert.Equal(t, Fingerprint(a, 0.05), Fingerprint(b, 0.05))
}
