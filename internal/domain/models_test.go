package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestHolding_Value(t *testing.T) {
	h := Holding{Symbol: "AAPL", Quantity: 10, LastPrice: 106}
	assert.Equal(t, 1060.0, h.Value())
}

func TestHolding_DayChange(t *testing.T) {
	t.Run("with close price", func(t *testing.T) {
		h := Holding{Symbol: "INFY", Quantity: 4, LastPrice: 110, ClosePrice: 100}
		assert.InDelta(t, 10.0, h.DayChangePct(), 1e-9)
		assert.InDelta(t, 40.0, h.DayChange(), 1e-9)
	})

	t.Run("without close price", func(t *testing.T) {
		h := Holding{Symbol: "INFY", Quantity: 4, LastPrice: 110}
		assert.Equal(t, 0.0, h.DayChangePct())
		assert.Equal(t, 0.0, h.DayChange())
	})
}

func TestNewSnapshot_SortsAndNormalizes(t *testing.T) {
	snap, err := NewSnapshot(testTime, "kite", []Holding{
		{Symbol: " msft ", Quantity: 2, LastPrice: 400},
		{Symbol: "AAPL", Quantity: 10, LastPrice: 100},
	})
	require.NoError(t, err)

	holdings := snap.Holdings()
	require.Len(t, holdings, 2)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, "MSFT", holdings[1].Symbol)
	assert.Equal(t, 1800.0, snap.TotalValue())

	h, ok := snap.Holding("MSFT")
	require.True(t, ok)
	assert.Equal(t, int64(2), h.Quantity)

	_, ok = snap.Holding("GOOG")
	assert.False(t, ok)
}

func TestNewSnapshot_Rejects(t *testing.T) {
	testCases := []struct {
		name     string
		holdings []Holding
		want     error
	}{
		{"duplicate symbols", []Holding{{Symbol: "AAPL", Quantity: 1}, {Symbol: "aapl", Quantity: 2}}, ErrDuplicateHolding},
		{"empty symbol", []Holding{{Symbol: "  ", Quantity: 1}}, ErrInvalidHolding},
		{"negative quantity", []Holding{{Symbol: "AAPL", Quantity: -1}}, ErrInvalidHolding},
		{"NaN price", []Holding{{Symbol: "AAPL", Quantity: 1, LastPrice: math.NaN()}}, ErrInvalidHolding},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := NewSnapshot(testTime, "kite", tc.holdings)
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("zero timestamp", func(t *testing.T) {
		_, err := NewSnapshot(time.Time{}, "kite", nil)
		assert.ErrorIs(t, err, ErrInvalidHolding)
	})
}

func TestSnapshot_HoldingsReturnsCopy(t *testing.T) {
	snap, err := NewSnapshot(testTime, "kite", []Holding{{Symbol: "AAPL", Quantity: 10, LastPrice: 100}})
	require.NoError(t, err)

	holdings := snap.Holdings()
	holdings[0].Quantity = 999

	h, _ := snap.Holding("AAPL")
	assert.Equal(t, int64(10), h.Quantity)
}

func TestSnapshot_SectorAllocation(t *testing.T) {
	snap, err := NewSnapshot(testTime, "kite", []Holding{
		{Symbol: "TCS", Quantity: 1, LastPrice: 300, Sector: "IT"},
		{Symbol: "INFY", Quantity: 1, LastPrice: 100, Sector: "IT"},
		{Symbol: "XYZ", Quantity: 1, LastPrice: 100},
	})
	require.NoError(t, err)

	alloc := snap.SectorAllocation()
	assert.InDelta(t, 80.0, alloc["IT"], 1e-9)
	assert.InDelta(t, 20.0, alloc["Other"], 1e-9)
}

func TestSnapshot_DayChange(t *testing.T) {
	snap, err := NewSnapshot(testTime, "kite", []Holding{
		{Symbol: "A", Quantity: 10, LastPrice: 11, ClosePrice: 10},
		{Symbol: "B", Quantity: 10, LastPrice: 9, ClosePrice: 10},
		{Symbol: "C", Quantity: 10, LastPrice: 50},
	})
	require.NoError(t, err)

	change, pct := snap.DayChange()
	assert.InDelta(t, 0.0, change, 1e-9)
	assert.InDelta(t, 0.0, pct, 1e-9)
}

func TestSnapshot_MarshalJSON(t *testing.T) {
	snap, err := NewSnapshot(testTime, "kite", []Holding{{Symbol: "AAPL", Quantity: 10, LastPrice: 100}})
	require.NoError(t, err)
	snap.ID = 7

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, 1000.0, decoded["total_value"])
	assert.Len(t, decoded["holdings"], 1)
}

func TestDelta_Values(t *testing.T) {
	after := Holding{Symbol: "GOOG", Quantity: 5, LastPrice: 100}
	d := Delta{Kind: DeltaOpened, Symbol: "GOOG", After: &after}

	assert.True(t, d.AlwaysSignificant())
	assert.Equal(t, 0.0, d.ValueBefore())
	assert.Equal(t, 500.0, d.ValueAfter())

	moved := Delta{Kind: DeltaValueMoved}
	assert.False(t, moved.AlwaysSignificant())
}

func TestOutcome_Failed(t *testing.T) {
	assert.True(t, OutcomeFetchFailed.Failed())
	assert.True(t, OutcomeStoreFailed.Failed())
	assert.True(t, OutcomeGenerationFailed.Failed())
	assert.False(t, OutcomeSuccess.Failed())
	assert.False(t, OutcomePartial.Failed())
	assert.False(t, OutcomeCancelled.Failed())
}
