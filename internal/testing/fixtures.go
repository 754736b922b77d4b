package testing

import (
	"testing"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// BaseTime is a fixed reference time for deterministic tests
var BaseTime = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

// NewHolding returns a holding priced at lastPrice with average cost equal to the price
func NewHolding(symbol string, qty int64, lastPrice float64) domain.Holding {
	return domain.Holding{
		Symbol:      symbol,
		Quantity:    qty,
		AverageCost: lastPrice,
		LastPrice:   lastPrice,
	}
}

// NewSnapshot builds a snapshot or fails the test
func NewSnapshot(t *testing.T, takenAt time.Time, holdings ...domain.Holding) *domain.Snapshot {
	t.Helper()

	snap, err := domain.NewSnapshot(takenAt, "test", holdings)
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}
	return snap
}

// NewIndianPortfolio returns a diversified holdings fixture with sectors assigned
func NewIndianPortfolio() []domain.Holding {
	return []domain.Holding{
		{Symbol: "HDFCBANK", Quantity: 20, AverageCost: 1500, LastPrice: 1620, ClosePrice: 1600, Sector: "Banking"},
		{Symbol: "ICICIBANK", Quantity: 30, AverageCost: 900, LastPrice: 1050, ClosePrice: 1040, Sector: "Banking"},
		{Symbol: "INFY", Quantity: 25, AverageCost: 1400, LastPrice: 1500, ClosePrice: 1510, Sector: "IT"},
		{Symbol: "TCS", Quantity: 8, AverageCost: 3300, LastPrice: 3800, ClosePrice: 3790, Sector: "IT"},
		{Symbol: "ITC", Quantity: 100, AverageCost: 380, LastPrice: 430, ClosePrice: 428, Sector: "FMCG"},
		{Symbol: "SUNPHARMA", Quantity: 15, AverageCost: 1100, LastPrice: 1250, ClosePrice: 1245, Sector: "Pharma"},
	}
}
