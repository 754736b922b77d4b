package domain

import (
	"context"
	"time"
)

// HoldingsFetcher reads the current holdings from a brokerage account.
// Implementations are read-only and return *FetchError on failure.
type HoldingsFetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)

	// Name identifies the broker in logs and snapshot sources
	Name() string
}

// StyleContext is the portfolio context handed to an explainer alongside a delta
type StyleContext struct {
	Persona        string   `json:"persona"`
	TotalValue     float64  `json:"total_value"`
	HoldingCount   int      `json:"holding_count"`
	DayChangePct   float64  `json:"day_change_pct"`
	PositionWeight float64  `json:"position_weight"` // Share of the symbol in percent of total value
	Sector         string   `json:"sector,omitempty"`
	RiskScore      int      `json:"risk_score"`
	RiskLabel      string   `json:"risk_label"`
	RiskReasons    []string `json:"risk_reasons,omitempty"`
	Alerts         []string `json:"alerts,omitempty"`
}

// Explainer turns a delta into narrative text using an external or local capability
type Explainer interface {
	Explain(ctx context.Context, delta Delta, style StyleContext) (string, error)

	// Name identifies the provider recorded on insights
	Name() string
}

// CycleSink receives every cycle record after it has been persisted
type CycleSink interface {
	Deliver(ctx context.Context, record CycleRunRecord) error
}

// SnapshotStore persists snapshot history
type SnapshotStore interface {
	// Save appends a snapshot and returns its assigned ID
	Save(ctx context.Context, snapshot *Snapshot) (int64, error)

	// Latest returns the newest snapshot, nil when the store is empty
	Latest(ctx context.Context) (*Snapshot, error)

	// Previous returns the snapshot before the latest, nil when fewer than two exist
	Previous(ctx context.Context) (*Snapshot, error)
}

// InsightHistory provides recently emitted insights for duplicate suppression
type InsightHistory interface {
	RecentSince(ctx context.Context, since time.Time) ([]Insight, error)
}

// CycleRecorder persists cycle records together with their insights
type CycleRecorder interface {
	Record(ctx context.Context, record CycleRunRecord) error
}
