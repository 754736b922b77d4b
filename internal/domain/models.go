// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Holding is one position inside a snapshot
type Holding struct {
	Symbol      string  `json:"symbol" msgpack:"s"`
	Quantity    int64   `json:"quantity" msgpack:"q"`
	AverageCost float64 `json:"average_cost" msgpack:"ac"`
	LastPrice   float64 `json:"last_price" msgpack:"lp"`
	ClosePrice  float64 `json:"close_price,omitempty" msgpack:"cp"` // Previous session close, 0 when unknown
	Sector      string  `json:"sector,omitempty" msgpack:"sc"`
}

// Value returns quantity × last price
func (h Holding) Value() float64 {
	return float64(h.Quantity) * h.LastPrice
}

// DayChangePct returns the percentage move since the previous close, 0 when no close is known
func (h Holding) DayChangePct() float64 {
	if h.ClosePrice <= 0 {
		return 0
	}
	return (h.LastPrice - h.ClosePrice) / h.ClosePrice * 100
}

// DayChange returns the absolute value change since the previous close
func (h Holding) DayChange() float64 {
	if h.ClosePrice <= 0 {
		return 0
	}
	return float64(h.Quantity) * (h.LastPrice - h.ClosePrice)
}

var (
	// ErrDuplicateHolding is returned when a snapshot would contain the same symbol twice
	ErrDuplicateHolding = errors.New("duplicate holding symbol")
	// ErrInvalidHolding is returned for empty symbols, negative quantities or invalid prices
	ErrInvalidHolding = errors.New("invalid holding")
	// ErrSnapshotsOutOfOrder is returned when a diff is requested for snapshots not strictly ordered in time
	ErrSnapshotsOutOfOrder = errors.New("snapshots are not strictly ordered")
	// ErrCycleInProgress is returned when a cycle is requested while another is running
	ErrCycleInProgress = errors.New("monitoring cycle already in progress")
)

// Snapshot is the complete view of holdings at one point in time.
// Holdings are kept private so a snapshot stays immutable once built.
type Snapshot struct {
	ID       int64
	TakenAt  time.Time
	Source   string
	holdings []Holding
}

// NewSnapshot validates holdings and returns a snapshot ordered by symbol.
// Symbols are trimmed and upper-cased before validation.
func NewSnapshot(takenAt time.Time, source string, holdings []Holding) (*Snapshot, error) {
	if takenAt.IsZero() {
		return nil, fmt.Errorf("%w: snapshot has no timestamp", ErrInvalidHolding)
	}

	normalized := make([]Holding, 0, len(holdings))
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		h.Symbol = strings.ToUpper(strings.TrimSpace(h.Symbol))
		if err := validateHolding(h); err != nil {
			return nil, err
		}
		if _, dup := seen[h.Symbol]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHolding, h.Symbol)
		}
		seen[h.Symbol] = struct{}{}
		normalized = append(normalized, h)
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Symbol < normalized[j].Symbol
	})

	return &Snapshot{
		TakenAt:  takenAt.UTC(),
		Source:   source,
		holdings: normalized,
	}, nil
}

func validateHolding(h Holding) error {
	switch {
	case h.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidHolding)
	case h.Quantity < 0:
		return fmt.Errorf("%w: %s has negative quantity %d", ErrInvalidHolding, h.Symbol, h.Quantity)
	case !validPrice(h.LastPrice), !validPrice(h.AverageCost), !validPrice(h.ClosePrice):
		return fmt.Errorf("%w: %s has an invalid price", ErrInvalidHolding, h.Symbol)
	}
	return nil
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Holdings returns a copy of the holdings in symbol order
func (s *Snapshot) Holdings() []Holding {
	out := make([]Holding, len(s.holdings))
	copy(out, s.holdings)
	return out
}

// Len returns the number of holdings
func (s *Snapshot) Len() int {
	return len(s.holdings)
}

// Holding looks up a holding by symbol
func (s *Snapshot) Holding(symbol string) (Holding, bool) {
	i := sort.Search(len(s.holdings), func(i int) bool {
		return s.holdings[i].Symbol >= symbol
	})
	if i < len(s.holdings) && s.holdings[i].Symbol == symbol {
		return s.holdings[i], true
	}
	return Holding{}, false
}

// TotalValue sums the value of every holding
func (s *Snapshot) TotalValue() float64 {
	total := 0.0
	for _, h := range s.holdings {
		total += h.Value()
	}
	return total
}

// DayChange returns the absolute and percentage portfolio change since the previous close
func (s *Snapshot) DayChange() (float64, float64) {
	change, previous := 0.0, 0.0
	for _, h := range s.holdings {
		if h.ClosePrice <= 0 {
			continue
		}
		change += h.DayChange()
		previous += float64(h.Quantity) * h.ClosePrice
	}
	if previous == 0 {
		return change, 0
	}
	return change, change / previous * 100
}

// SectorAllocation returns each sector's share of total value in percent.
// Holdings without a sector are grouped under "Other".
func (s *Snapshot) SectorAllocation() map[string]float64 {
	total := s.TotalValue()
	allocation := make(map[string]float64)
	if total <= 0 {
		return allocation
	}
	for _, h := range s.holdings {
		sector := h.Sector
		if sector == "" {
			sector = "Other"
		}
		allocation[sector] += h.Value() / total * 100
	}
	return allocation
}

type snapshotJSON struct {
	ID         int64     `json:"id"`
	TakenAt    time.Time `json:"taken_at"`
	Source     string    `json:"source"`
	TotalValue float64   `json:"total_value"`
	Holdings   []Holding `json:"holdings"`
}

// MarshalJSON implements json.Marshaler
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		ID:         s.ID,
		TakenAt:    s.TakenAt,
		Source:     s.Source,
		TotalValue: s.TotalValue(),
		Holdings:   s.holdings,
	})
}

// DeltaKind classifies a change between two snapshots
type DeltaKind string

const (
	DeltaOpened          DeltaKind = "opened"
	DeltaClosed          DeltaKind = "closed"
	DeltaQuantityChanged DeltaKind = "quantity-changed"
	DeltaValueMoved      DeltaKind = "value-moved"
)

// Delta describes what changed for one symbol between two adjacent snapshots
type Delta struct {
	Kind     DeltaKind `json:"kind"`
	Symbol   string    `json:"symbol"`
	Before   *Holding  `json:"before,omitempty"`
	After    *Holding  `json:"after,omitempty"`
	BeforeAt time.Time `json:"before_at"`
	AfterAt  time.Time `json:"after_at"`
	// Magnitude is kind specific: share count for opened/closed/quantity-changed,
	// relative value change for value-moved.
	Magnitude float64 `json:"magnitude"`
	// Relative is the signed relative value change for every kind (opened +1, closed -1)
	Relative float64 `json:"relative"`
}

// AlwaysSignificant reports whether the kind is significant regardless of size
func (d Delta) AlwaysSignificant() bool {
	return d.Kind == DeltaOpened || d.Kind == DeltaClosed
}

// ValueBefore returns the before value, 0 for opened positions
func (d Delta) ValueBefore() float64 {
	if d.Before == nil {
		return 0
	}
	return d.Before.Value()
}

// ValueAfter returns the after value, 0 for closed positions
func (d Delta) ValueAfter() float64 {
	if d.After == nil {
		return 0
	}
	return d.After.Value()
}

// Insight is a narrative produced for one delta
type Insight struct {
	ID          string    `json:"id"`
	CycleID     string    `json:"cycle_id"`
	Fingerprint string    `json:"fingerprint"`
	Delta       Delta     `json:"delta"`
	Narrative   string    `json:"narrative"`
	Provider    string    `json:"provider"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// Stage is a step of the monitoring cycle
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageDiffing    Stage = "diffing"
	StageFiltering  Stage = "filtering"
	StageGenerating Stage = "generating"
	StageFailed     Stage = "failed"
)

// Outcome summarizes how a cycle ended
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeFetchFailed      Outcome = "fetch-failed"
	OutcomeStoreFailed      Outcome = "store-failed"
	OutcomeGenerationFailed Outcome = "generation-failed"
	OutcomePartial          Outcome = "partial"
	OutcomeCancelled        Outcome = "cancelled"
)

// Failed reports whether the outcome counts as a failed cycle
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeFetchFailed, OutcomeStoreFailed, OutcomeGenerationFailed:
		return true
	}
	return false
}

// CycleRunRecord is the operational record of one executed cycle
type CycleRunRecord struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       Outcome   `json:"outcome"`
	FailedStage   Stage     `json:"failed_stage,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
	SnapshotID    int64     `json:"snapshot_id,omitempty"`
	DeltaCount    int       `json:"delta_count"`
	SelectedCount int       `json:"selected_count"`
	Insights      []Insight `json:"insights"`
}

// Duration returns how long the cycle ran
func (r CycleRunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
