package risk

import (
	"fmt"
	"sort"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// Risk labels
const (
	LabelConservative = "Conservative"
	LabelModerate     = "Moderate"
	LabelAggressive   = "Aggressive"
)

// Components are the weighted parts of the score.
// Sector max 30, concentration max 28, diversification max 18, drawdown max 15.
type Components struct {
	Sector          int `json:"sector"`
	Concentration   int `json:"concentration"`
	Diversification int `json:"diversification"`
	Drawdown        int `json:"drawdown"`
}

// Metrics are the raw structure measurements behind the score
type Metrics struct {
	TopSector    string  `json:"top_sector,omitempty"`
	TopSectorPct float64 `json:"top_sector_pct"`
	Top5Pct      float64 `json:"top_5_stock_pct"`
	HoldingCount int     `json:"holdings_count"`
	// HHI is the Herfindahl-Hirschman index of position weights (0..1)
	HHI float64 `json:"hhi"`
}

// Assessment is the full risk view of a snapshot
type Assessment struct {
	Score      int        `json:"risk_score"`
	Label      string     `json:"risk_label"`
	Reasons    []string   `json:"risk_reasons"`
	Components Components `json:"components"`
	Metrics    Metrics    `json:"metrics"`
	Alerts     []Alert    `json:"alerts"`
}

// Assess scores the structure of a snapshot on a 0-100 scale
func Assess(s *domain.Snapshot) Assessment {
	m := measure(s)

	c := Components{
		Sector:          sectorRisk(m.TopSectorPct),
		Concentration:   concentrationRisk(m.Top5Pct),
		Diversification: diversificationRisk(m.HoldingCount),
	}
	c.Drawdown = int(float64(c.Sector+c.Concentration) * 0.25)
	if c.Drawdown > 15 {
		c.Drawdown = 15
	}

	score := c.Sector + c.Concentration + c.Diversification + c.Drawdown

	return Assessment{
		Score:      score,
		Label:      label(score),
		Reasons:    reasons(m),
		Components: c,
		Metrics:    m,
		Alerts:     ConcentrationAlerts(s),
	}
}

func measure(s *domain.Snapshot) Metrics {
	m := Metrics{HoldingCount: s.Len()}

	total := s.TotalValue()
	if total <= 0 {
		return m
	}

	holdings := s.Holdings()
	weights := make([]float64, len(holdings))
	for i, h := range holdings {
		weights[i] = h.Value() / total
	}

	sorted := append([]float64(nil), weights...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	top := sorted
	if len(top) > 5 {
		top = top[:5]
	}
	m.Top5Pct = round(floats.Sum(top)*100, 2)
	m.HHI = round(floats.Dot(weights, weights), 4)

	alloc := s.SectorAllocation()
	sectors := make([]string, 0, len(alloc))
	for name := range alloc {
		sectors = append(sectors, name)
	}
	sort.Strings(sectors)
	if len(sectors) > 0 {
		shares := make([]float64, len(sectors))
		for i, name := range sectors {
			shares[i] = alloc[name]
		}
		idx := floats.MaxIdx(shares)
		m.TopSector = sectors[idx]
		m.TopSectorPct = round(shares[idx], 2)
	}

	return m
}

func sectorRisk(topSectorPct float64) int {
	switch {
	case topSectorPct <= 20:
		return 5
	case topSectorPct <= 30:
		return 15
	}
	return 30
}

func concentrationRisk(top5Pct float64) int {
	switch {
	case top5Pct <= 35:
		return 8
	case top5Pct <= 45:
		return 18
	}
	return 28
}

func diversificationRisk(holdings int) int {
	switch {
	case holdings >= 25:
		return 5
	case holdings >= 15:
		return 12
	}
	return 18
}

func label(score int) string {
	switch {
	case score <= 30:
		return LabelConservative
	case score <= 60:
		return LabelModerate
	}
	return LabelAggressive
}

func reasons(m Metrics) []string {
	var out []string
	if m.TopSectorPct > 25 {
		out = append(out, fmt.Sprintf("%s sector exposure at %s%%", m.TopSector, decimal.NewFromFloat(m.TopSectorPct).Round(0)))
	}
	if m.Top5Pct > 40 {
		out = append(out, fmt.Sprintf("Top 5 stocks control %s%% of portfolio", decimal.NewFromFloat(m.Top5Pct).Round(0)))
	}
	if m.HoldingCount < 15 {
		out = append(out, fmt.Sprintf("Low diversification (%d holdings)", m.HoldingCount))
	}
	if len(out) == 0 {
		out = append(out, "Balanced portfolio structure")
	}
	return out
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
