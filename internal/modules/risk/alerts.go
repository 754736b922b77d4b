package risk

import (
	"fmt"
	"sort"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// Concentration limits in percent of total value
const (
	StockLimitPct  = 15.0
	SectorLimitPct = 25.0
)

// Alert flags a single stock or sector above its concentration limit
type Alert struct {
	Type    string  `json:"type"` // "stock" or "sector"
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// ConcentrationAlerts returns stock alerts in symbol order followed by sector alerts in name order
func ConcentrationAlerts(s *domain.Snapshot) []Alert {
	alerts := make([]Alert, 0)
	total := s.TotalValue()
	if total <= 0 {
		return alerts
	}

	for _, h := range s.Holdings() {
		pct := h.Value() / total * 100
		if pct > StockLimitPct {
			v := round(pct, 1)
			alerts = append(alerts, Alert{
				Type:    "stock",
				Symbol:  h.Symbol,
				Value:   v,
				Message: fmt.Sprintf("%s is %.1f%% of portfolio (>%.0f%%)", h.Symbol, v, StockLimitPct),
			})
		}
	}

	alloc := s.SectorAllocation()
	sectors := make([]string, 0, len(alloc))
	for name := range alloc {
		sectors = append(sectors, name)
	}
	sort.Strings(sectors)
	for _, name := range sectors {
		pct := alloc[name]
		if pct > SectorLimitPct {
			v := round(pct, 1)
			alerts = append(alerts, Alert{
				Type:    "sector",
				Symbol:  name,
				Value:   v,
				Message: fmt.Sprintf("%s sector is %.1f%% of portfolio (>%.0f%%)", name, v, SectorLimitPct),
			})
		}
	}
	return alerts
}

// Style builds the explainer context for a delta from the snapshot it ends in
func Style(persona string, s *domain.Snapshot, d domain.Delta) domain.StyleContext {
	a := Assess(s)
	_, dayPct := s.DayChange()

	style := domain.StyleContext{
		Persona:      persona,
		TotalValue:   round(s.TotalValue(), 2),
		HoldingCount: s.Len(),
		DayChangePct: round(dayPct, 2),
		RiskScore:    a.Score,
		RiskLabel:    a.Label,
		RiskReasons:  a.Reasons,
	}
	if h, ok := s.Holding(d.Symbol); ok {
		style.Sector = h.Sector
		if total := s.TotalValue(); total > 0 {
			style.PositionWeight = round(h.Value()/total*100, 2)
		}
	} else if d.Before != nil {
		style.Sector = d.Before.Sector
	}
	for _, alert := range a.Alerts {
		style.Alerts = append(style.Alerts, alert.Message)
	}
	return style
}
