package narrative

import (
	"fmt"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// Money formats an amount with two decimals and thousands separators
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0).String()
	frac := d.Sub(d.Truncate(0)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	grouped := make([]byte, 0, len(whole)+len(whole)/3)
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, whole[i])
	}
	return fmt.Sprintf("%s%s.%02d", sign, grouped, frac)
}

// Percent formats a ratio (0.06) as a signed percentage ("+6.0%")
func Percent(ratio float64) string {
	return decimal.NewFromFloat(ratio*100).Round(1).StringFixed(1) + "%"
}

// SignedPercent is Percent with an explicit plus sign for gains
func SignedPercent(ratio float64) string {
	s := Percent(ratio)
	if ratio > 0 {
		return "+" + s
	}
	return s
}

// Headline is a one-line plain description of a delta
func Headline(d domain.Delta) string {
	switch d.Kind {
	case domain.DeltaOpened:
		return fmt.Sprintf("New position in %s: %d shares worth %s", d.Symbol, d.After.Quantity, Money(d.ValueAfter()))
	case domain.DeltaClosed:
		return fmt.Sprintf("Position in %s closed (%d shares, last worth %s)", d.Symbol, d.Before.Quantity, Money(d.ValueBefore()))
	case domain.DeltaQuantityChanged:
		return fmt.Sprintf("%s position changed from %d to %d shares", d.Symbol, d.Before.Quantity, d.After.Quantity)
	case domain.DeltaValueMoved:
		return fmt.Sprintf("%s moved %s in value, from %s to %s", d.Symbol, SignedPercent(d.Relative),
			Money(d.ValueBefore()), Money(d.ValueAfter()))
	}
	return fmt.Sprintf("%s changed (%s)", d.Symbol, d.Kind)
}
