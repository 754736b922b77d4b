package narrative

import (
	"fmt"
	"strings"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// SystemPrompt returns the persona for a style, falling back to DefaultPersona
func SystemPrompt(style domain.StyleContext) string {
	if strings.TrimSpace(style.Persona) != "" {
		return style.Persona
	}
	return DefaultPersona
}

// UserPrompt describes a delta and its portfolio context for a text generation provider
func UserPrompt(d domain.Delta, style domain.StyleContext) string {
	var sb strings.Builder

	sb.WriteString("A change was detected in the portfolio.\n\n")
	sb.WriteString("CHANGE\n")
	fmt.Fprintf(&sb, "- %s\n", Headline(d))
	fmt.Fprintf(&sb, "- Kind: %s\n", d.Kind)
	if !d.BeforeAt.IsZero() {
		fmt.Fprintf(&sb, "- Observed between %s and %s\n",
			d.BeforeAt.Format("2006-01-02 15:04 MST"), d.AfterAt.Format("2006-01-02 15:04 MST"))
	}
	if d.After != nil && d.After.AverageCost > 0 {
		pnl := (d.After.LastPrice - d.After.AverageCost) * float64(d.After.Quantity)
		fmt.Fprintf(&sb, "- Unrealized result on the position: %s\n", Money(pnl))
	}

	sb.WriteString("\nPORTFOLIO\n")
	fmt.Fprintf(&sb, "- Total value: %s across %d holdings\n", Money(style.TotalValue), style.HoldingCount)
	fmt.Fprintf(&sb, "- Day change: %s\n", SignedPercent(style.DayChangePct/100))
	if style.Sector != "" {
		fmt.Fprintf(&sb, "- Sector of %s: %s\n", d.Symbol, style.Sector)
	}
	if style.PositionWeight > 0 {
		fmt.Fprintf(&sb, "- Weight of %s: %s of total value\n", d.Symbol, Percent(style.PositionWeight/100))
	}

	sb.WriteString("\nRISK\n")
	fmt.Fprintf(&sb, "- Risk score %d/100 (%s)\n", style.RiskScore, style.RiskLabel)
	for _, r := range style.RiskReasons {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	if len(style.Alerts) > 0 {
		sb.WriteString("\nCONCENTRATION ALERTS\n")
		for _, a := range style.Alerts {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
	}

	sb.WriteString("\nExplain calmly what this change means for a long-term investor.")
	return sb.String()
}
