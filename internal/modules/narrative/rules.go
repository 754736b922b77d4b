package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// ProviderRules is the name recorded on rules-based insights
const ProviderRules = "rules"

// RulesExplainer writes deterministic narratives without any external call
type RulesExplainer struct{}

// NewRulesExplainer creates a rules explainer
func NewRulesExplainer() *RulesExplainer {
	return &RulesExplainer{}
}

// Name implements domain.Explainer
func (e *RulesExplainer) Name() string { return ProviderRules }

// Explain implements domain.Explainer
func (e *RulesExplainer) Explain(ctx context.Context, d domain.Delta, style domain.StyleContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var md strings.Builder
	writeSection(&md, "1. Observations", observations(d, style))
	md.WriteString("\n")
	writeSection(&md, "2. Risks", risks(style))
	md.WriteString("\n")
	writeSection(&md, "3. Actions", actions(d, style))
	md.WriteString("\n**4. Mentor's Note**\n")
	md.WriteString(MentorNote)
	return md.String(), nil
}

func writeSection(md *strings.Builder, title string, lines []string) {
	fmt.Fprintf(md, "**%s**\n", title)
	for _, l := range lines {
		fmt.Fprintf(md, "* %s\n", l)
	}
}

func observations(d domain.Delta, style domain.StyleContext) []string {
	obs := []string{Headline(d) + "."}
	if style.PositionWeight > 0 {
		obs = append(obs, fmt.Sprintf("%s is now %s of a %s portfolio across %d holdings.",
			d.Symbol, Percent(style.PositionWeight/100), Money(style.TotalValue), style.HoldingCount))
	} else if style.TotalValue > 0 {
		obs = append(obs, fmt.Sprintf("Portfolio value is %s across %d holdings.", Money(style.TotalValue), style.HoldingCount))
	}
	if style.DayChangePct < 0 {
		obs = append(obs, "Short-term momentum is negative today.")
	} else if style.DayChangePct > 0 {
		obs = append(obs, "Daily performance is positive.")
	}
	return obs
}

func risks(style domain.StyleContext) []string {
	var out []string
	if style.RiskLabel != "" {
		out = append(out, fmt.Sprintf("Overall risk profile: **%s** (%d/100).", style.RiskLabel, style.RiskScore))
	}
	for _, r := range style.RiskReasons {
		out = append(out, "Factor: "+r)
	}
	for _, a := range style.Alerts {
		out = append(out, "Alert: "+a)
	}
	if len(out) == 0 {
		out = append(out, "No critical structural risks detected at this time.")
	}
	return out
}

func actions(d domain.Delta, style domain.StyleContext) []string {
	var out []string
	switch d.Kind {
	case domain.DeltaOpened:
		out = append(out, fmt.Sprintf("Consider whether the size of %s matches the allocation you intended.", d.Symbol))
	case domain.DeltaClosed:
		out = append(out, "Review how the freed capital fits your long-term allocation.")
	case domain.DeltaQuantityChanged:
		out = append(out, fmt.Sprintf("Confirm the change in %s was planned and recorded.", d.Symbol))
	default:
		out = append(out, fmt.Sprintf("Monitor %s over the coming weeks rather than reacting to a single move.", d.Symbol))
	}
	if len(style.Alerts) > 0 {
		out = append(out, "Review the concentration alerts listed above.")
	} else {
		out = append(out, "Review sector allocation during your next periodic check.")
	}
	return out
}
