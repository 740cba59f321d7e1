package advisor

import (
	"fmt"
	"strings"
	"time"

	"farewatch/internal/domain"
	"farewatch/internal/service"
)

const advisorPhilosophy = `You are a flight fare advisor bot. Your role is to interpret tracked route data and price history, NOT to invent fares.

Rules:
- Always reference specific routes and recorded prices when making observations.
- Never fabricate prices. If data is unavailable, say so.
- A route's alert threshold is the running average reduced by its configured percentage; prices strictly below it triggered alerts.
- When asked about a route, summarize: latest observed price, running average, alert threshold, and recent alerts.
- If a route has no price history yet, say so honestly rather than speculating.
- Fares are volatile; frame any "book now or wait" opinion as a judgement call, not a guarantee.
- Keep responses concise and actionable. You are talking via Telegram.`

func BuildSystemPrompt(travelContext string) string {
	var sb strings.Builder
	sb.WriteString(advisorPhilosophy)
	sb.WriteString("\n\n--- TRACKED ROUTE DATA (as of ")
	sb.WriteString(time.Now().UTC().Format(time.RFC822))
	sb.WriteString(") ---\n")
	sb.WriteString(travelContext)
	return sb.String()
}

func FormatTravelContext(
	routes []*domain.TrackedRoute,
	summaries map[string]*service.Summary,
	alerts map[string][]*domain.PriceAlert,
) string {
	var sb strings.Builder

	if len(routes) > 0 {
		sb.WriteString("\nTracked Routes:\n")
		for _, r := range routes {
			status := "active"
			if !r.IsActive {
				status = "paused"
			}
			sb.WriteString(fmt.Sprintf("  %s-%s departing %s (±%dd, alert at %.1f%% below average, %s)\n",
				r.Origin, r.Destination, r.DepartureDate.Format("2006-01-02"),
				r.FlexibilityDays, r.ThresholdPercent, status))

			if s, ok := summaries[r.ID]; ok && s.AveragePrice > 0 {
				line := fmt.Sprintf("    average %.2f, alert threshold %.2f", s.AveragePrice, s.ThresholdPrice)
				if s.Latest != nil {
					line += fmt.Sprintf(", latest %.2f %s at %s",
						s.Latest.Price, s.Latest.Currency, s.Latest.ObservedAt.Format(time.RFC822))
				}
				sb.WriteString(line + "\n")
			}

			for _, a := range alerts[r.ID] {
				sb.WriteString(fmt.Sprintf("    ALERT %s: %.2f -> %.2f (%.1f%%)\n",
					a.AlertedAt.Format("2006-01-02"), a.OldPrice, a.NewPrice, a.PercentChange))
			}
		}
	}

	if sb.Len() == 0 {
		return "No tracked routes yet."
	}
	return sb.String()
}
