package slackbot

import (
	"fmt"
	"strings"
	"time"

	"incidentrag/internal/index"
	"incidentrag/internal/query"
)

const (
	maxSourcesShown    = 5
	maxCategoriesShown = 10
)

func formatAnswer(resp query.Response) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)

	if n := len(resp.IncidentIDs); n > 0 {
		shown := resp.IncidentIDs
		if n > maxSourcesShown {
			shown = shown[:maxSourcesShown]
		}
		sb.WriteString("\n\n*Sources:* " + strings.Join(shown, ", "))
		if n > maxSourcesShown {
			sb.WriteString(fmt.Sprintf(" (+%d more)", n-maxSourcesShown))
		}
	}

	meta := fmt.Sprintf("Query type: %s, k=%d", resp.Type, resp.K)
	if resp.FellBack {
		meta += ", filters relaxed"
	}
	sb.WriteString("\n_" + meta + "_")
	sb.WriteString(fmt.Sprintf("\n_Response time: %s, tokens: %s_",
		formatDuration(resp.Metrics.ResponseTime), formatTokenCount(resp.Metrics.TotalTokens)))
	return sb.String()
}

func formatStats(total int, categories []index.CategoryCount, teams []string) string {
	if total == 0 {
		return "The knowledge base is empty. An admin can load incidents with /reindex."
	}
	var sb strings.Builder
	sb.WriteString("*Knowledge Base*\n")
	sb.WriteString(fmt.Sprintf("- Incidents: %d\n", total))
	if len(teams) > 0 {
		sb.WriteString(fmt.Sprintf("- Teams: %d\n", len(teams)))
	}
	if len(categories) > 0 {
		sb.WriteString("\n*By Category*\n")
		for i, c := range categories {
			if i == maxCategoriesShown {
				sb.WriteString(fmt.Sprintf("- ... and %d more\n", len(categories)-maxCategoriesShown))
				break
			}
			label := c.Category
			if label == "" {
				label = "(none)"
			}
			sb.WriteString(fmt.Sprintf("- %s: %d\n", label, c.Count))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTokenCount(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	rounded := (tokens + 50) / 100
	whole := rounded / 10
	decimal := rounded % 10
	if decimal == 0 {
		return fmt.Sprintf("%dk", whole)
	}
	return fmt.Sprintf("%d.%dk", whole, decimal)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
