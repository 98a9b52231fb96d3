package report

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Attribution Report: %s (%s)\n\n", r.Protocol, r.Chain))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))

	// Window
	sb.WriteString("## Window\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| From Block | %d |\n", r.Window.FromBlock))
	sb.WriteString(fmt.Sprintf("| To Block | %d |\n", r.Window.ToBlock))
	sb.WriteString(fmt.Sprintf("| From Time | %s |\n", time.Unix(r.Window.FromTime, 0).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| To Time | %s |\n", time.Unix(r.Window.ToTime, 0).UTC().Format(time.RFC3339)))
	sb.WriteString("\n")

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Venues Classified | %d |\n", r.VenuesClassified))
	sb.WriteString(fmt.Sprintf("| Swaps Fetched | %d |\n", r.SwapsFetched))
	sb.WriteString(fmt.Sprintf("| Vaults Observed | %d |\n", r.VaultsObserved))
	sb.WriteString(fmt.Sprintf("| Vaults Skipped | %d |\n", r.VaultsSkipped))
	sb.WriteString("\n")

	// Localized failures, if any
	if len(r.Errors) > 0 {
		sb.WriteString("### Skipped Pipelines\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	// Metric totals
	sb.WriteString("## Metrics\n\n")
	if len(r.Rows) > 0 {
		sb.WriteString("| Metric | Token | Tag | Amount |\n")
		sb.WriteString("|--------|-------|-----|--------|\n")
		for _, row := range r.Rows {
			tag := row.Tag
			if tag == "" {
				tag = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				row.Metric, row.Token, tag, row.Amount))
		}
	} else {
		sb.WriteString("No metrics recorded for this window.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
