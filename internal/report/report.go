// Package report renders a finished attribution run as Markdown or CSV.
package report

import (
	"time"

	"defi-revenue-lab/internal/attribution"
	"defi-revenue-lab/internal/domain"
)

// Report represents one attribution run's renderable output.
type Report struct {
	// Metadata
	RunID       string
	Protocol    string
	Chain       string
	Window      domain.Window
	GeneratedAt time.Time

	// Run summary
	VenuesClassified int
	SwapsFetched     int
	VaultsObserved   int
	VaultsSkipped    int
	Errors           []string

	// Metric rows (sorted by metric, token, tag)
	Rows []domain.MetricRow
}

// Build assembles a report from an engine result.
func Build(runID, protocol, chain string, window domain.Window, result *attribution.RunResult) *Report {
	return &Report{
		RunID:            runID,
		Protocol:         protocol,
		Chain:            chain,
		Window:           window,
		GeneratedAt:      time.Now().UTC(),
		VenuesClassified: result.VenuesClassified,
		SwapsFetched:     result.SwapsFetched,
		VaultsObserved:   result.VaultsObserved,
		VaultsSkipped:    result.VaultsSkipped,
		Errors:           result.Errors,
		Rows:             result.Bundle.Rows(runID),
	}
}
