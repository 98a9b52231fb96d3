// Package attribution implements the revenue attribution engine: swap-fee
// attribution over classified AMM venues, vault-yield attribution over
// pre/post-window snapshots, and reward/bribe collection from fee
// distributors, all folded into a bundle of named token accumulators.
package attribution

import (
	"defi-revenue-lab/internal/balances"
	"defi-revenue-lab/internal/domain"
)

// Bundle is the result of one attribution run: the standardized metric
// accumulators in the venue's native token addressing. No price conversion
// happens here.
type Bundle struct {
	DailyFees              *balances.Accumulator
	DailyRevenue           *balances.Accumulator
	DailySupplySideRevenue *balances.Accumulator
	DailyProtocolRevenue   *balances.Accumulator
	DailyVolume            *balances.Accumulator
	DailyHoldersRevenue    *balances.Accumulator
	DailyBribesRevenue     *balances.Accumulator
	DailyTokenTaxes        *balances.Accumulator
}

// NewBundle creates a bundle with empty accumulators.
func NewBundle() *Bundle {
	return &Bundle{
		DailyFees:              balances.New(),
		DailyRevenue:           balances.New(),
		DailySupplySideRevenue: balances.New(),
		DailyProtocolRevenue:   balances.New(),
		DailyVolume:            balances.New(),
		DailyHoldersRevenue:    balances.New(),
		DailyBribesRevenue:     balances.New(),
		DailyTokenTaxes:        balances.New(),
	}
}

// Merge folds other into b, accumulator by accumulator. Commutative.
func (b *Bundle) Merge(other *Bundle) {
	if other == nil {
		return
	}
	b.DailyFees.Merge(other.DailyFees)
	b.DailyRevenue.Merge(other.DailyRevenue)
	b.DailySupplySideRevenue.Merge(other.DailySupplySideRevenue)
	b.DailyProtocolRevenue.Merge(other.DailyProtocolRevenue)
	b.DailyVolume.Merge(other.DailyVolume)
	b.DailyHoldersRevenue.Merge(other.DailyHoldersRevenue)
	b.DailyBribesRevenue.Merge(other.DailyBribesRevenue)
	b.DailyTokenTaxes.Merge(other.DailyTokenTaxes)
}

// Metrics returns the accumulators keyed by metric name.
func (b *Bundle) Metrics() map[string]*balances.Accumulator {
	return map[string]*balances.Accumulator{
		domain.MetricDailyFees:              b.DailyFees,
		domain.MetricDailyRevenue:           b.DailyRevenue,
		domain.MetricDailySupplySideRevenue: b.DailySupplySideRevenue,
		domain.MetricDailyProtocolRevenue:   b.DailyProtocolRevenue,
		domain.MetricDailyVolume:            b.DailyVolume,
		domain.MetricDailyHoldersRevenue:    b.DailyHoldersRevenue,
		domain.MetricDailyBribesRevenue:     b.DailyBribesRevenue,
		domain.MetricDailyTokenTaxes:        b.DailyTokenTaxes,
	}
}

// Rows flattens the bundle into persistable metric rows in deterministic
// (metric, token, tag) order.
func (b *Bundle) Rows(runID string) []domain.MetricRow {
	metricOrder := []string{
		domain.MetricDailyFees,
		domain.MetricDailyRevenue,
		domain.MetricDailySupplySideRevenue,
		domain.MetricDailyProtocolRevenue,
		domain.MetricDailyVolume,
		domain.MetricDailyHoldersRevenue,
		domain.MetricDailyBribesRevenue,
		domain.MetricDailyTokenTaxes,
	}
	byName := b.Metrics()

	var rows []domain.MetricRow
	for _, metric := range metricOrder {
		for _, row := range byName[metric].Rows() {
			rows = append(rows, domain.MetricRow{
				RunID:  runID,
				Metric: metric,
				Token:  row.Token,
				Tag:    row.Tag,
				Amount: row.Amount.String(),
			})
		}
	}
	return rows
}
