package attribution

import (
	"defi-revenue-lab/internal/balances"
	"defi-revenue-lab/internal/domain"
)

// CollectTokenTaxes sums tax events (instant-exit penalties and similar
// full-retention charges) per token.
func CollectTokenTaxes(events []domain.TaxEvent) *balances.Accumulator {
	acc := balances.New()
	for _, ev := range events {
		acc.Add(ev.Token, ev.Amount)
	}
	return acc
}
