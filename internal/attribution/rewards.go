package attribution

import (
	"defi-revenue-lab/internal/balances"
	"defi-revenue-lab/internal/domain"
)

// Distributor is a fee-distributor contract attached to a gauged venue,
// discovered from gauge-creation events and partitioned by the venue family
// its gauge serves.
type Distributor struct {
	Address domain.Address
	Legacy  bool
}

// RewardTotals holds per-token sums of the two distributor event streams,
// partitioned by venue family. Downstream reporting keeps holder rewards and
// bribes from legacy and CL venues separate.
type RewardTotals struct {
	LegacyHolders *balances.Accumulator
	CLHolders     *balances.Accumulator
	LegacyBribes  *balances.Accumulator
	CLBribes      *balances.Accumulator
}

// NewRewardTotals creates empty reward totals.
func NewRewardTotals() *RewardTotals {
	return &RewardTotals{
		LegacyHolders: balances.New(),
		CLHolders:     balances.New(),
		LegacyBribes:  balances.New(),
		CLBribes:      balances.New(),
	}
}

// CollectRewards sums reward-notification and voting-incentive amounts per
// reward token across the distributor set.
//
// Events from addresses outside the distributor set are skipped. A
// distributor with no events contributes nothing; that is the normal case
// for a gauge with no activity in the window, not an error.
func CollectRewards(distributors []Distributor, notified, incentivized []domain.RewardEvent) *RewardTotals {
	byAddr := make(map[domain.Address]Distributor, len(distributors))
	for _, d := range distributors {
		byAddr[d.Address] = d
	}

	totals := NewRewardTotals()
	for _, ev := range notified {
		d, ok := byAddr[ev.Distributor]
		if !ok {
			continue
		}
		if d.Legacy {
			totals.LegacyHolders.Add(ev.RewardToken, ev.Amount)
		} else {
			totals.CLHolders.Add(ev.RewardToken, ev.Amount)
		}
	}
	for _, ev := range incentivized {
		d, ok := byAddr[ev.Distributor]
		if !ok {
			continue
		}
		if d.Legacy {
			totals.LegacyBribes.Add(ev.RewardToken, ev.Amount)
		} else {
			totals.CLBribes.Add(ev.RewardToken, ev.Amount)
		}
	}
	return totals
}

// Fold merges the reward totals into the bundle's holders/bribes metrics,
// selecting the venue families the run covers.
func (t *RewardTotals) Fold(b *Bundle, includeLegacy, includeCL bool) {
	if includeLegacy {
		b.DailyHoldersRevenue.Merge(t.LegacyHolders)
		b.DailyBribesRevenue.Merge(t.LegacyBribes)
	}
	if includeCL {
		b.DailyHoldersRevenue.Merge(t.CLHolders)
		b.DailyBribesRevenue.Merge(t.CLBribes)
	}
}
