package attribution

import (
	"math/big"

	"defi-revenue-lab/internal/domain"
)

// AttributeSwaps folds swap events into volume, fee and revenue-split
// accumulators, dispatching on each venue's resolved regime.
//
// Per swap side, volume is the magnitude of the amount (CL venues emit
// signed deltas), the fee is floor(volume * feeRate), and the split depends
// on gauge presence: on a gauged venue swap fees flow in full to liquidity
// providers through the gauge, so the whole fee is supply-side revenue and
// the protocol cut is zero. On ungauged venues the protocol share is carved
// out first and the remainder goes supply-side, keeping
// fee == protocol + supplySide exact by construction.
//
// Events referencing a venue outside the classified set are skipped; they
// carry no fee rate or regime to attribute against.
func AttributeSwaps(venues map[domain.Address]domain.Venue, events []domain.SwapEvent, protocolShare float64) *Bundle {
	bundle := NewBundle()
	for _, ev := range events {
		venue, ok := venues[ev.Venue]
		if !ok {
			continue
		}
		attributeSide(bundle, venue, venue.Token0, ev.Amount0, protocolShare)
		attributeSide(bundle, venue, venue.Token1, ev.Amount1, protocolShare)
	}
	return bundle
}

func attributeSide(b *Bundle, venue domain.Venue, token domain.Address, amount *big.Int, protocolShare float64) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	volume := new(big.Int).Abs(amount)
	fee := mulRateFloor(volume, venue.FeeRate)

	b.DailyVolume.Add(token, volume)
	b.DailyFees.Add(token, fee)

	if venue.Regime.Gauged() {
		b.DailySupplySideRevenue.Add(token, fee)
		return
	}

	protocolFee := mulRateFloor(fee, protocolShare)
	supplySide := new(big.Int).Sub(fee, protocolFee)

	b.DailyRevenue.Add(token, protocolFee)
	b.DailyProtocolRevenue.Add(token, protocolFee)
	b.DailySupplySideRevenue.Add(token, supplySide)
}
