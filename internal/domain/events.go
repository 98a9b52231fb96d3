package domain

import "math/big"

// SwapEvent is one decoded swap log against a venue.
//
// Amounts are signed per the AMM convention: for legacy pairs the positive
// side is the in-flow, for CL pools amount0/amount1 carry the pool's view of
// the trade with opposite signs. Volume is direction-agnostic, so attribution
// only ever uses absolute values. Events are ephemeral and never mutated.
type SwapEvent struct {
	Venue     Address
	Amount0   *big.Int
	Amount1   *big.Int
	Block     uint64
	Timestamp int64
}

// VaultSnapshot carries the share-to-asset conversion rate sampled at the
// window start and end. Rates are fixed-point with RateScale as the base.
type VaultSnapshot struct {
	Vault      Address
	RateBefore *big.Int
	RateAfter  *big.Int
}

// RewardEvent is one reward-notification or bribe log from a fee distributor.
type RewardEvent struct {
	Distributor Address
	RewardToken Address
	Amount      *big.Int
	Period      uint64
}

// TaxEvent is one token-tax log, e.g. an instant-exit penalty where the full
// logged amount is retained as a tax on the exiting token.
type TaxEvent struct {
	Token  Address
	Amount *big.Int
}
