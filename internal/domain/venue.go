package domain

import "math/big"

// Regime classifies a swap venue's fee routing.
// It is resolved once per discovery window and never re-probed per event.
type Regime int

// Venue regimes.
const (
	// RegimeUnknown marks a venue that answered neither capability probe.
	// Unroutable venues are excluded from attribution.
	RegimeUnknown Regime = iota
	RegimeLegacy
	RegimeLegacyGauged
	RegimeCL
	RegimeCLGauged
)

// String returns the regime label.
func (r Regime) String() string {
	switch r {
	case RegimeLegacy:
		return "LEGACY"
	case RegimeLegacyGauged:
		return "LEGACY_GAUGED"
	case RegimeCL:
		return "CL"
	case RegimeCLGauged:
		return "CL_GAUGED"
	default:
		return "UNKNOWN"
	}
}

// Gauged reports whether fees from this venue are routed to a reward gauge.
// Gauged venues contribute no protocol revenue from swap events.
func (r Regime) Gauged() bool {
	return r == RegimeLegacyGauged || r == RegimeCLGauged
}

// Legacy reports whether the venue is a constant-product pair.
func (r Regime) Legacy() bool {
	return r == RegimeLegacy || r == RegimeLegacyGauged
}

// CL reports whether the venue is a concentrated-liquidity pool.
func (r Regime) CL() bool {
	return r == RegimeCL || r == RegimeCLGauged
}

// Venue is a fee-generating AMM pool or pair.
// FeeRate is the swap fee as a fraction (e.g. 0.003 for 30 bps), read either
// from a per-venue fee call or from the pool-creation fee tier.
type Venue struct {
	Address Address
	Token0  Address
	Token1  Address
	FeeRate float64
	Regime  Regime
}

// FeeRates holds a vault's fee configuration as fractions of 1.
// ProtocolRate comes from the shared fee registry and is 0 when the
// registry has no entry for the vault.
type FeeRates struct {
	Management  float64
	Performance float64
	Protocol    float64
}

// Vault is a yield vault venue with its window-end state reads.
type Vault struct {
	Address     Address
	Asset       Address
	TotalAssets *big.Int
	Rates       FeeRates
}
