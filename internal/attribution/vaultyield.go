package attribution

import (
	"math/big"

	"defi-revenue-lab/internal/domain"
)

// SecondsPerYear prorates management fees. Fixed 365-day year.
const SecondsPerYear = 365 * 24 * 3600

// RateScale is the fixed-point base of the share-to-asset conversion rate:
// convertToAssets(RateScale) prices one full share.
var RateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// VaultObservation pairs a vault's window-end state with its pre/post
// conversion-rate snapshots.
type VaultObservation struct {
	Vault    domain.Vault
	Snapshot domain.VaultSnapshot
}

// Complete reports whether every read the attribution needs is present.
func (o VaultObservation) Complete() bool {
	return !o.Vault.Asset.IsZero() &&
		o.Vault.TotalAssets != nil &&
		o.Snapshot.RateBefore != nil &&
		o.Snapshot.RateAfter != nil
}

// AttributeVaultYield folds per-vault observations into yield, fee and
// revenue accumulators, returning the bundle and the count of vaults skipped
// for missing reads.
//
// Yield is the share-price delta over the window scaled by the vault
// balance, computed in integer arithmetic. It may be negative when the share
// price declined; negative yield propagates as negative fees. The
// performance fee is yield-proportional and time-independent; the management
// fee is balance-proportional and strictly time-prorated. The protocol cut
// applies to both fees at the vault's registry rate, zero when the registry
// carries no entry.
//
// A vault missing any read (asset, balance, either snapshot rate) is skipped
// whole: a one-sided snapshot cannot be extrapolated into a delta.
func AttributeVaultYield(observations []VaultObservation, window domain.Window) (*Bundle, int) {
	bundle := NewBundle()
	skipped := 0
	for _, obs := range observations {
		if !obs.Complete() {
			skipped++
			continue
		}
		attributeVault(bundle, obs, window)
	}
	return bundle, skipped
}

func attributeVault(b *Bundle, obs VaultObservation, window domain.Window) {
	vault := obs.Vault

	// cumulativeYield = (rateAfter - rateBefore) * balance / RateScale,
	// exact in big-int arithmetic. Quo truncates toward zero.
	yield := new(big.Int).Sub(obs.Snapshot.RateAfter, obs.Snapshot.RateBefore)
	yield.Mul(yield, vault.TotalAssets)
	yield.Quo(yield, RateScale)

	yieldF, _ := new(big.Float).SetInt(yield).Float64()
	performanceFee := floatToUnits(yieldF * vault.Rates.Performance)
	supplySideYield := new(big.Int).Sub(yield, performanceFee)

	balanceF, _ := new(big.Float).SetInt(vault.TotalAssets).Float64()
	yearFraction := float64(window.Duration()) / SecondsPerYear
	managementFee := floatToUnits(balanceF * vault.Rates.Management * yearFraction)

	asset := vault.Asset
	b.DailyFees.AddTagged(asset, domain.TagAssetYields, supplySideYield)
	b.DailyFees.AddTagged(asset, domain.TagPerformanceFees, performanceFee)
	b.DailyFees.AddTagged(asset, domain.TagManagementFees, managementFee)

	b.DailyRevenue.AddTagged(asset, domain.TagPerformanceFees, performanceFee)
	b.DailyRevenue.AddTagged(asset, domain.TagManagementFees, managementFee)
	b.DailySupplySideRevenue.AddTagged(asset, domain.TagAssetYields, supplySideYield)

	if vault.Rates.Protocol != 0 {
		perfF, _ := new(big.Float).SetInt(performanceFee).Float64()
		mgmtF, _ := new(big.Float).SetInt(managementFee).Float64()
		b.DailyProtocolRevenue.Add(asset, floatToUnits((perfF+mgmtF)*vault.Rates.Protocol))
	}
}
