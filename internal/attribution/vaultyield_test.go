package attribution

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-revenue-lab/internal/domain"
)

var (
	vaultAddr = domain.Address("0x936facdf10c8c36294e7b9d28345255539d81bc7")
	assetAddr = domain.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

func wei(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return n
}

func dayWindow() domain.Window {
	return domain.Window{FromBlock: 1000, ToBlock: 2000, FromTime: 1_700_000_000, ToTime: 1_700_000_000 + 86_400}
}

func observation(rates domain.FeeRates) VaultObservation {
	return VaultObservation{
		Vault: domain.Vault{
			Address:     vaultAddr,
			Asset:       assetAddr,
			TotalAssets: wei("100000000000000000000"), // 100e18
			Rates:       rates,
		},
		Snapshot: domain.VaultSnapshot{
			Vault:      vaultAddr,
			RateBefore: wei("1000000000000000000"), // 1.00e18
			RateAfter:  wei("1020000000000000000"), // 1.02e18
		},
	}
}

func TestAttributeVaultYield_YieldDecomposition(t *testing.T) {
	obs := observation(domain.FeeRates{Performance: 0.1})

	b, skipped := AttributeVaultYield([]VaultObservation{obs}, dayWindow())
	require.Equal(t, 0, skipped)

	// cumulativeYield = 0.02e18 * 100e18 / 1e18 = 2e18
	assert.Equal(t, wei("200000000000000000"), b.DailyFees.Get(assetAddr, domain.TagPerformanceFees))
	assert.Equal(t, wei("1800000000000000000"), b.DailyFees.Get(assetAddr, domain.TagAssetYields))
	assert.Equal(t, wei("1800000000000000000"), b.DailySupplySideRevenue.Get(assetAddr, domain.TagAssetYields))
	assert.Equal(t, wei("200000000000000000"), b.DailyRevenue.Get(assetAddr, domain.TagPerformanceFees))

	// No registry entry, no protocol cut.
	assert.Equal(t, 0, b.DailyProtocolRevenue.TokenTotal(assetAddr).Sign())
}

func TestAttributeVaultYield_ManagementFeeTimeProrated(t *testing.T) {
	rates := domain.FeeRates{Management: 0.02}
	year := domain.Window{FromBlock: 1, ToBlock: 2, FromTime: 0, ToTime: SecondsPerYear}
	halfYear := domain.Window{FromBlock: 1, ToBlock: 2, FromTime: 0, ToTime: SecondsPerYear / 2}

	full, _ := AttributeVaultYield([]VaultObservation{observation(rates)}, year)
	half, _ := AttributeVaultYield([]VaultObservation{observation(rates)}, halfYear)

	fullFee := full.DailyFees.Get(assetAddr, domain.TagManagementFees)
	halfFee := half.DailyFees.Get(assetAddr, domain.TagManagementFees)

	// 100e18 * 0.02 over a full year = 2e18, half over half a year.
	assert.Equal(t, wei("2000000000000000000"), fullFee)
	assert.Equal(t, new(big.Int).Mul(halfFee, big.NewInt(2)), fullFee)
}

func TestAttributeVaultYield_PerformanceFeeTimeIndependent(t *testing.T) {
	rates := domain.FeeRates{Performance: 0.1}

	day, _ := AttributeVaultYield([]VaultObservation{observation(rates)}, dayWindow())
	week := domain.Window{FromBlock: 1000, ToBlock: 2000, FromTime: 0, ToTime: 7 * 86_400}
	weekly, _ := AttributeVaultYield([]VaultObservation{observation(rates)}, week)

	assert.Equal(t,
		day.DailyFees.Get(assetAddr, domain.TagPerformanceFees),
		weekly.DailyFees.Get(assetAddr, domain.TagPerformanceFees))
}

func TestAttributeVaultYield_ProtocolCut(t *testing.T) {
	obs := observation(domain.FeeRates{Performance: 0.1, Protocol: 0.05})

	b, _ := AttributeVaultYield([]VaultObservation{obs}, dayWindow())

	// 5% of the 2e17 performance fee.
	assert.Equal(t, wei("10000000000000000"), b.DailyProtocolRevenue.Get(assetAddr, ""))
}

func TestAttributeVaultYield_NegativeYieldPropagates(t *testing.T) {
	obs := observation(domain.FeeRates{Performance: 0.1})
	obs.Snapshot.RateAfter = wei("990000000000000000") // 0.99e18, share price fell

	b, skipped := AttributeVaultYield([]VaultObservation{obs}, dayWindow())
	require.Equal(t, 0, skipped)

	// cumulativeYield = -1e18; fees go negative rather than flooring at zero.
	yield := b.DailySupplySideRevenue.Get(assetAddr, domain.TagAssetYields)
	assert.Equal(t, -1, yield.Sign())
	assert.Equal(t, -1, b.DailyFees.Get(assetAddr, domain.TagPerformanceFees).Sign())
}

func TestAttributeVaultYield_IncompleteVaultSkippedWhole(t *testing.T) {
	missing := []VaultObservation{
		func() VaultObservation {
			o := observation(domain.FeeRates{})
			o.Snapshot.RateBefore = nil
			return o
		}(),
		func() VaultObservation {
			o := observation(domain.FeeRates{})
			o.Vault.Asset = domain.ZeroAddress
			return o
		}(),
		func() VaultObservation {
			o := observation(domain.FeeRates{})
			o.Vault.TotalAssets = nil
			return o
		}(),
	}

	b, skipped := AttributeVaultYield(missing, dayWindow())
	assert.Equal(t, 3, skipped)
	assert.Equal(t, 0, b.DailyFees.Len())
}
