package attribution

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"defi-revenue-lab/internal/domain"
)

var (
	legacyDist  = domain.Address("0xd111111111111111111111111111111111111111")
	clDist      = domain.Address("0xd222222222222222222222222222222222222222")
	idleDist    = domain.Address("0xd333333333333333333333333333333333333333")
	rewardToken = domain.Address("0x3333b97138d4b086720b5ae8a7844b1345a33333")
)

func TestCollectRewards_SumsPerToken(t *testing.T) {
	distributors := []Distributor{
		{Address: legacyDist, Legacy: true},
		{Address: clDist, Legacy: false},
	}
	notified := []domain.RewardEvent{
		{Distributor: legacyDist, RewardToken: rewardToken, Amount: big.NewInt(100)},
		{Distributor: legacyDist, RewardToken: rewardToken, Amount: big.NewInt(250)},
		{Distributor: clDist, RewardToken: rewardToken, Amount: big.NewInt(40)},
	}
	incentivized := []domain.RewardEvent{
		{Distributor: clDist, RewardToken: rewardToken, Amount: big.NewInt(7)},
	}

	totals := CollectRewards(distributors, notified, incentivized)

	assert.Equal(t, big.NewInt(350), totals.LegacyHolders.Get(rewardToken, ""))
	assert.Equal(t, big.NewInt(40), totals.CLHolders.Get(rewardToken, ""))
	assert.Equal(t, big.NewInt(7), totals.CLBribes.Get(rewardToken, ""))
	assert.Equal(t, 0, totals.LegacyBribes.Len())
}

func TestCollectRewards_EmptyDistributorContributesNothing(t *testing.T) {
	distributors := []Distributor{
		{Address: legacyDist, Legacy: true},
		{Address: idleDist, Legacy: true},
	}
	notified := []domain.RewardEvent{
		{Distributor: legacyDist, RewardToken: rewardToken, Amount: big.NewInt(500)},
	}

	totals := CollectRewards(distributors, notified, nil)

	// Total equals the sum over only the non-empty distributor.
	assert.Equal(t, big.NewInt(500), totals.LegacyHolders.Get(rewardToken, ""))
	assert.Equal(t, 1, totals.LegacyHolders.Len())
}

func TestCollectRewards_UnknownDistributorSkipped(t *testing.T) {
	stranger := domain.Address("0xdeaddeaddeaddeaddeaddeaddeaddeaddeaddead")
	notified := []domain.RewardEvent{
		{Distributor: stranger, RewardToken: rewardToken, Amount: big.NewInt(999)},
	}

	totals := CollectRewards([]Distributor{{Address: legacyDist, Legacy: true}}, notified, nil)
	assert.Equal(t, 0, totals.LegacyHolders.Len())
	assert.Equal(t, 0, totals.CLHolders.Len())
}

func TestRewardTotals_FoldSelectsFamilies(t *testing.T) {
	totals := NewRewardTotals()
	totals.LegacyHolders.Add(rewardToken, big.NewInt(10))
	totals.CLHolders.Add(rewardToken, big.NewInt(20))
	totals.CLBribes.Add(rewardToken, big.NewInt(5))

	legacyOnly := NewBundle()
	totals.Fold(legacyOnly, true, false)
	assert.Equal(t, big.NewInt(10), legacyOnly.DailyHoldersRevenue.Get(rewardToken, ""))
	assert.Equal(t, 0, legacyOnly.DailyBribesRevenue.Len())

	both := NewBundle()
	totals.Fold(both, true, true)
	assert.Equal(t, big.NewInt(30), both.DailyHoldersRevenue.Get(rewardToken, ""))
	assert.Equal(t, big.NewInt(5), both.DailyBribesRevenue.Get(rewardToken, ""))
}

func TestCollectTokenTaxes(t *testing.T) {
	events := []domain.TaxEvent{
		{Token: rewardToken, Amount: big.NewInt(300)},
		{Token: rewardToken, Amount: big.NewInt(200)},
	}

	acc := CollectTokenTaxes(events)
	assert.Equal(t, big.NewInt(500), acc.Get(rewardToken, ""))
}
