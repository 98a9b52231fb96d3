package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
	"defi-revenue-lab/internal/evmrpc/stub"
)

var (
	poolA = domain.Address("0x1111111111111111111111111111111111111111")
	poolB = domain.Address("0x2222222222222222222222222222222222222222")
	poolC = domain.Address("0x3333333333333333333333333333333333333333")
	gauge = domain.Address("0x9999999999999999999999999999999999999999")
	voter = domain.Address("0x9f59398d0a397b2eeb8a6123a6c7295cb0b0062d")
)

func candidates(addrs ...domain.Address) []Candidate {
	out := make([]Candidate, len(addrs))
	for i, a := range addrs {
		out[i] = Candidate{Address: a, FeeRate: 0.003}
	}
	return out
}

func TestClassify_Regimes(t *testing.T) {
	cands := candidates(poolA, poolB, poolC)
	probes := ProbeSet{
		Legacy: []bool{true, false, false},
		CL:     []bool{false, true, true},
		Gauges: []domain.Address{gauge, domain.ZeroAddress, gauge},
	}

	venues := Classify(cands, probes)
	require.Len(t, venues, 3)
	assert.Equal(t, domain.RegimeLegacyGauged, venues[0].Regime)
	assert.Equal(t, domain.RegimeCL, venues[1].Regime)
	assert.Equal(t, domain.RegimeCLGauged, venues[2].Regime)
}

func TestClassify_UnroutableExcluded(t *testing.T) {
	// A venue answering neither capability probe is dropped entirely.
	cands := candidates(poolA, poolB)
	probes := ProbeSet{
		Legacy: []bool{false, true},
		CL:     []bool{false, false},
		Gauges: []domain.Address{gauge, domain.ZeroAddress},
	}

	venues := Classify(cands, probes)
	require.Len(t, venues, 1)
	assert.Equal(t, poolB, venues[0].Address)
	assert.Equal(t, domain.RegimeLegacy, venues[0].Regime)
}

func TestClassify_LegacyPrecedence(t *testing.T) {
	// Both probes answering resolves to legacy.
	venues := Classify(candidates(poolA), ProbeSet{
		Legacy: []bool{true},
		CL:     []bool{true},
		Gauges: []domain.Address{domain.ZeroAddress},
	})
	require.Len(t, venues, 1)
	assert.Equal(t, domain.RegimeLegacy, venues[0].Regime)
}

func TestClassify_ZeroAddressStringIsNoGauge(t *testing.T) {
	// Some transports hand back a zero-filled hex string instead of an
	// empty value; it must classify as "no gauge", not as gauged.
	zeroFilled := domain.NormalizeAddress("0x0000000000000000000000000000000000000000")
	venues := Classify(candidates(poolA), ProbeSet{
		Legacy: []bool{true},
		CL:     []bool{false},
		Gauges: []domain.Address{zeroFilled},
	})
	require.Len(t, venues, 1)
	assert.Equal(t, domain.RegimeLegacy, venues[0].Regime)
	assert.False(t, venues[0].Regime.Gauged())
}

func TestClassify_ShortProbeSlices(t *testing.T) {
	// Missing probe entries read as absent capability.
	venues := Classify(candidates(poolA, poolB), ProbeSet{
		Legacy: []bool{true},
	})
	require.Len(t, venues, 1)
	assert.Equal(t, poolA, venues[0].Address)
}

var (
	isLegacyFn = evmrpc.MustFuncSpec("function isLegacyPool(address pool) view returns (bool)")
	isClFn     = evmrpc.MustFuncSpec("function isClPool(address pool) view returns (bool)")
	gaugeForFn = evmrpc.MustFuncSpec("function gaugeForPool(address pool) view returns (address)")
)

func TestProber_FailedProbeIsFalse(t *testing.T) {
	chain := stub.NewChainReader()
	// poolA answers all probes; poolB reverts on everything.
	chain.SetCall("isLegacyPool", voter, evmrpc.NewCallResult(true), poolA)
	chain.SetCall("isClPool", voter, evmrpc.NewCallResult(false), poolA)
	chain.SetCall("gaugeForPool", voter, evmrpc.NewCallResult(gauge), poolA)

	prober := NewProber(chain, voter, isLegacyFn, isClFn, gaugeForFn)
	probes, err := prober.Probe(context.Background(), []domain.Address{poolA, poolB})
	require.NoError(t, err)

	assert.True(t, probes.Legacy[0])
	assert.Equal(t, gauge, probes.Gauges[0])

	// Probe failure is absence of the capability, never an error.
	assert.False(t, probes.Legacy[1])
	assert.False(t, probes.CL[1])
	assert.Equal(t, domain.ZeroAddress, probes.Gauges[1])
}

func TestProber_FailureIsolation(t *testing.T) {
	// A failed probe for one venue must not zero out or corrupt results
	// for other venues in the same batch.
	chain := stub.NewChainReader()
	chain.SetCall("isLegacyPool", voter, evmrpc.NewCallResult(true), poolA)
	chain.SetCall("isLegacyPool", voter, evmrpc.NewCallResult(true), poolC)
	chain.SetCall("gaugeForPool", voter, evmrpc.NewCallResult(gauge), poolC)

	prober := NewProber(chain, voter, isLegacyFn, nil, gaugeForFn)
	probes, err := prober.Probe(context.Background(), []domain.Address{poolA, poolB, poolC})
	require.NoError(t, err)

	venues := Classify(candidates(poolA, poolB, poolC), probes)
	require.Len(t, venues, 2)
	assert.Equal(t, domain.RegimeLegacy, venues[0].Regime)
	assert.Equal(t, domain.RegimeLegacyGauged, venues[1].Regime)
}
