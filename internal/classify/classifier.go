// Package classify labels discovered venues with their fee-routing regime.
//
// Capability is probed at runtime with tolerant batched calls instead of any
// typed hierarchy: a venue is whatever it answers to. Probe failures mean
// the capability is absent, never that classification failed. The regime is
// resolved once per discovery window; attribution dispatches on the tag and
// never re-probes per event.
package classify

import (
	"context"
	"fmt"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
)

// Candidate is a discovered pool awaiting classification.
type Candidate struct {
	Address domain.Address
	Token0  domain.Address
	Token1  domain.Address
	FeeRate float64
}

// ProbeSet carries capability probe outcomes, positionally aligned with the
// candidate list they were probed for. A failed probe is false (or the zero
// address for gauges), by construction.
type ProbeSet struct {
	Legacy []bool
	CL     []bool
	Gauges []domain.Address
}

// Classify resolves a regime per candidate and drops unroutable venues.
//
// A venue answering neither the legacy nor the CL probe is excluded: venue
// discovery is best-effort and an unroutable venue simply contributes
// nothing. Legacy wins when both probes answer, matching probe precedence
// on chain. Gauge presence is a literal non-zero-address comparison.
func Classify(candidates []Candidate, probes ProbeSet) []domain.Venue {
	venues := make([]domain.Venue, 0, len(candidates))
	for i, cand := range candidates {
		gauged := i < len(probes.Gauges) && !probes.Gauges[i].IsZero()

		var regime domain.Regime
		switch {
		case probeAt(probes.Legacy, i) && gauged:
			regime = domain.RegimeLegacyGauged
		case probeAt(probes.Legacy, i):
			regime = domain.RegimeLegacy
		case probeAt(probes.CL, i) && gauged:
			regime = domain.RegimeCLGauged
		case probeAt(probes.CL, i):
			regime = domain.RegimeCL
		default:
			continue // unroutable
		}

		venues = append(venues, domain.Venue{
			Address: cand.Address,
			Token0:  cand.Token0,
			Token1:  cand.Token1,
			FeeRate: cand.FeeRate,
			Regime:  regime,
		})
	}
	return venues
}

func probeAt(probes []bool, i int) bool {
	return i < len(probes) && probes[i]
}

// Prober runs the three capability probes against a registry contract
// (the voter in gauge-based DEX designs), with per-call failures tolerated.
type Prober struct {
	chain    evmrpc.ChainReader
	registry domain.Address

	legacyFn *evmrpc.FuncSpec
	clFn     *evmrpc.FuncSpec
	gaugeFn  *evmrpc.FuncSpec
}

// NewProber creates a prober bound to the registry contract.
// The three signatures are boolean legacy/CL capability checks and an
// address-returning gauge lookup, each taking the venue address.
func NewProber(chain evmrpc.ChainReader, registry domain.Address, legacyFn, clFn, gaugeFn *evmrpc.FuncSpec) *Prober {
	return &Prober{
		chain:    chain,
		registry: registry,
		legacyFn: legacyFn,
		clFn:     clFn,
		gaugeFn:  gaugeFn,
	}
}

// Probe runs all three probes for the venue set.
// Only transport-level failures (the whole batch unreachable) are errors;
// per-venue reverts and absent capabilities land as false / zero address.
func (p *Prober) Probe(ctx context.Context, venues []domain.Address) (ProbeSet, error) {
	calls := make([]evmrpc.Call, len(venues))
	for i, v := range venues {
		calls[i] = evmrpc.Call{Target: p.registry, Params: []any{v}}
	}

	probes := ProbeSet{
		Legacy: make([]bool, len(venues)),
		CL:     make([]bool, len(venues)),
		Gauges: make([]domain.Address, len(venues)),
	}
	for i := range probes.Gauges {
		probes.Gauges[i] = domain.ZeroAddress
	}

	if p.legacyFn != nil {
		results, err := p.chain.BatchCall(ctx, p.legacyFn, calls, true)
		if err != nil {
			return ProbeSet{}, fmt.Errorf("legacy probe: %w", err)
		}
		for i, r := range results {
			probes.Legacy[i] = r.Bool(0)
		}
	}

	if p.clFn != nil {
		results, err := p.chain.BatchCall(ctx, p.clFn, calls, true)
		if err != nil {
			return ProbeSet{}, fmt.Errorf("cl probe: %w", err)
		}
		for i, r := range results {
			probes.CL[i] = r.Bool(0)
		}
	}

	if p.gaugeFn != nil {
		results, err := p.chain.BatchCall(ctx, p.gaugeFn, calls, true)
		if err != nil {
			return ProbeSet{}, fmt.Errorf("gauge probe: %w", err)
		}
		for i, r := range results {
			probes.Gauges[i] = r.Address(0)
		}
	}

	return probes, nil
}
