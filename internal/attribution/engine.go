package attribution

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"defi-revenue-lab/internal/balances"
	"defi-revenue-lab/internal/classify"
	"defi-revenue-lab/internal/config"
	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
)

// Event and function signatures the engine decodes against. These are the
// creation, swap, reward and vault read surfaces of the supported protocol
// families.
var (
	pairCreatedEvent = evmrpc.MustEventSpec("event PairCreated(address indexed token0, address indexed token1, address pair, uint256 pairIndex)")
	poolCreatedEvent = evmrpc.MustEventSpec("event PoolCreated(address indexed token0, address indexed token1, uint24 indexed fee, int24 tickSpacing, address pool)")

	legacySwapEvent = evmrpc.MustEventSpec("event Swap(address indexed sender, uint256 amount0In, uint256 amount1In, uint256 amount0Out, uint256 amount1Out, address indexed to)")
	clSwapEvent     = evmrpc.MustEventSpec("event Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)")

	gaugeCreatedEvent      = evmrpc.MustEventSpec("event GaugeCreated(address indexed gauge, address creator, address feeDistributor, address indexed pool)")
	notifyRewardEvent      = evmrpc.MustEventSpec("event NotifyReward(address indexed from, address indexed reward, uint256 amount, uint256 period)")
	votesIncentivizedEvent = evmrpc.MustEventSpec("event VotesIncentivized(address indexed from, address indexed reward, uint256 amount, uint256 period)")

	instantExitEvent   = evmrpc.MustEventSpec("event InstantExit(address indexed user, uint256 amount)")
	proxyDeployedEvent = evmrpc.MustEventSpec("event ProxyDeployed(address proxy, address deployer)")

	pairFeeFn      = evmrpc.MustFuncSpec("function fee() view returns (uint256)")
	gaugeForPoolFn = evmrpc.MustFuncSpec("function gaugeForPool(address pool) view returns (address)")
	isLegacyFn     = evmrpc.MustFuncSpec("function isLegacyGauge(address gauge) view returns (bool)")
	isClFn         = evmrpc.MustFuncSpec("function isClGauge(address gauge) view returns (bool)")

	assetFn           = evmrpc.MustFuncSpec("function asset() view returns (address)")
	totalAssetsFn     = evmrpc.MustFuncSpec("function totalAssets() view returns (uint256)")
	feeRatesFn        = evmrpc.MustFuncSpec("function feeRates() view returns (uint256 managementRate, uint256 performanceRate)")
	protocolRateFn    = evmrpc.MustFuncSpec("function protocolRate(address vault) view returns (uint256)")
	convertToAssetsFn = evmrpc.MustFuncSpec("function convertToAssets(uint256 shares) view returns (uint256)")
)

const (
	// feeTierScale converts legacy fee() values and CL fee tiers to fractions.
	feeTierScale = 1e6
	// bpsScale converts vault basis-point fee configuration to fractions.
	bpsScale = 10_000
)

// Engine coordinates one attribution run.
// Flow: discovery → classification → concurrent fetch → pure attribution → merge.
// Each pipeline degrades to a skip on fetch failure; only context
// cancellation aborts the run.
type Engine struct {
	chain   evmrpc.ChainReader
	cfg     config.Protocol
	verbose bool
}

// Options for creating Engine.
type Options struct {
	Chain   evmrpc.ChainReader
	Config  config.Protocol
	Verbose bool
}

// New creates a new Engine.
func New(opts Options) *Engine {
	return &Engine{
		chain:   opts.Chain,
		cfg:     opts.Config,
		verbose: opts.Verbose,
	}
}

// RunResult contains the merged bundle and run statistics.
type RunResult struct {
	Bundle  *Bundle
	Rewards *RewardTotals

	VenuesClassified int
	SwapsFetched     int
	VaultsObserved   int
	VaultsSkipped    int

	// Errors lists localized fetch failures that degraded to skips.
	Errors []string
}

// Run executes one attribution window.
func (e *Engine) Run(ctx context.Context, window domain.Window) (*RunResult, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("invalid window: from=%d to=%d", window.FromTime, window.ToTime)
	}

	result := &RunResult{}
	var mu sync.Mutex
	fail := func(stage string, err error) {
		mu.Lock()
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", stage, err))
		mu.Unlock()
	}

	var (
		legacyVenues []domain.Venue
		clVenues     []domain.Venue
		legacySwaps  []domain.SwapEvent
		clSwaps      []domain.SwapEvent
		rewards      *RewardTotals
		taxes        *balances.Accumulator
		vaultBundle  *Bundle
	)

	g, gctx := errgroup.WithContext(ctx)

	if e.cfg.LegacyFactory != nil {
		g.Go(func() error {
			venues, swaps, err := e.legacyPipeline(gctx, window)
			if err != nil {
				fail("legacy venues", err)
				return gctx.Err()
			}
			legacyVenues, legacySwaps = venues, swaps
			return nil
		})
	}

	if e.cfg.CLFactory != nil {
		g.Go(func() error {
			venues, swaps, err := e.clPipeline(gctx, window)
			if err != nil {
				fail("cl venues", err)
				return gctx.Err()
			}
			clVenues, clSwaps = venues, swaps
			return nil
		})
	}

	if e.cfg.Voter != nil {
		g.Go(func() error {
			totals, err := e.rewardsPipeline(gctx, window)
			if err != nil {
				fail("rewards", err)
				return gctx.Err()
			}
			rewards = totals
			return nil
		})
	}

	if len(e.cfg.Vaults) > 0 || len(e.cfg.VaultFactories) > 0 {
		g.Go(func() error {
			bundle, observed, skipped, err := e.vaultPipeline(gctx, window)
			if err != nil {
				fail("vaults", err)
				return gctx.Err()
			}
			vaultBundle = bundle
			mu.Lock()
			result.VaultsObserved = observed
			result.VaultsSkipped = skipped
			mu.Unlock()
			return nil
		})
	}

	if e.cfg.TokenTax != nil {
		g.Go(func() error {
			acc, err := e.taxPipeline(gctx, window)
			if err != nil {
				fail("token taxes", err)
				return gctx.Err()
			}
			taxes = acc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	venueMap := make(map[domain.Address]domain.Venue, len(legacyVenues)+len(clVenues))
	for _, v := range legacyVenues {
		venueMap[v.Address] = v
	}
	for _, v := range clVenues {
		venueMap[v.Address] = v
	}
	swaps := append(legacySwaps, clSwaps...)

	result.VenuesClassified = len(venueMap)
	result.SwapsFetched = len(swaps)
	e.log("classified %d venues, fetched %d swaps", len(venueMap), len(swaps))

	bundle := AttributeSwaps(venueMap, swaps, e.cfg.ProtocolFeeShare)
	bundle.Merge(vaultBundle)
	if rewards != nil {
		rewards.Fold(bundle, e.cfg.LegacyFactory != nil, e.cfg.CLFactory != nil)
		result.Rewards = rewards
	}
	if taxes != nil {
		bundle.DailyTokenTaxes.Merge(taxes)
		bundle.DailyFees.Merge(taxes)
	}

	result.Bundle = bundle
	e.log("run complete: %d venues, %d vaults (%d skipped), %d errors",
		result.VenuesClassified, result.VaultsObserved, result.VaultsSkipped, len(result.Errors))
	return result, nil
}

// legacyPipeline discovers constant-product pairs, reads their fee and gauge
// state, and fetches swap logs over the window.
func (e *Engine) legacyPipeline(ctx context.Context, window domain.Window) ([]domain.Venue, []domain.SwapEvent, error) {
	factory := *e.cfg.LegacyFactory
	created, err := e.chain.GetEvents(ctx, []domain.Address{factory.Address}, pairCreatedEvent, factory.FromBlock, window.ToBlock)
	if err != nil {
		return nil, nil, fmt.Errorf("pair discovery: %w", err)
	}
	e.log("discovered %d legacy pairs", len(created))
	if len(created) == 0 {
		return nil, nil, nil
	}

	candidates := make([]classify.Candidate, len(created))
	feeCalls := make([]evmrpc.Call, len(created))
	for i, ev := range created {
		candidates[i] = classify.Candidate{
			Address: ev.Address("pair"),
			Token0:  ev.Address("token0"),
			Token1:  ev.Address("token1"),
		}
		feeCalls[i] = evmrpc.Call{Target: candidates[i].Address}
	}

	fees, err := e.chain.BatchCall(ctx, pairFeeFn, feeCalls, true)
	if err != nil {
		return nil, nil, fmt.Errorf("fee reads: %w", err)
	}
	for i, res := range fees {
		if fee := res.BigInt(0); fee != nil && fee.Sign() > 0 {
			f, _ := fee.Float64()
			candidates[i].FeeRate = f / feeTierScale
		}
	}

	venues, err := e.classifyVenues(ctx, candidates, true)
	if err != nil {
		return nil, nil, err
	}

	swaps, err := e.fetchSwaps(ctx, venues, legacySwapEvent, window, decodeLegacySwap)
	if err != nil {
		return nil, nil, err
	}
	return venues, swaps, nil
}

// clPipeline discovers concentrated-liquidity pools; the fee rate comes from
// the creation event's fee tier, no per-pool read needed.
func (e *Engine) clPipeline(ctx context.Context, window domain.Window) ([]domain.Venue, []domain.SwapEvent, error) {
	factory := *e.cfg.CLFactory
	created, err := e.chain.GetEvents(ctx, []domain.Address{factory.Address}, poolCreatedEvent, factory.FromBlock, window.ToBlock)
	if err != nil {
		return nil, nil, fmt.Errorf("pool discovery: %w", err)
	}
	e.log("discovered %d cl pools", len(created))
	if len(created) == 0 {
		return nil, nil, nil
	}

	candidates := make([]classify.Candidate, len(created))
	for i, ev := range created {
		candidates[i] = classify.Candidate{
			Address: ev.Address("pool"),
			Token0:  ev.Address("token0"),
			Token1:  ev.Address("token1"),
			FeeRate: float64(ev.Uint64("fee")) / feeTierScale,
		}
	}

	venues, err := e.classifyVenues(ctx, candidates, false)
	if err != nil {
		return nil, nil, err
	}

	swaps, err := e.fetchSwaps(ctx, venues, clSwapEvent, window, decodeCLSwap)
	if err != nil {
		return nil, nil, err
	}
	return venues, swaps, nil
}

// classifyVenues resolves regimes for one discovery family. Provenance fixes
// the legacy/CL capability; only the gauge lookup needs probing.
func (e *Engine) classifyVenues(ctx context.Context, candidates []classify.Candidate, legacy bool) ([]domain.Venue, error) {
	probes := classify.ProbeSet{
		Legacy: make([]bool, len(candidates)),
		CL:     make([]bool, len(candidates)),
		Gauges: make([]domain.Address, len(candidates)),
	}
	for i := range candidates {
		probes.Legacy[i] = legacy
		probes.CL[i] = !legacy
		probes.Gauges[i] = domain.ZeroAddress
	}

	if e.cfg.Voter != nil {
		addrs := make([]domain.Address, len(candidates))
		for i, c := range candidates {
			addrs[i] = c.Address
		}
		prober := classify.NewProber(e.chain, e.cfg.Voter.Address, nil, nil, gaugeForPoolFn)
		gaugeProbes, err := prober.Probe(ctx, addrs)
		if err != nil {
			return nil, fmt.Errorf("gauge probes: %w", err)
		}
		probes.Gauges = gaugeProbes.Gauges
	}

	return classify.Classify(candidates, probes), nil
}

// fetchSwaps pulls swap logs for the venue set and decodes them to events.
func (e *Engine) fetchSwaps(ctx context.Context, venues []domain.Venue, spec *evmrpc.EventSpec, window domain.Window, decode func(evmrpc.Event) domain.SwapEvent) ([]domain.SwapEvent, error) {
	if len(venues) == 0 {
		return nil, nil
	}
	targets := make([]domain.Address, len(venues))
	for i, v := range venues {
		targets[i] = v.Address
	}
	logs, err := e.chain.GetEvents(ctx, targets, spec, window.FromBlock, window.ToBlock)
	if err != nil {
		return nil, fmt.Errorf("swap logs: %w", err)
	}
	swaps := make([]domain.SwapEvent, len(logs))
	for i, ev := range logs {
		swaps[i] = decode(ev)
	}
	return swaps, nil
}

// decodeLegacySwap picks the traded side per token: the in-amount when
// present, the out-amount otherwise.
func decodeLegacySwap(ev evmrpc.Event) domain.SwapEvent {
	amount0 := ev.BigInt("amount0In")
	if amount0 == nil || amount0.Sign() == 0 {
		amount0 = ev.BigInt("amount0Out")
	}
	amount1 := ev.BigInt("amount1In")
	if amount1 == nil || amount1.Sign() == 0 {
		amount1 = ev.BigInt("amount1Out")
	}
	return domain.SwapEvent{
		Venue:   ev.Emitter,
		Amount0: amount0,
		Amount1: amount1,
		Block:   ev.Block,
	}
}

// decodeCLSwap carries the pool's signed deltas through unchanged;
// attribution takes magnitudes.
func decodeCLSwap(ev evmrpc.Event) domain.SwapEvent {
	return domain.SwapEvent{
		Venue:   ev.Emitter,
		Amount0: ev.BigInt("amount0"),
		Amount1: ev.BigInt("amount1"),
		Block:   ev.Block,
	}
}

// rewardsPipeline scans gauge creations from the voter's deployment block,
// partitions the attached fee distributors by gauge family, and sums the
// holder-reward and bribe streams over the window.
func (e *Engine) rewardsPipeline(ctx context.Context, window domain.Window) (*RewardTotals, error) {
	voter := *e.cfg.Voter
	created, err := e.chain.GetEvents(ctx, []domain.Address{voter.Address}, gaugeCreatedEvent, voter.FromBlock, window.ToBlock)
	if err != nil {
		return nil, fmt.Errorf("gauge discovery: %w", err)
	}
	e.log("discovered %d gauges", len(created))
	if len(created) == 0 {
		return NewRewardTotals(), nil
	}

	gauges := make([]domain.Address, len(created))
	for i, ev := range created {
		gauges[i] = ev.Address("gauge")
	}

	prober := classify.NewProber(e.chain, voter.Address, isLegacyFn, isClFn, nil)
	probes, err := prober.Probe(ctx, gauges)
	if err != nil {
		return nil, fmt.Errorf("gauge family probes: %w", err)
	}

	var distributors []Distributor
	var targets []domain.Address
	for i, ev := range created {
		dist := ev.Address("feeDistributor")
		if dist.IsZero() {
			continue
		}
		switch {
		case probes.Legacy[i]:
			distributors = append(distributors, Distributor{Address: dist, Legacy: true})
		case probes.CL[i]:
			distributors = append(distributors, Distributor{Address: dist, Legacy: false})
		default:
			continue // gauge family unresolved, skip its distributor
		}
		targets = append(targets, dist)
	}
	if len(distributors) == 0 {
		return NewRewardTotals(), nil
	}

	var notified, incentivized []domain.RewardEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := e.chain.GetEvents(gctx, targets, notifyRewardEvent, window.FromBlock, window.ToBlock)
		if err != nil {
			return fmt.Errorf("reward notifications: %w", err)
		}
		notified = decodeRewardEvents(events)
		return nil
	})
	g.Go(func() error {
		events, err := e.chain.GetEvents(gctx, targets, votesIncentivizedEvent, window.FromBlock, window.ToBlock)
		if err != nil {
			return fmt.Errorf("voting incentives: %w", err)
		}
		incentivized = decodeRewardEvents(events)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return CollectRewards(distributors, notified, incentivized), nil
}

func decodeRewardEvents(events []evmrpc.Event) []domain.RewardEvent {
	out := make([]domain.RewardEvent, len(events))
	for i, ev := range events {
		out[i] = domain.RewardEvent{
			Distributor: ev.Emitter,
			RewardToken: ev.Address("reward"),
			Amount:      ev.BigInt("amount"),
			Period:      ev.Uint64("period"),
		}
	}
	return out
}

// vaultPipeline discovers vaults, reads their state at the window edges and
// attributes yield. All reads tolerate per-vault failure; an incomplete
// vault is skipped by the attributor.
func (e *Engine) vaultPipeline(ctx context.Context, window domain.Window) (*Bundle, int, int, error) {
	vaults, err := e.discoverVaults(ctx, window)
	if err != nil {
		return nil, 0, 0, err
	}
	e.log("observing %d vaults", len(vaults))
	if len(vaults) == 0 {
		return NewBundle(), 0, 0, nil
	}

	calls := make([]evmrpc.Call, len(vaults))
	rateCalls := make([]evmrpc.Call, len(vaults))
	registryCalls := make([]evmrpc.Call, len(vaults))
	for i, v := range vaults {
		calls[i] = evmrpc.Call{Target: v}
		rateCalls[i] = evmrpc.Call{Target: v, Params: []any{new(big.Int).Set(RateScale)}}
		registryCalls[i] = evmrpc.Call{Target: e.cfg.FeeRegistry, Params: []any{v}}
	}

	var assets, totals, feeRates, protoRates, ratesBefore, ratesAfter []*evmrpc.CallResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assets, err = e.chain.BatchCall(gctx, assetFn, calls, true)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = e.chain.BatchCallAt(gctx, window.ToBlock, totalAssetsFn, calls, true)
		return err
	})
	g.Go(func() error {
		var err error
		feeRates, err = e.chain.BatchCall(gctx, feeRatesFn, calls, true)
		return err
	})
	if !e.cfg.FeeRegistry.IsZero() {
		g.Go(func() error {
			var err error
			protoRates, err = e.chain.BatchCall(gctx, protocolRateFn, registryCalls, true)
			return err
		})
	}
	g.Go(func() error {
		var err error
		ratesBefore, err = e.chain.BatchCallAt(gctx, window.FromBlock, convertToAssetsFn, rateCalls, true)
		return err
	})
	g.Go(func() error {
		var err error
		ratesAfter, err = e.chain.BatchCallAt(gctx, window.ToBlock, convertToAssetsFn, rateCalls, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, 0, fmt.Errorf("vault reads: %w", err)
	}

	observations := make([]VaultObservation, len(vaults))
	for i, v := range vaults {
		rates := domain.FeeRates{}
		if fr := resultAt(feeRates, i); fr != nil {
			rates.Management = bpsRate(fr.BigInt(0))
			rates.Performance = bpsRate(fr.BigInt(1))
		}
		if pr := resultAt(protoRates, i); pr != nil {
			rates.Protocol = bpsRate(pr.BigInt(0))
		}
		observations[i] = VaultObservation{
			Vault: domain.Vault{
				Address:     v,
				Asset:       resultAt(assets, i).Address(0),
				TotalAssets: resultAt(totals, i).BigInt(0),
				Rates:       rates,
			},
			Snapshot: domain.VaultSnapshot{
				Vault:      v,
				RateBefore: resultAt(ratesBefore, i).BigInt(0),
				RateAfter:  resultAt(ratesAfter, i).BigInt(0),
			},
		}
	}

	bundle, skipped := AttributeVaultYield(observations, window)
	return bundle, len(observations), skipped, nil
}

// discoverVaults merges statically configured vaults with factory
// deployment events, deduplicated.
func (e *Engine) discoverVaults(ctx context.Context, window domain.Window) ([]domain.Address, error) {
	seen := make(map[domain.Address]bool)
	var vaults []domain.Address
	for _, v := range e.cfg.Vaults {
		if !seen[v] {
			seen[v] = true
			vaults = append(vaults, v)
		}
	}
	for _, factory := range e.cfg.VaultFactories {
		deployed, err := e.chain.GetEvents(ctx, []domain.Address{factory.Address}, proxyDeployedEvent, factory.FromBlock, window.ToBlock)
		if err != nil {
			return nil, fmt.Errorf("vault discovery: %w", err)
		}
		for _, ev := range deployed {
			v := ev.Address("proxy")
			if !v.IsZero() && !seen[v] {
				seen[v] = true
				vaults = append(vaults, v)
			}
		}
	}
	return vaults, nil
}

// taxPipeline sums instant-exit penalties over the window.
func (e *Engine) taxPipeline(ctx context.Context, window domain.Window) (*balances.Accumulator, error) {
	cfg := *e.cfg.TokenTax
	events, err := e.chain.GetEvents(ctx, []domain.Address{cfg.Contract}, instantExitEvent, window.FromBlock, window.ToBlock)
	if err != nil {
		return nil, fmt.Errorf("exit penalties: %w", err)
	}
	taxEvents := make([]domain.TaxEvent, len(events))
	for i, ev := range events {
		taxEvents[i] = domain.TaxEvent{Token: cfg.Token, Amount: ev.BigInt("amount")}
	}
	return CollectTokenTaxes(taxEvents), nil
}

// resultAt guards against a nil slice from a pipeline that never ran.
func resultAt(results []*evmrpc.CallResult, i int) *evmrpc.CallResult {
	if i >= len(results) {
		return nil
	}
	return results[i]
}

// bpsRate converts a basis-point read to a fraction, zero when absent.
func bpsRate(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := v.Float64()
	return f / bpsScale
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.verbose {
		log.Printf("[engine] "+format, args...)
	}
}
