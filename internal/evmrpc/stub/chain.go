// Package stub provides an in-memory evmrpc.ChainReader for tests.
package stub

import (
	"context"
	"errors"
	"fmt"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
)

// ChainReader implements evmrpc.ChainReader from scripted fixtures.
//
// Events are registered per event name and filtered by target set and block
// range on retrieval. Call results are keyed by (function, target, params)
// and optionally by block for snapshot reads; an unregistered call behaves
// like a reverting contract (nil result under tolerateFailure, error
// otherwise), which is exactly how probe absence is exercised in tests.
type ChainReader struct {
	events map[string][]evmrpc.Event
	calls  map[string]*evmrpc.CallResult

	// FailEvents forces GetEvents for the named event to fail.
	FailEvents map[string]bool
}

// NewChainReader creates an empty stub chain.
func NewChainReader() *ChainReader {
	return &ChainReader{
		events:     make(map[string][]evmrpc.Event),
		calls:      make(map[string]*evmrpc.CallResult),
		FailEvents: make(map[string]bool),
	}
}

var _ evmrpc.ChainReader = (*ChainReader)(nil)

// callKey fingerprints one scripted call. Params print via %v, which is
// stable for the address/big.Int/bool values the engine passes.
func callKey(fn string, target domain.Address, block uint64, params []any) string {
	return fmt.Sprintf("%s|%s|%d|%v", fn, target, block, params)
}

// AddEvent registers an event under the event name.
func (c *ChainReader) AddEvent(eventName string, ev evmrpc.Event) {
	c.events[eventName] = append(c.events[eventName], ev)
}

// SetCall registers a latest-block call result for (function, target, params).
func (c *ChainReader) SetCall(fnName string, target domain.Address, result *evmrpc.CallResult, params ...any) {
	c.calls[callKey(fnName, target, 0, params)] = result
}

// SetCallAt registers a block-pinned call result, used for snapshot reads.
func (c *ChainReader) SetCallAt(fnName string, target domain.Address, block uint64, result *evmrpc.CallResult, params ...any) {
	c.calls[callKey(fnName, target, block, params)] = result
}

// GetEvents returns registered events matching the target set and range.
func (c *ChainReader) GetEvents(_ context.Context, targets []domain.Address, spec *evmrpc.EventSpec, fromBlock, toBlock uint64) ([]evmrpc.Event, error) {
	if c.FailEvents[spec.Name] {
		return nil, errors.New("stub: event fetch failure")
	}

	targetSet := make(map[domain.Address]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	var out []evmrpc.Event
	for _, ev := range c.events[spec.Name] {
		if !targetSet[ev.Emitter] {
			continue
		}
		if ev.Block != 0 && (ev.Block < fromBlock || ev.Block > toBlock) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// BatchCall returns scripted latest-block results aligned with calls.
func (c *ChainReader) BatchCall(ctx context.Context, fn *evmrpc.FuncSpec, calls []evmrpc.Call, tolerateFailure bool) ([]*evmrpc.CallResult, error) {
	return c.batchCall(ctx, 0, fn, calls, tolerateFailure)
}

// BatchCallAt returns scripted block-pinned results aligned with calls.
func (c *ChainReader) BatchCallAt(ctx context.Context, block uint64, fn *evmrpc.FuncSpec, calls []evmrpc.Call, tolerateFailure bool) ([]*evmrpc.CallResult, error) {
	return c.batchCall(ctx, block, fn, calls, tolerateFailure)
}

func (c *ChainReader) batchCall(_ context.Context, block uint64, fn *evmrpc.FuncSpec, calls []evmrpc.Call, tolerateFailure bool) ([]*evmrpc.CallResult, error) {
	results := make([]*evmrpc.CallResult, len(calls))
	for i, call := range calls {
		res, ok := c.calls[callKey(fn.Name, call.Target, block, call.Params)]
		if !ok {
			if !tolerateFailure {
				return nil, errors.New("stub: call reverted: " + fn.Name + " on " + string(call.Target))
			}
			continue
		}
		results[i] = res
	}
	return results, nil
}
