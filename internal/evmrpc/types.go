// Package evmrpc provides the chain-data transport for the attribution
// engine: decoded event log retrieval, tolerant batched contract reads, and
// reporting-window resolution over EVM JSON-RPC.
package evmrpc

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"defi-revenue-lab/internal/domain"
)

// Log is a raw eth_getLogs entry.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// Event is a decoded log: the emitting address plus named fields per the
// event signature it was decoded against.
type Event struct {
	Emitter domain.Address
	Block   uint64
	args    map[string]any
}

// NewEvent builds a decoded event directly. Used by stubs and fixtures;
// production events come from EventSpec.DecodeLog.
func NewEvent(emitter domain.Address, block uint64, args map[string]any) Event {
	copied := make(map[string]any, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return Event{Emitter: emitter, Block: block, args: copied}
}

// Address returns a named field as an address, zero if absent or mistyped.
func (e Event) Address(name string) domain.Address {
	if v, ok := e.args[name].(domain.Address); ok {
		return v
	}
	return domain.ZeroAddress
}

// BigInt returns a named field as a big integer, nil if absent or mistyped.
// The returned value is a copy.
func (e Event) BigInt(name string) *big.Int {
	if v, ok := e.args[name].(*big.Int); ok {
		return new(big.Int).Set(v)
	}
	return nil
}

// Uint64 returns a named field as uint64, zero if absent or out of range.
func (e Event) Uint64(name string) uint64 {
	v, ok := e.args[name].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// Call is one target+params entry in a batched contract read.
type Call struct {
	Target domain.Address
	Params []any
}

// CallResult holds the decoded return values of one contract call.
// A nil *CallResult is the sentinel for a tolerated failure.
type CallResult struct {
	values []any
}

// NewCallResult builds a call result directly. Used by stubs and fixtures.
func NewCallResult(values ...any) *CallResult {
	return &CallResult{values: values}
}

// Address returns output i as an address, zero if absent.
func (r *CallResult) Address(i int) domain.Address {
	if r == nil || i >= len(r.values) {
		return domain.ZeroAddress
	}
	if v, ok := r.values[i].(domain.Address); ok {
		return v
	}
	return domain.ZeroAddress
}

// BigInt returns output i as a big integer copy, nil if absent.
func (r *CallResult) BigInt(i int) *big.Int {
	if r == nil || i >= len(r.values) {
		return nil
	}
	if v, ok := r.values[i].(*big.Int); ok {
		return new(big.Int).Set(v)
	}
	return nil
}

// Bool returns output i as a bool, false if absent.
// Probe absence therefore reads as "capability not present", never an error.
func (r *CallResult) Bool(i int) bool {
	if r == nil || i >= len(r.values) {
		return false
	}
	v, ok := r.values[i].(bool)
	return ok && v
}

// ChainReader is the engine's view of the chain. Implementations must keep
// BatchCall results positionally aligned with their inputs and yield a nil
// result, not an error, for tolerated per-call failures.
type ChainReader interface {
	// GetEvents fetches and decodes logs matching the event signature from
	// one or many targets over [fromBlock, toBlock].
	GetEvents(ctx context.Context, targets []domain.Address, spec *EventSpec, fromBlock, toBlock uint64) ([]Event, error)

	// BatchCall executes the function against each (target, params) entry at
	// the latest block. With tolerateFailure, individual reverts or decode
	// failures produce a nil result at that position.
	BatchCall(ctx context.Context, fn *FuncSpec, calls []Call, tolerateFailure bool) ([]*CallResult, error)

	// BatchCallAt is BatchCall pinned to a specific block, used for the
	// pre/post-window snapshot reads.
	BatchCallAt(ctx context.Context, block uint64, fn *FuncSpec, calls []Call, tolerateFailure bool) ([]*CallResult, error)
}

// parseHexUint parses a 0x-prefixed hex quantity.
func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}

// hexUint formats a block number as a 0x-prefixed hex quantity.
func hexUint(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}
