// Package balances implements the token amount accumulator: a mapping from
// (token, metric tag) to a running signed integer quantity.
//
// Add and Merge are commutative and associative, so per-venue attribution can
// run in any order (or in parallel, with external synchronization) and still
// produce identical totals. Raw token units are kept in big.Int end to end;
// floating point never enters the accumulation path.
package balances

import (
	"math/big"
	"sort"

	"defi-revenue-lab/internal/domain"
)

// entryKey identifies one accumulator bucket.
type entryKey struct {
	Token domain.Address
	Tag   string
}

// Accumulator holds running totals keyed by (token, tag).
// The zero tag is the untagged bucket. Not safe for concurrent use;
// attribute per goroutine and Merge the results instead.
type Accumulator struct {
	totals map[entryKey]*big.Int
}

// Row is one (token, tag, amount) entry in deterministic output order.
type Row struct {
	Token  domain.Address
	Tag    string
	Amount *big.Int
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{totals: make(map[entryKey]*big.Int)}
}

// Add records an untagged amount for a token. Nil amounts count as zero.
func (a *Accumulator) Add(token domain.Address, amount *big.Int) {
	a.AddTagged(token, "", amount)
}

// AddTagged records an amount for a token under a metric tag.
// The amount is copied; callers may reuse the big.Int afterwards.
// Negative amounts are legal corrective adjustments.
func (a *Accumulator) AddTagged(token domain.Address, tag string, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	key := entryKey{Token: token, Tag: tag}
	total, ok := a.totals[key]
	if !ok {
		total = new(big.Int)
		a.totals[key] = total
	}
	total.Add(total, amount)
}

// Merge folds other into a. Equivalent to replaying every Add from both
// accumulators in any order. The other accumulator is not modified.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for key, amount := range other.totals {
		a.AddTagged(key.Token, key.Tag, amount)
	}
}

// Get returns a copy of the total for (token, tag), zero if absent.
func (a *Accumulator) Get(token domain.Address, tag string) *big.Int {
	if total, ok := a.totals[entryKey{Token: token, Tag: tag}]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

// TokenTotal returns the sum over all tags for a token.
func (a *Accumulator) TokenTotal(token domain.Address) *big.Int {
	sum := new(big.Int)
	for key, total := range a.totals {
		if key.Token == token {
			sum.Add(sum, total)
		}
	}
	return sum
}

// Len returns the number of (token, tag) buckets.
func (a *Accumulator) Len() int {
	return len(a.totals)
}

// Rows returns all entries sorted by (token, tag) for deterministic output.
// Amounts are copies.
func (a *Accumulator) Rows() []Row {
	rows := make([]Row, 0, len(a.totals))
	for key, total := range a.totals {
		rows = append(rows, Row{
			Token:  key.Token,
			Tag:    key.Tag,
			Amount: new(big.Int).Set(total),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Token != rows[j].Token {
			return rows[i].Token < rows[j].Token
		}
		return rows[i].Tag < rows[j].Tag
	})
	return rows
}

// Clone returns a deep copy.
func (a *Accumulator) Clone() *Accumulator {
	c := New()
	c.Merge(a)
	return c
}
