// Package state holds the in-memory stores the aggregation engine runs on:
// additive keyed accumulators with per-block delta journals, and a
// last-write-wins latest-price table. Each store has exactly one writer
// stage; none of the types here are safe for concurrent mutation.
package state

import "math/big"

// Delta records one key's net change within a block, together with the total
// after the change. Deltas for the same key are merged; the slice order is
// the order in which keys were first touched.
type Delta struct {
	Key      string
	Delta    *big.Int
	NewValue *big.Int
}

// Accumulator is a keyed running-total table over arbitrary-precision signed
// integers. Applying a delta is associative and commutative per key, and
// every block's merged deltas can be inverse-applied to roll the table back,
// which is what makes replay after a chain reorganization safe.
type Accumulator struct {
	name    string
	totals  map[string]*big.Int
	pending []Delta
	index   map[string]int // key -> position in pending
}

// NewAccumulator creates an empty accumulator. The name is only used for
// logging and journal labelling.
func NewAccumulator(name string) *Accumulator {
	return &Accumulator{
		name:   name,
		totals: make(map[string]*big.Int),
		index:  make(map[string]int),
	}
}

// Name returns the accumulator's label.
func (a *Accumulator) Name() string {
	return a.name
}

// Apply adds delta to the running total for key, creating the key at zero if
// it has never been touched, and records the change in the current block's
// journal. The delta may be negative.
func (a *Accumulator) Apply(key string, delta *big.Int) {
	total, ok := a.totals[key]
	if !ok {
		total = new(big.Int)
		a.totals[key] = total
	}
	total.Add(total, delta)

	if i, ok := a.index[key]; ok {
		a.pending[i].Delta.Add(a.pending[i].Delta, delta)
		a.pending[i].NewValue.Set(total)
		return
	}
	a.index[key] = len(a.pending)
	a.pending = append(a.pending, Delta{
		Key:      key,
		Delta:    new(big.Int).Set(delta),
		NewValue: new(big.Int).Set(total),
	})
}

// Get returns a copy of the current total for key, or zero if the key has
// never been touched.
func (a *Accumulator) Get(key string) *big.Int {
	if total, ok := a.totals[key]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

// EndBlock returns the journal of this block's merged per-key deltas and
// resets the pending journal for the next block.
func (a *Accumulator) EndBlock() []Delta {
	journal := a.pending
	a.pending = nil
	a.index = make(map[string]int)
	return journal
}

// Revert applies the exact negation of a previously returned journal,
// returning every touched key to its value before that block. Keys whose
// total reaches zero are removed; an absent key reads as zero either way.
func (a *Accumulator) Revert(journal []Delta) {
	for i := range journal {
		total, ok := a.totals[journal[i].Key]
		if !ok {
			total = new(big.Int)
			a.totals[journal[i].Key] = total
		}
		total.Sub(total, journal[i].Delta)
		if total.Sign() == 0 {
			delete(a.totals, journal[i].Key)
		}
	}
}

// Len returns the number of tracked keys.
func (a *Accumulator) Len() int {
	return len(a.totals)
}

// PositionKey builds the composite key for position-scoped accumulators.
// The user address is expected in canonical lowercase form.
func PositionKey(user, tokenID string) string {
	return user + ":" + tokenID
}
