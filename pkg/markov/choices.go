package markov

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// Choices is a frequency-weighted multiset. Each key carries the number of times
// it was added, and Choose picks a key with probability count/total.
// The zero value is not usable; create one with NewChoices.
type Choices[K comparable] struct {
	counts map[K]int
	total  int
}

// NewChoices returns an empty table.
func NewChoices[K comparable]() *Choices[K] {
	return &Choices[K]{counts: make(map[K]int)}
}

// Add records one more observation of key.
func (c *Choices[K]) Add(key K) {
	c.counts[key]++
	c.total++
}

// Count returns how many times key was added. A nil table is empty.
func (c *Choices[K]) Count(key K) int {
	if c == nil {
		return 0
	}
	return c.counts[key]
}

// Total returns the sum of all counts.
func (c *Choices[K]) Total() int {
	if c == nil {
		return 0
	}
	return c.total
}

// Len returns the number of distinct keys.
func (c *Choices[K]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.counts)
}

// Choose draws a key with probability proportional to its count. It reports false
// if nothing was ever added. A nil r uses the package-level random source.
func (c *Choices[K]) Choose(r *rand.Rand) (K, bool) {
	var zero K
	if c == nil || c.total == 0 {
		return zero, false
	}
	n := intN(r, c.total)
	for key, count := range c.counts {
		n -= count
		if n < 0 {
			return key, true
		}
	}
	return zero, false
}

// ChooseBiased is like Choose but weighs each key by count*bias(key). Keys with a
// bias of 1 keep their natural weight, so a larger bias prefers a key without
// excluding the others. Non-positive biases drop the key from the draw.
func (c *Choices[K]) ChooseBiased(r *rand.Rand, bias func(K) int) (K, bool) {
	var zero K
	if c == nil {
		return zero, false
	}
	total := 0
	for key, count := range c.counts {
		if w := bias(key); w > 0 {
			total += count * w
		}
	}
	if total == 0 {
		return zero, false
	}
	n := intN(r, total)
	for key, count := range c.counts {
		w := bias(key)
		if w <= 0 {
			continue
		}
		n -= count * w
		if n < 0 {
			return key, true
		}
	}
	return zero, false
}

// Each calls fn for every key in a stable order given by less. It is meant for
// dumps and tests; sampling never needs an ordering.
func (c *Choices[K]) Each(less func(a, b K) int, fn func(key K, count int)) {
	if c == nil {
		return
	}
	keys := make([]K, 0, len(c.counts))
	for key := range c.counts {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, less)
	for _, key := range keys {
		fn(key, c.counts[key])
	}
}

// sortedCounts is a helper for ordered key types.
func sortedCounts[K cmp.Ordered](c *Choices[K]) []weighted[K] {
	out := make([]weighted[K], 0, c.Len())
	c.Each(cmp.Compare[K], func(key K, count int) {
		out = append(out, weighted[K]{Value: key, Count: count})
	})
	return out
}

type weighted[K any] struct {
	Value K   `json:"value"`
	Count int `json:"count"`
}

func intN(r *rand.Rand, n int) int {
	if r == nil {
		return rand.IntN(n)
	}
	return r.IntN(n)
}
