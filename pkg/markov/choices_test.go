package markov

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestChoicesAdd(t *testing.T) {
	c := NewChoices[string]()
	c.Add("a")
	c.Add("b")
	c.Add("b")

	if c.Total() != 3 {
		t.Errorf("Total() = %d, want 3", c.Total())
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.Count("a") != 1 || c.Count("b") != 2 {
		t.Errorf("counts = a:%d b:%d, want a:1 b:2", c.Count("a"), c.Count("b"))
	}
	if c.Count("missing") != 0 {
		t.Errorf("Count(missing) = %d, want 0", c.Count("missing"))
	}
}

func TestChoicesEmpty(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	c := NewChoices[int]()

	if _, ok := c.Choose(r); ok {
		t.Error("Choose on an empty table should report false")
	}
	if _, ok := c.ChooseBiased(r, func(int) int { return 4 }); ok {
		t.Error("ChooseBiased on an empty table should report false")
	}

	var nilTable *Choices[int]
	if _, ok := nilTable.Choose(r); ok {
		t.Error("Choose on a nil table should report false")
	}
	if nilTable.Total() != 0 || nilTable.Len() != 0 || nilTable.Count(1) != 0 {
		t.Error("a nil table should read as empty")
	}
}

func TestChooseBiasedAllZeroWeights(t *testing.T) {
	c := NewChoices[string]()
	c.Add("a")
	c.Add("b")
	if _, ok := c.ChooseBiased(nil, func(string) int { return 0 }); ok {
		t.Error("ChooseBiased with only zero weights should report false")
	}
}

// drawFractions samples n times and returns the share of each key.
func drawFractions[K comparable](n int, draw func() (K, bool)) map[K]float64 {
	hits := make(map[K]int)
	for i := 0; i < n; i++ {
		k, ok := draw()
		if !ok {
			continue
		}
		hits[k]++
	}
	out := make(map[K]float64, len(hits))
	for k, v := range hits {
		out[k] = float64(v) / float64(n)
	}
	return out
}

func TestChooseDistribution(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	c := NewChoices[string]()
	c.Add("rare")
	for i := 0; i < 3; i++ {
		c.Add("common")
	}

	got := drawFractions(40000, func() (string, bool) { return c.Choose(r) })
	if math.Abs(got["rare"]-0.25) > 0.02 {
		t.Errorf("rare share = %.3f, want about 0.25", got["rare"])
	}
	if math.Abs(got["common"]-0.75) > 0.02 {
		t.Errorf("common share = %.3f, want about 0.75", got["common"])
	}
}

func TestChooseBiasedPrefersWithoutExcluding(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	c := NewChoices[string]()
	c.Add("match")
	c.Add("other")

	bias := func(k string) int {
		if k == "match" {
			return 4
		}
		return 1
	}
	got := drawFractions(40000, func() (string, bool) { return c.ChooseBiased(r, bias) })
	if math.Abs(got["match"]-0.8) > 0.02 {
		t.Errorf("match share = %.3f, want about 0.8", got["match"])
	}
	if got["other"] == 0 {
		t.Error("a bias must not exclude the other key")
	}
}

func TestChooseBiasedUnitBiasMatchesChoose(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 42))
	c := NewChoices[int]()
	for k, n := range map[int]int{1: 2, 2: 5, 3: 3} {
		for i := 0; i < n; i++ {
			c.Add(k)
		}
	}

	plain := drawFractions(30000, func() (int, bool) { return c.Choose(r) })
	biased := drawFractions(30000, func() (int, bool) {
		return c.ChooseBiased(r, func(int) int { return 1 })
	})
	for k := 1; k <= 3; k++ {
		if math.Abs(plain[k]-biased[k]) > 0.02 {
			t.Errorf("key %d: Choose share %.3f, ChooseBiased share %.3f", k, plain[k], biased[k])
		}
	}
}

func TestChoicesEachIsSorted(t *testing.T) {
	c := NewChoices[string]()
	for _, k := range []string{"pear", "apple", "fig", "apple"} {
		c.Add(k)
	}
	got := sortedCounts(c)
	want := []weighted[string]{{"apple", 2}, {"fig", 1}, {"pear", 1}}
	if len(got) != len(want) {
		t.Fatalf("sortedCounts() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sortedCounts()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestPropertyChoicesTotal verifies that the total always equals the number of
// additions and that sampling only returns keys that were added.
func TestPropertyChoicesTotal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := rapid.SliceOf(rapid.SampledFrom([]string{"a", "b", "c", "d", "e"})).Draw(rt, "keys")
		seed := rapid.Uint64().Draw(rt, "seed")
		r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

		c := NewChoices[string]()
		for _, k := range keys {
			c.Add(k)
		}

		if c.Total() != len(keys) {
			rt.Fatalf("Total() = %d, want %d", c.Total(), len(keys))
		}
		sum := 0
		c.Each(strings.Compare, func(_ string, count int) {
			if count <= 0 {
				rt.Fatalf("stored a key with count %d", count)
			}
			sum += count
		})
		if sum != c.Total() {
			rt.Fatalf("sum of counts = %d, total = %d", sum, c.Total())
		}

		for i := 0; i < 20; i++ {
			k, ok := c.Choose(r)
			if ok != (len(keys) > 0) {
				rt.Fatalf("Choose() ok = %v with %d keys added", ok, len(keys))
			}
			if ok && c.Count(k) == 0 {
				rt.Fatalf("Choose() returned %q, which was never added", k)
			}
		}
	})
}
