package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildHeap(keys []float64) []Pair {
	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		Insert(pairs, i, k)
	}
	return pairs
}

func TestDepopulateAscendingOrder(t *testing.T) {
	keys := []float64{5, 1, 4, 2, 8, 0, 9, 3}
	pairs := buildHeap(keys)

	out := make([]int, len(keys))
	Depopulate(pairs, out, len(keys), len(keys))

	got := make([]float64, len(keys))
	for i, slot := range out {
		got[i] = keys[slot]
	}
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1], got[i], "Depopulate must emit slots in ascending key order")
	}
}

func TestDepopulatePartial(t *testing.T) {
	keys := []float64{7, 2, 9, 1, 5}
	pairs := buildHeap(keys)

	out := make([]int, 3)
	Depopulate(pairs, out, len(keys), 3)

	// the 3 smallest keys are 1, 2, 5 at slots 3, 1, 4
	assert.Equal(t, []int{3, 1, 4}, out)
}

func TestDepopulateRandomMatchesSort(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	n := 64
	keys := make([]float64, n)
	for i := range keys {
		keys[i] = r.Float64() * 100
	}
	pairs := buildHeap(keys)

	out := make([]int, n)
	Depopulate(pairs, out, n, n)

	for i := 1; i < n; i++ {
		assert.LessOrEqual(t, keys[out[i-1]], keys[out[i]])
	}

	seen := make(map[int]bool, n)
	for _, slot := range out {
		assert.False(t, seen[slot], "slot %d emitted twice", slot)
		seen[slot] = true
	}
}

func TestInsertSingleton(t *testing.T) {
	pairs := make([]Pair, 1)
	Insert(pairs, 0, 3.14)
	out := make([]int, 1)
	Depopulate(pairs, out, 1, 1)
	assert.Equal(t, []int{0}, out)
}
