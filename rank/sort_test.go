package rank

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBySortedValueMatchesStandardSort(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := r.Intn(200) + 1
		x := make([]float64, n)
		rows := make([]uint32, n)
		for i := range x {
			x[i] = float64(r.Intn(50))
			rows[i] = uint32(i)
		}
		want := append([]float64(nil), x...)
		sort.Float64s(want)

		bySortedValue(x, rows)
		assert.Equal(t, want, x)

		seen := make([]bool, n)
		for _, row := range rows {
			assert.False(t, seen[row])
			seen[row] = true
		}
	}
}

func TestBySortedValueSmallRanges(t *testing.T) {
	for n := 0; n <= 9; n++ {
		x := make([]float64, n)
		rows := make([]uint32, n)
		for i := range x {
			x[i] = float64(n - i)
			rows[i] = uint32(i)
		}
		bySortedValue(x, rows)
		for i := 1; i < n; i++ {
			assert.LessOrEqual(t, x[i-1], x[i])
		}
	}
}
