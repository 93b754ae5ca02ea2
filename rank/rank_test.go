package rank

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsPermutationAndInverse(t *testing.T) {
	numeric := [][]float64{
		{3, 1},
		{1, 1},
		{2, 3},
		{1, 2},
	}
	r, err := Compute(numeric, 2)
	require.NoError(t, err)

	for p := 0; p < 2; p++ {
		rows := r.Rows(p)
		seen := make(map[uint32]bool, len(rows))
		for _, row := range rows {
			assert.False(t, seen[row], "row %d repeated in Rows(%d)", row, p)
			seen[row] = true
		}
		assert.Len(t, rows, len(numeric))

		for i, row := range rows {
			assert.Equal(t, r.Ranks(p)[i], r.Inverse(p)[row],
				"Ranks(p)[i] and Inverse(p)[Rows(p)[i]] must agree")
		}
	}
}

func TestComputeOrdersAscendingByValue(t *testing.T) {
	numeric := [][]float64{{5}, {2}, {8}, {1}, {3}}
	r, err := Compute(numeric, 1)
	require.NoError(t, err)

	rows := r.Rows(0)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, numeric[rows[i-1]][0], numeric[rows[i]][0])
	}
}

func TestComputeTiesShareRankAndKeepInputOrder(t *testing.T) {
	numeric := [][]float64{{1}, {1}, {0}, {1}}
	r, err := Compute(numeric, 1)
	require.NoError(t, err)

	rows := r.Rows(0)
	ranks := r.Ranks(0)

	// rows 0, 1, 3 tie at value 1 and must land in input order among
	// themselves, after row 2 (value 0).
	require.Equal(t, []uint32{2, 0, 1, 3}, rows)
	assert.Equal(t, ranks[1], ranks[2])
	assert.Equal(t, ranks[2], ranks[3])
	assert.Less(t, ranks[0], ranks[1])
}

func TestComputeZeroRowsErrors(t *testing.T) {
	_, err := Compute(nil, 3)
	assert.Error(t, err)
}

func TestComputeRandomStressPermutation(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	nRow, nPred := 300, 4
	numeric := make([][]float64, nRow)
	for i := range numeric {
		numeric[i] = make([]float64, nPred)
		for p := 0; p < nPred; p++ {
			numeric[i][p] = float64(r.Intn(20))
		}
	}

	rr, err := Compute(numeric, nPred)
	require.NoError(t, err)

	for p := 0; p < nPred; p++ {
		rows := rr.Rows(p)
		seen := make([]bool, nRow)
		for i, row := range rows {
			assert.False(t, seen[row])
			seen[row] = true
			if i > 0 {
				assert.LessOrEqual(t, numeric[rows[i-1]][p], numeric[row][p])
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	numeric := [][]float64{{3, 9}, {1, 4}, {2, 1}, {5, 7}}
	r, err := Compute(numeric, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf))

	r2, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, r.NRow(), r2.NRow())
	for p := 0; p < 2; p++ {
		assert.Equal(t, r.Rows(p), r2.Rows(p))
		assert.Equal(t, r.Ranks(p), r2.Ranks(p))
		assert.Equal(t, r.Inverse(p), r2.Inverse(p))
	}
}
