package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrainLayoutAndAccessors(t *testing.T) {
	feNum := [][]float64{{1, 2, 3}, {4, 5, 6}}
	feFac := [][]uint32{{0, 1, 0}}
	feCard := []uint32{2}

	b, err := NewTrain(feNum, feFac, feCard, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, b.NRow())
	assert.Equal(t, 3, b.NPred())
	assert.Equal(t, 2, b.NPredNum())
	assert.Equal(t, 1, b.NPredFac())
	assert.False(t, b.IsFactor(0))
	assert.False(t, b.IsFactor(1))
	assert.True(t, b.IsFactor(2))
	assert.Equal(t, 0, b.BlockIdx(2))
	assert.Equal(t, uint32(2), b.FacCard(2))
	assert.Equal(t, uint32(2), b.CardMax())

	assert.Equal(t, []float64{4, 5, 6}, b.Numeric(1))
	assert.Equal(t, []uint32{0, 1, 0}, b.Factor(0))
}

func TestNewTrainRejectsZeroRows(t *testing.T) {
	_, err := NewTrain([][]float64{{1}}, nil, nil, 0)
	assert.Error(t, err)
}

func TestNewTrainRejectsZeroPredictors(t *testing.T) {
	_, err := NewTrain(nil, nil, nil, 5)
	assert.Error(t, err)
}

func TestNewTrainRejectsOutOfRangeFactorCode(t *testing.T) {
	feFac := [][]uint32{{0, 1, 2}}
	feCard := []uint32{2} // codes must be < 2
	_, err := NewTrain(nil, feFac, feCard, 3)
	assert.Error(t, err)
}

func TestNewPredictTransposedLayout(t *testing.T) {
	feNumT := [][]float64{{1, 2}, {3, 4}}
	feFacT := [][]uint32{{0, 1}}
	feCard := []uint32{2}

	p, err := NewPredict(feNumT, feFacT, feCard, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, p.NRow())
	assert.Equal(t, []float64{3, 4}, p.Numeric(1))
	assert.Equal(t, []uint32{0, 1}, p.Factor(0))
}
