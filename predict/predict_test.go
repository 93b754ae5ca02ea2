package predict

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/bitset"
	"github.com/arboretum-ml/ranger/forest"
	"github.com/arboretum-ml/ranger/rank"
	"github.com/arboretum-ml/ranger/tree"
)

// regressionFixture builds a single numeric predictor with an obvious
// rank-4/5 split.
func regressionFixture() (block.Handle, *rank.RowRank, tree.Response, error) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{1, 1, 1, 1, 9, 9, 9, 9}

	b, err := block.NewTrain([][]float64{x}, nil, nil, 8)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	rows := make([][]float64, 8)
	for row := range rows {
		rows[row] = []float64{x[row]}
	}
	ranks, err := rank.Compute(rows, 1)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	return b, ranks, tree.Response{Y: y}, nil
}

func TestRegressionScoresObviousSplit(t *testing.T) {
	b, ranks, resp, err := regressionFixture()
	require.NoError(t, err)

	params := tree.NewParams(tree.MinNode(1), tree.WithReplacement(false))
	cfg := forest.NewTrainConfig(forest.NumTrees(1))
	f, err := forest.Train(b, ranks, resp, cfg, params)
	require.NoError(t, err)

	res, err := Regression(f, b, RegressionConfig{})
	require.NoError(t, err)

	want := []float64{1, 1, 1, 1, 9, 9, 9, 9}
	for row, w := range want {
		assert.InDelta(t, w, res.YPred[row], 1e-9)
	}
}

func TestRegressionNaNWhenFullyMasked(t *testing.T) {
	b, ranks, resp, err := regressionFixture()
	require.NoError(t, err)

	params := tree.NewParams(tree.MinNode(1))
	cfg := forest.NewTrainConfig(forest.NumTrees(3))
	f, err := forest.Train(b, ranks, resp, cfg, params)
	require.NoError(t, err)

	bag := bitset.New(8, f.NTree())
	for t := 0; t < f.NTree(); t++ {
		for row := 0; row < 8; row++ {
			bag.Set(row, t)
		}
	}

	res, err := Regression(f, b, RegressionConfig{Bag: bag})
	require.NoError(t, err)
	for _, v := range res.YPred {
		assert.True(t, math.IsNaN(v))
	}
}

func TestQuantileWorkedExample(t *testing.T) {
	// yRanked = [10,20,30,40,50], qBin=5, quantVec=[0.5]; contributing
	// leaves cover ranks {2,2,4} (sCount weighted); expected median
	// bucket is {30}.
	yRanked := []float64{10, 20, 30, 40, 50}
	f := &forest.Forest{
		Origin: []uint32{0},
		Nodes:  []forest.ForestNode{{Leaf: true, LeafIdx: 0}},
		SCount: []uint32{3},
		Sum:    []float64{0},
		Rank:   []uint32{2},
	}
	b, err := block.NewTrain([][]float64{{0}}, nil, nil, 1)
	require.NoError(t, err)

	out := quantileRow(f, b, nil, 0, yRanked, 5, []float64{0.5})
	assert.InDelta(t, 30, out[0], 1e-9)
}

// classificationFixture builds a 40-row, 2-cluster, 2-category numeric
// problem with an obvious separating threshold at x == 0.
func classificationFixture() (block.Handle, *rank.RowRank, tree.Response, error) {
	nRow := 40
	x := make([]float64, nRow)
	ctg := make([]uint32, nRow)
	for row := 0; row < nRow; row++ {
		if row < nRow/2 {
			x[row] = -float64(nRow/2-row) - 1
			ctg[row] = 0
		} else {
			x[row] = float64(row-nRow/2) + 1
			ctg[row] = 1
		}
	}

	b, err := block.NewTrain([][]float64{x}, nil, nil, nRow)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	rows := make([][]float64, nRow)
	for row := range rows {
		rows[row] = []float64{x[row]}
	}
	ranks, err := rank.Compute(rows, 1)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	return b, ranks, tree.Response{Ctg: ctg, CtgWidth: 2}, nil
}

func TestClassificationVotesAndProb(t *testing.T) {
	b, ranks, resp, err := classificationFixture()
	require.NoError(t, err)

	params := tree.NewParams(tree.MinNode(1))
	params.CtgWidth = 2
	cfg := forest.NewTrainConfig(forest.NumTrees(10))
	f, err := forest.Train(b, ranks, resp, cfg, params)
	require.NoError(t, err)

	res, err := Classification(f, b, ClassificationConfig{WithProb: true, YTest: resp.Ctg})
	require.NoError(t, err)

	for row, ctg := range resp.Ctg {
		assert.Equal(t, ctg, res.YPred[row], "row %d", row)
		assert.InDelta(t, 1.0, res.Prob[row][0]+res.Prob[row][1], 1e-9)
	}
	for c := 0; c < 2; c++ {
		assert.InDelta(t, 0, res.Error[c], 1e-9)
	}
}

// TestVoteJitterMatchesLeafWrite pins the read side (predict.Vote) against
// the write side (tree.Tree's finalizeLeaf): a leaf's Val truncates back
// to its majority category with a fractional weight in [1, 1.5).
func TestVoteJitterMatchesLeafWrite(t *testing.T) {
	b, ranks, resp, err := classificationFixture()
	require.NoError(t, err)

	params := tree.NewParams()
	params.CtgWidth = 2
	r := rand.New(rand.NewSource(1))
	tr, _, err := tree.Grow(b, ranks, resp, params, r)
	require.NoError(t, err)
	require.NotEmpty(t, tr.Val)

	for leaf, val := range tr.Val {
		ctg, weight := Vote(val)

		majority := 0
		base := leaf * 2
		if tr.Weight[base+1] > tr.Weight[base] {
			majority = 1
		}
		assert.Equal(t, uint32(majority), ctg, "leaf %d", leaf)
		assert.GreaterOrEqual(t, weight, 1.0)
		assert.Less(t, weight, 1.5)
	}
}
