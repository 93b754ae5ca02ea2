package forest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/rank"
	"github.com/arboretum-ml/ranger/tree"
)

// irisBlock builds a numeric-only training block.Handle and rank.RowRank
// from the iris measurements below, column-major and float64 to match
// block.NewTrain.
func irisBlock() (block.Handle, *rank.RowRank, tree.Response, error) {
	nRow := len(irisX)
	nPred := len(irisXNames)

	feNum := make([][]float64, nPred)
	for p := 0; p < nPred; p++ {
		feNum[p] = make([]float64, nRow)
		for row := range irisX {
			feNum[p][row] = float64(irisX[row][p])
		}
	}

	b, err := block.NewTrain(feNum, nil, nil, nRow)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	ranks, err := rank.Compute(transpose(feNum), nPred)
	if err != nil {
		return nil, nil, tree.Response{}, err
	}

	ctg := make([]uint32, nRow)
	for row := range ctg {
		ctg[row] = uint32(row / 50) // 50 setosa, 50 versicolor, 50 virginica
	}

	return b, ranks, tree.Response{Ctg: ctg, CtgWidth: 3}, nil
}

func transpose(cols [][]float64) [][]float64 {
	nPred := len(cols)
	nRow := len(cols[0])
	rows := make([][]float64, nRow)
	for row := range rows {
		rows[row] = make([]float64, nPred)
		for p := range cols {
			rows[row][p] = cols[p][row]
		}
	}
	return rows
}

// walkRow descends tree treeIdx from the forest's root for one row,
// following the numeric-split convention of split/numeric.go: values at
// or below SplitVal go left.
func walkRow(f *Forest, treeIdx int, row []float64) uint32 {
	idx := f.Origin[treeIdx]
	for {
		n := f.Nodes[idx]
		if n.Leaf {
			return n.LeafIdx
		}
		if row[n.PredIdx] <= n.SplitVal {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

func predictIris(f *Forest, X [][]float32) []int {
	pred := make([]int, len(X))
	for i, x := range X {
		row := make([]float64, len(x))
		for p, v := range x {
			row[p] = float64(v)
		}
		votes := make([]float64, f.CtgWidth)
		for t := 0; t < f.NTree(); t++ {
			leafIdx := walkRow(f, t, row)
			for c := 0; c < f.CtgWidth; c++ {
				votes[c] += f.Weight[int(leafIdx)*f.CtgWidth+c]
			}
		}
		best := 0
		for c := 1; c < len(votes); c++ {
			if votes[c] > votes[best] {
				best = c
			}
		}
		pred[i] = best
	}
	return pred
}

func accuracy(pred []int, ctgWidth int) float64 {
	correct := 0
	for i, p := range pred {
		if p == i/50 {
			correct++
		}
	}
	return float64(correct) / float64(len(pred))
}

func TestIrisFitPredict(t *testing.T) {
	b, ranks, resp, err := irisBlock()
	require.NoError(t, err)

	params := tree.NewParams(tree.MinNode(1))
	params.CtgWidth = 3

	cfg := NewTrainConfig(NumTrees(20), NumWorkers(2))
	f, err := Train(b, ranks, resp, cfg, params)
	require.NoError(t, err)

	pred := predictIris(f, irisX)
	acc := accuracy(pred, f.CtgWidth)

	assert.GreaterOrEqual(t, acc, 0.95, "expected accuracy on iris data to be at least 0.95, got %f", acc)
}

func TestForestEncodeDecode(t *testing.T) {
	b, ranks, resp, err := irisBlock()
	require.NoError(t, err)

	params := tree.NewParams(tree.MinNode(1))
	params.CtgWidth = 3

	cfg := NewTrainConfig(NumTrees(10))
	f, err := Train(b, ranks, resp, cfg, params)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	f2, err := Load(&buf)
	require.NoError(t, err)

	pred := predictIris(f2, irisX)
	acc := accuracy(pred, f2.CtgWidth)

	assert.GreaterOrEqual(t, acc, 0.95)
	assert.Equal(t, f.PredInfo, f2.PredInfo)
}

func TestTrainRejectsZeroTrees(t *testing.T) {
	b, ranks, resp, err := irisBlock()
	require.NoError(t, err)
	params := tree.NewParams()
	params.CtgWidth = 3

	_, err = Train(b, ranks, resp, TrainConfig{}, params)
	assert.Error(t, err)
}

func BenchmarkIrisFit(b *testing.B) {
	blk, ranks, resp, err := irisBlock()
	if err != nil {
		b.Fatal(err)
	}
	params := tree.NewParams(tree.MinNode(1))
	params.CtgWidth = 3
	cfg := NewTrainConfig(NumTrees(20))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Train(blk, ranks, resp, cfg, params)
	}
}

func BenchmarkIrisPredict(b *testing.B) {
	blk, ranks, resp, err := irisBlock()
	if err != nil {
		b.Fatal(err)
	}
	params := tree.NewParams(tree.MinNode(1))
	params.CtgWidth = 3
	cfg := NewTrainConfig(NumTrees(20))
	f, err := Train(blk, ranks, resp, cfg, params)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = predictIris(f, irisX)
	}
}

var irisXNames = []string{"Sepal.Width", "Petal.Length", "Sepal.Length", "Petal.Width"}

var irisX = [][]float32{
	{3.5, 1.4, 5.1, 0.2}, {3.0, 1.4, 4.9, 0.2}, {3.2, 1.3, 4.7, 0.2}, {3.1, 1.5, 4.6, 0.2},
	{3.6, 1.4, 5.0, 0.2}, {3.9, 1.7, 5.4, 0.4}, {3.4, 1.4, 4.6, 0.3}, {3.4, 1.5, 5.0, 0.2},
	{2.9, 1.4, 4.4, 0.2}, {3.1, 1.5, 4.9, 0.1}, {3.7, 1.5, 5.4, 0.2}, {3.4, 1.6, 4.8, 0.2},
	{3.0, 1.4, 4.8, 0.1}, {3.0, 1.1, 4.3, 0.1}, {4.0, 1.2, 5.8, 0.2}, {4.4, 1.5, 5.7, 0.4},
	{3.9, 1.3, 5.4, 0.4}, {3.5, 1.4, 5.1, 0.3}, {3.8, 1.7, 5.7, 0.3}, {3.8, 1.5, 5.1, 0.3},
	{3.4, 1.7, 5.4, 0.2}, {3.7, 1.5, 5.1, 0.4}, {3.6, 1.0, 4.6, 0.2}, {3.3, 1.7, 5.1, 0.5},
	{3.4, 1.9, 4.8, 0.2}, {3.0, 1.6, 5.0, 0.2}, {3.4, 1.6, 5.0, 0.4}, {3.5, 1.5, 5.2, 0.2},
	{3.4, 1.4, 5.2, 0.2}, {3.2, 1.6, 4.7, 0.2}, {3.1, 1.6, 4.8, 0.2}, {3.4, 1.5, 5.4, 0.4},
	{4.1, 1.5, 5.2, 0.1}, {4.2, 1.4, 5.5, 0.2}, {3.1, 1.5, 4.9, 0.2}, {3.2, 1.2, 5.0, 0.2},
	{3.5, 1.3, 5.5, 0.2}, {3.6, 1.4, 4.9, 0.1}, {3.0, 1.3, 4.4, 0.2}, {3.4, 1.5, 5.1, 0.2},
	{3.5, 1.3, 5.0, 0.3}, {2.3, 1.3, 4.5, 0.3}, {3.2, 1.3, 4.4, 0.2}, {3.5, 1.6, 5.0, 0.6},
	{3.8, 1.9, 5.1, 0.4}, {3.0, 1.4, 4.8, 0.3}, {3.8, 1.6, 5.1, 0.2}, {3.2, 1.4, 4.6, 0.2},
	{3.7, 1.5, 5.3, 0.2}, {3.3, 1.4, 5.0, 0.2},
	{3.2, 4.7, 7.0, 1.4}, {3.2, 4.5, 6.4, 1.5}, {3.1, 4.9, 6.9, 1.5}, {2.3, 4.0, 5.5, 1.3},
	{2.8, 4.6, 6.5, 1.5}, {2.8, 4.5, 5.7, 1.3}, {3.3, 4.7, 6.3, 1.6}, {2.4, 3.3, 4.9, 1.0},
	{2.9, 4.6, 6.6, 1.3}, {2.7, 3.9, 5.2, 1.4}, {2.0, 3.5, 5.0, 1.0}, {3.0, 4.2, 5.9, 1.5},
	{2.2, 4.0, 6.0, 1.0}, {2.9, 4.7, 6.1, 1.4}, {2.9, 3.6, 5.6, 1.3}, {3.1, 4.4, 6.7, 1.4},
	{3.0, 4.5, 5.6, 1.5}, {2.7, 4.1, 5.8, 1.0}, {2.2, 4.5, 6.2, 1.5}, {2.5, 3.9, 5.6, 1.1},
	{3.2, 4.8, 5.9, 1.8}, {2.8, 4.0, 6.1, 1.3}, {2.5, 4.9, 6.3, 1.5}, {2.8, 4.7, 6.1, 1.2},
	{2.9, 4.3, 6.4, 1.3}, {3.0, 4.4, 6.6, 1.4}, {2.8, 4.8, 6.8, 1.4}, {3.0, 5.0, 6.7, 1.7},
	{2.9, 4.5, 6.0, 1.5}, {2.6, 3.5, 5.7, 1.0}, {2.4, 3.8, 5.5, 1.1}, {2.4, 3.7, 5.5, 1.0},
	{2.7, 3.9, 5.8, 1.2}, {2.7, 5.1, 6.0, 1.6}, {3.0, 4.5, 5.4, 1.5}, {3.4, 4.5, 6.0, 1.6},
	{3.1, 4.7, 6.7, 1.5}, {2.3, 4.4, 6.3, 1.3}, {3.0, 4.1, 5.6, 1.3}, {2.5, 4.0, 5.5, 1.3},
	{2.6, 4.4, 5.5, 1.2}, {3.0, 4.6, 6.1, 1.4}, {2.6, 4.0, 5.8, 1.2}, {2.3, 3.3, 5.0, 1.0},
	{2.7, 4.2, 5.6, 1.3}, {3.0, 4.2, 5.7, 1.2}, {2.9, 4.2, 5.7, 1.3}, {2.9, 4.3, 6.2, 1.3},
	{2.5, 3.0, 5.1, 1.1}, {2.8, 4.1, 5.7, 1.3},
	{3.3, 6.0, 6.3, 2.5}, {2.7, 5.1, 5.8, 1.9}, {3.0, 5.9, 7.1, 2.1}, {2.9, 5.6, 6.3, 1.8},
	{3.0, 5.8, 6.5, 2.2}, {3.0, 6.6, 7.6, 2.1}, {2.5, 4.5, 4.9, 1.7}, {2.9, 6.3, 7.3, 1.8},
	{2.5, 5.8, 6.7, 1.8}, {3.6, 6.1, 7.2, 2.5}, {3.2, 5.1, 6.5, 2.0}, {2.7, 5.3, 6.4, 1.9},
	{3.0, 5.5, 6.8, 2.1}, {2.5, 5.0, 5.7, 2.0}, {2.8, 5.1, 5.8, 2.4}, {3.2, 5.3, 6.4, 2.3},
	{3.0, 5.5, 6.5, 1.8}, {3.8, 6.7, 7.7, 2.2}, {2.6, 6.9, 7.7, 2.3}, {2.2, 5.0, 6.0, 1.5},
	{3.2, 5.7, 6.9, 2.3}, {2.8, 4.9, 5.6, 2.0}, {2.8, 6.7, 7.7, 2.0}, {2.7, 4.9, 6.3, 1.8},
	{3.3, 5.7, 6.7, 2.1}, {3.2, 6.0, 7.2, 1.8}, {2.8, 4.8, 6.2, 1.8}, {3.0, 4.9, 6.1, 1.8},
	{2.8, 5.6, 6.4, 2.1}, {3.0, 5.8, 7.2, 1.6}, {2.8, 6.1, 7.4, 1.9}, {3.8, 6.4, 7.9, 2.0},
	{2.8, 5.6, 6.4, 2.2}, {2.8, 5.1, 6.3, 1.5}, {2.6, 5.6, 6.1, 1.4}, {3.0, 6.1, 7.7, 2.3},
	{3.4, 5.6, 6.3, 2.4}, {3.1, 5.5, 6.4, 1.8}, {3.0, 4.8, 6.0, 1.8}, {3.1, 5.4, 6.9, 2.1},
	{3.1, 5.6, 6.7, 2.4}, {3.1, 5.1, 6.9, 2.3}, {2.7, 5.1, 5.8, 1.9}, {3.2, 5.9, 6.8, 2.3},
	{3.3, 5.7, 6.7, 2.5}, {3.0, 5.2, 6.7, 2.3}, {2.5, 5.0, 6.3, 1.9}, {3.0, 5.2, 6.5, 2.0},
	{3.4, 5.4, 6.2, 2.3}, {3.0, 5.1, 5.9, 1.8},
}
