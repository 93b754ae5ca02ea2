// Package predict implements the prediction driver: a row-blocked walk
// of a trained forest.Forest that descends each tree to a leaf, masking
// trees a row was in-bag for, then tabulates a regression score,
// classification vote/probability, or quantile estimate. It uses a
// channel-based worker pool over row blocks, rather than tree blocks.
package predict

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/arboretum-ml/ranger/bitset"
	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/errors"
	"github.com/arboretum-ml/ranger/forest"
	"github.com/arboretum-ml/ranger/rlog"
)

// RowBlock is the default number of rows a single worker scores before
// picking up the next block, sized for L2 residency.
const RowBlock = 256

// walkTree descends tree treeIdx from its root for row's predictor values
// in b, returning the absolute leaf index it lands in, or -1 if bag marks
// (row, treeIdx) in-bag: an in-bag tree contributes nothing to that row's
// prediction.
func walkTree(f *forest.Forest, treeIdx, row int, b block.Handle, bag *bitset.Matrix) int32 {
	if bag != nil && bag.Get(row, treeIdx) {
		return -1
	}
	idx := f.Origin[treeIdx]
	for {
		n := f.Nodes[idx]
		if n.Leaf {
			return int32(n.LeafIdx)
		}
		if n.IsFactor {
			code := b.Factor(b.BlockIdx(int(n.PredIdx)))[row]
			word := int(n.FacOff) + int(code)/32
			bit := uint(code % 32)
			if f.FacSplit[word]&(1<<bit) != 0 {
				idx = n.Left
			} else {
				idx = n.Right
			}
		} else {
			if b.Numeric(int(n.PredIdx))[row] <= n.SplitVal {
				idx = n.Left
			} else {
				idx = n.Right
			}
		}
	}
}

// Vote truncates a leaf's jittered classification score into its category
// and fractional tie-break weight: ctg = floor(val), weight = 1 + (val -
// ctg). This must match the convention tree.Tree writes at leaf-finalize
// time exactly.
func Vote(val float64) (ctg uint32, weight float64) {
	c := math.Trunc(val)
	return uint32(c), 1 + (val - c)
}

// rowJobs fans row indices [0, nRow) out to numWorkers goroutines in
// RowBlock-sized chunks, each writing only to the row positions it owns so
// no output slice needs synchronization. log receives one Debug event per
// block as it completes; pass rlog.Nop() to disable.
func rowJobs(nRow, numWorkers int, log rlog.Logger, score func(row int)) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = rlog.Nop()
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range jobs {
				end := start + RowBlock
				if end > nRow {
					end = nRow
				}
				for row := start; row < end; row++ {
					score(row)
				}
				log.Debug("row block complete", map[string]interface{}{
					"block_start": start,
					"block_len":   end - start,
				})
			}
		}()
	}
	for start := 0; start < nRow; start += RowBlock {
		jobs <- start
	}
	close(jobs)
	wg.Wait()
}

// RegressionConfig configures one call to Regression.
type RegressionConfig struct {
	// Bag, if non-nil, enables bag masking: each row is scored only by the
	// trees it was out-of-bag for. Leave nil to score every row with the
	// whole ensemble (ordinary prediction on new data).
	Bag *bitset.Matrix

	NumWorkers int

	// YRanked, QBin, Quantiles, if QBin > 0 and Quantiles is non-empty,
	// request quantile predictions alongside the score; see Quantile for
	// their meaning.
	YRanked   []float64
	QBin      int
	Quantiles []float64

	Log rlog.Logger
}

// RegressionResult is predict.Regression's output.
type RegressionResult struct {
	YPred []float64
	// QPred[row] holds one value per RegressionConfig.Quantiles entry, in
	// the same order; nil unless quantiles were requested.
	QPred [][]float64
}

// Regression walks the forest and scores each row as the mean, across
// contributing trees, of that tree's leaf mean (Sum/SCount). A row with
// zero contributing trees (every tree masked by Bag) scores math.NaN()
// rather than falling back to the ensemble mean or panicking: that
// situation is a caller configuration error (too few trees for reliable
// OOB scoring), and NaN surfaces it instead of masking it.
func Regression(f *forest.Forest, b block.Handle, cfg RegressionConfig) (*RegressionResult, error) {
	if f == nil || b == nil {
		return nil, errors.Wrap(errors.ErrNotInitialized, "predict.Regression: nil forest or block")
	}
	if f.CtgWidth != 0 {
		return nil, errors.Wrap(errors.ErrArity, "predict.Regression: forest is a classifier")
	}

	wantQuantile := len(cfg.Quantiles) > 0
	if wantQuantile && (cfg.YRanked == nil || cfg.QBin <= 0) {
		return nil, errors.Wrap(errors.ErrArity, "predict.Regression: quantiles require YRanked and QBin")
	}

	nRow := b.NRow()
	yPred := make([]float64, nRow)
	var qPred [][]float64
	if wantQuantile {
		qPred = make([][]float64, nRow)
	}

	nTree := f.NTree()
	rowJobs(nRow, cfg.NumWorkers, cfg.Log, func(row int) {
		vals := make([]float64, 0, nTree)
		for t := 0; t < nTree; t++ {
			leaf := walkTree(f, t, row, b, cfg.Bag)
			if leaf < 0 {
				continue
			}
			sc := f.SCount[leaf]
			if sc == 0 {
				continue
			}
			vals = append(vals, f.Sum[leaf]/float64(sc))
		}
		if len(vals) == 0 {
			yPred[row] = math.NaN()
		} else {
			yPred[row] = floats.Sum(vals) / float64(len(vals))
		}
		if wantQuantile {
			qPred[row] = quantileRow(f, b, cfg.Bag, row, cfg.YRanked, cfg.QBin, cfg.Quantiles)
		}
	})

	return &RegressionResult{YPred: yPred, QPred: qPred}, nil
}

// quantileRow computes, for one row, each requested quantile of the response
// distribution implied by that row's contributing leaves: each leaf's
// (Rank, SCount) is bucketed into one of qBin equal-width buckets over
// [0, len(yRanked)), weighted by SCount, then stat.Quantile answers the
// request against each bucket's representative value (yRanked at the
// bucket's last rank) treated as a weighted empirical distribution.
func quantileRow(f *forest.Forest, b block.Handle, bag *bitset.Matrix, row int, yRanked []float64, qBin int, quantiles []float64) []float64 {
	nRank := len(yRanked)
	buckets := make([]float64, qBin)

	for t := 0; t < f.NTree(); t++ {
		leaf := walkTree(f, t, row, b, bag)
		if leaf < 0 {
			continue
		}
		sc := f.SCount[leaf]
		if sc == 0 {
			continue
		}
		bucket := int(f.Rank[leaf]) * qBin / nRank
		if bucket >= qBin {
			bucket = qBin - 1
		}
		buckets[bucket] += float64(sc)
	}

	reps := make([]float64, qBin)
	for bi := range reps {
		repRank := (bi+1)*nRank/qBin - 1
		if repRank < 0 {
			repRank = 0
		}
		if repRank >= nRank {
			repRank = nRank - 1
		}
		reps[bi] = yRanked[repRank]
	}

	out := make([]float64, len(quantiles))
	if floats.Sum(buckets) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i, q := range quantiles {
		out[i] = stat.Quantile(q, stat.Empirical, reps, buckets)
	}
	return out
}

// QuantileConfig configures one call to Quantile.
type QuantileConfig struct {
	Bag        *bitset.Matrix
	NumWorkers int

	YRanked   []float64
	QBin      int
	Quantiles []float64
}

// Quantile computes per-row quantile predictions on their own, for callers
// that don't also need Regression's point score. It shares quantileRow
// with Regression, so the two stay consistent when both are requested on
// the same forest.
func Quantile(f *forest.Forest, b block.Handle, cfg QuantileConfig) ([][]float64, error) {
	if f == nil || b == nil {
		return nil, errors.Wrap(errors.ErrNotInitialized, "predict.Quantile: nil forest or block")
	}
	if cfg.YRanked == nil || cfg.QBin <= 0 || len(cfg.Quantiles) == 0 {
		return nil, errors.Wrap(errors.ErrArity, "predict.Quantile: YRanked, QBin, and Quantiles are required")
	}

	nRow := b.NRow()
	qPred := make([][]float64, nRow)
	rowJobs(nRow, cfg.NumWorkers, nil, func(row int) {
		qPred[row] = quantileRow(f, b, cfg.Bag, row, cfg.YRanked, cfg.QBin, cfg.Quantiles)
	})
	return qPred, nil
}

// ClassificationConfig configures one call to Classification.
type ClassificationConfig struct {
	// Bag, if non-nil, enables bag masking (OOB scoring); nil scores every
	// row with the whole ensemble.
	Bag *bitset.Matrix

	NumWorkers int

	// WithProb requests the per-row, per-category probability estimate
	// built from leaf weights (forest.Forest.Weight).
	WithProb bool

	// YTest, if non-nil, requests a confusion matrix and per-category
	// error rate against these true category labels.
	YTest []uint32

	Log rlog.Logger
}

// ClassificationResult is predict.Classification's output.
type ClassificationResult struct {
	YPred  []uint32
	Census [][]uint32 // Census[row][ctg], plain (non-jittered) vote counts

	Prob [][]float64 // Prob[row][ctg], row-normalized; nil unless requested

	Confusion [][]uint32 // Confusion[true][pred]; nil unless YTest given
	Error     []float64  // Error[ctg]; nil unless YTest given
}

// Classification walks the forest and, for each row, accumulates a
// jittered vote per contributing tree (via Vote) to break ties
// deterministically, argmax'ing the jittered total into YPred while
// keeping Census as the plain, de-jittered per-category contributing-tree
// count. Prob, when requested, sums each contributing leaf's per-category
// weight and normalizes to a row sum of 1.
func Classification(f *forest.Forest, b block.Handle, cfg ClassificationConfig) (*ClassificationResult, error) {
	if f == nil || b == nil {
		return nil, errors.Wrap(errors.ErrNotInitialized, "predict.Classification: nil forest or block")
	}
	if f.CtgWidth == 0 {
		return nil, errors.Wrap(errors.ErrArity, "predict.Classification: forest is not a classifier")
	}

	nRow := b.NRow()
	ctgWidth := f.CtgWidth
	nTree := f.NTree()

	yPred := make([]uint32, nRow)
	census := make([][]uint32, nRow)
	var prob [][]float64
	if cfg.WithProb {
		prob = make([][]float64, nRow)
	}

	rowJobs(nRow, cfg.NumWorkers, cfg.Log, func(row int) {
		votes := make([]float64, ctgWidth)
		cnt := make([]uint32, ctgWidth)
		var rowProb []float64
		if cfg.WithProb {
			rowProb = make([]float64, ctgWidth)
		}

		for t := 0; t < nTree; t++ {
			leaf := walkTree(f, t, row, b, cfg.Bag)
			if leaf < 0 {
				continue
			}
			ctg, weight := Vote(f.Val[leaf])
			votes[ctg] += weight
			cnt[ctg]++

			if cfg.WithProb {
				base := int(leaf) * ctgWidth
				for c := 0; c < ctgWidth; c++ {
					rowProb[c] += f.Weight[base+c]
				}
			}
		}

		best := 0
		for c := 1; c < ctgWidth; c++ {
			if votes[c] > votes[best] {
				best = c
			}
		}
		yPred[row] = uint32(best)
		census[row] = cnt

		if cfg.WithProb {
			total := floats.Sum(rowProb)
			if total > 0 {
				floats.Scale(1/total, rowProb)
			}
			prob[row] = rowProb
		}
	})

	result := &ClassificationResult{YPred: yPred, Census: census, Prob: prob}

	if cfg.YTest != nil {
		conf := make([][]uint32, ctgWidth)
		for i := range conf {
			conf[i] = make([]uint32, ctgWidth)
		}
		for row, actual := range cfg.YTest {
			conf[actual][yPred[row]]++
		}

		errRate := make([]float64, ctgWidth)
		for c := 0; c < ctgWidth; c++ {
			var rowSum, offDiag float64
			for p := 0; p < ctgWidth; p++ {
				v := float64(conf[c][p])
				rowSum += v
				if p != c {
					offDiag += v
				}
			}
			if rowSum > 0 {
				errRate[c] = offDiag / rowSum
			}
		}

		result.Confusion = conf
		result.Error = errRate
	}

	return result, nil
}
