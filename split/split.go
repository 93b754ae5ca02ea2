// Package split implements the per-level argmax split driver: for each
// live node and each sampled predictor, find the highest-information
// binary partition of that node's rows, dispatching to a numeric
// running-stats walk or a runset.Arena-backed factor search depending on
// the predictor's type.
package split

import (
	"math/rand"
	"sort"

	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/runset"

	"github.com/arboretum-ml/ranger/errors"
)

// Ranks is the rank-order query surface Level needs: a predictor's
// position-sorted row order and its parallel dense rank. rank.RowRank
// satisfies this directly; the tree builder instead passes a per-tree
// mutable staging copy, since restage rewrites these arrays between
// levels and RowRank itself stays shared and read-only across concurrent
// tree-block workers.
type Ranks interface {
	Rows(p int) []uint32
	Ranks(p int) []uint32
}

// Range is a half-open position interval into a predictor's rank-sorted
// row order, rank.RowRank.Rows(p)[Start:End), not a row-index interval.
type Range struct {
	Start, End int
}

// Len reports the number of rows the range covers.
func (r Range) Len() int { return r.End - r.Start }

// Node is one live node's view into a level: its position range within
// every predictor's rank order, its aggregate sample/response totals,
// and the per-factor-predictor SafeCount carried from the previous level.
type Node struct {
	ID int

	// Range[p] is this node's contiguous position range within
	// rank.RowRank.Rows(p), one entry per predictor (numeric and factor
	// alike; both are ranked uniformly).
	Range []Range

	SCount int
	Sum    float64   // regression: total response sum
	CtgSum []float64 // classification: total per-category sum, len ctgWidth

	// Safe[f] is factor predictor f's (block-local index) carried-forward
	// run-count ceiling; nil entries default to that predictor's
	// cardinality on a node's first encounter.
	Safe []runset.SafeCount
}

// Params configures one call to Level.
type Params struct {
	// PredFixed, if > 0 and below the predictor count, samples exactly
	// this many predictors per node via Fisher-Yates, taking priority over
	// PredProb. At or above the predictor count it is ignored.
	PredFixed int
	// PredProb, if non-nil, is a per-predictor Bernoulli inclusion
	// probability, sampled independently per node per predictor.
	PredProb []float64

	// CtgWidth is 0 for regression, >=2 for classification.
	CtgWidth int

	// SmallFactorCeiling is the cardinality at or below which a factor
	// predictor's LH/RH partition is found by exhaustive non-empty subset
	// enumeration rather than a heap-ordered cut search.
	SmallFactorCeiling int

	// RegMono[p] is a numeric predictor's declared monotonicity sign, in
	// {-1, 0, +1}; 0 means unconstrained. Ignored for classification.
	RegMono []int8

	MinNode int

	Rnd *rand.Rand
}

// Result is one node's winning (predictor, partition) pair for a level,
// or the noResult placeholder (Pred == -1) if no sampled predictor at that node
// improved on a trivial (all-RH) partition.
type Result struct {
	NodeID int
	Pred   int
	IsFactor bool

	// Numeric: LH is Range.Start..CutPos inclusive, in the predictor's
	// rank order; the split threshold is the value at CutPos.
	CutPos   int
	SplitVal float64

	// Factor: the winning subset, as a bitmask over run slots (from
	// RunSet.LHBits: small factors, and wide multi-class factors after
	// DeWide) or a cut position into the sorted out vector (from
	// RunSet.LHSlots: the heap cut for regression/binary factors above
	// SmallFactorCeiling, marked by FacWide). The LH run bounds for
	// restage are already in LHRuns.
	FacMask uint32
	FacCut  int
	FacWide bool

	// LHRuns is the set of position ranges within rows(Pred) belonging to
	// LH: one range for a numeric split, one or more (non-adjacent)
	// ranges for a factor split. The tree builder uses this directly for
	// restage, without re-deriving it from FacMask/FacCut.
	LHRuns []Range

	LHIdxCount, LHSampCt int
	LHSum                float64   // regression: LH response sum
	LHCtgSum             []float64 // classification: LH per-category sum
	Info                 float64
}

func (r Result) found() bool { return r.Pred >= 0 }

// noResult is the zero-information placeholder for a node with no
// improving split.
func noResult(nodeID int) Result { return Result{NodeID: nodeID, Pred: -1} }

// PredSafe carries a factor predictor's observed run count forward to
// the next level, independent of whether that predictor won the node's
// split: safeCount/singleton tracking is per-pair, not per-winner.
type PredSafe struct {
	Pred int
	Safe runset.SafeCount
}

// Sample carries one tree's per-row bag weight and response, indexed by
// original row, feeding both the numeric walk and factor run formation.
type Sample struct {
	// SCount[row] is the in-bag replicate count for row (0 if not drawn).
	SCount []uint32
	// Y[row] is the response (regression) or, for classification, unused
	// directly — Ctg below drives the category walk instead.
	Y []float64
	// Ctg[row] is the response category (classification only).
	Ctg []uint32
}

// Level computes, for each node, the highest-information (predictor,
// partition) pair over its sampled predictors, plus every sampled factor
// predictor's updated SafeCount (winner or not — persisted by the tree
// builder into the next level's nodes). It does not mutate nodes or the
// block/ranks; the tree builder applies the winning Result during
// restage.
func Level(nodes []Node, b block.Handle, ranks Ranks, samp Sample, cfg Params) ([]Result, [][]PredSafe, error) {
	if b == nil {
		return nil, nil, errors.Wrap(errors.ErrNotInitialized, "split.Level: nil block handle")
	}
	results := make([]Result, len(nodes))
	safeUpdates := make([][]PredSafe, len(nodes))

	for i, n := range nodes {
		preds := selectPredictors(b.NPred(), cfg, n.ID)
		best := noResult(n.ID)

		for _, p := range preds {
			var cand Result
			var ok bool
			if b.IsFactor(p) {
				var safe runset.SafeCount
				cand, ok, safe = splitFactor(n, p, b, ranks, samp, cfg)
				safeUpdates[i] = append(safeUpdates[i], PredSafe{Pred: b.BlockIdx(p), Safe: safe})
			} else {
				cand, ok = splitNumeric(n, p, b, ranks, samp, cfg)
			}
			if ok && cand.Info > best.Info {
				best = cand
			}
		}
		results[i] = best
	}
	return results, safeUpdates, nil
}

// selectPredictors implements the PredFixed/PredProb sampling rule:
// Fisher-Yates for the fixed-count case, a per-predictor Bernoulli draw
// otherwise. The draw is keyed off cfg.Rnd and is not reproducible
// across concurrent nodes unless the caller serializes Rnd use per node.
func selectPredictors(nPred int, cfg Params, nodeID int) []int {
	if cfg.PredFixed > 0 && cfg.PredFixed < nPred {
		all := make([]int, nPred)
		for i := range all {
			all[i] = i
		}
		k := cfg.PredFixed
		for i := 0; i < k; i++ {
			j := i + cfg.Rnd.Intn(nPred-i)
			all[i], all[j] = all[j], all[i]
		}
		sel := make([]int, k)
		copy(sel, all[:k])
		sort.Ints(sel)
		return sel
	}

	if cfg.PredProb != nil {
		var sel []int
		for p := 0; p < nPred; p++ {
			if cfg.Rnd.Float64() < cfg.PredProb[p] {
				sel = append(sel, p)
			}
		}
		return sel
	}

	all := make([]int, nPred)
	for i := range all {
		all[i] = i
	}
	return all
}
