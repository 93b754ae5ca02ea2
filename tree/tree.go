// Package tree grows one decision tree level-by-level against a shared
// block.Handle/rank.RowRank, using split.Level to find each live node's
// winning partition and restaging rows into contiguous child ranges
// between levels, via a breadth-first, arena-backed level loop.
package tree

import (
	"math/rand"
)

// Node is one decision or leaf node in a tree's local (pre-splice) array.
// PredIdx/SplitVal/FacOff form the union ForestNode carries at the
// ensemble level; Left/Right are explicit child indices into this same
// local array rather than an implicit "bump" offset, translated to
// global forest indices at splice time (forest.Train, by adding
// origin[t]).
type Node struct {
	Leaf bool

	PredIdx  uint32
	IsFactor bool
	SplitVal float64 // numeric threshold
	FacOff   uint32  // offset into this tree's FacSplit words (factor only)

	Left, Right uint32 // child node index, valid iff !Leaf

	LeafIdx uint32 // dense per-tree leaf index, valid iff Leaf
}

// Tree is one grown tree's local arrays, ready for forest.Train to splice
// into the ensemble's global arrays.
type Tree struct {
	Nodes    []Node
	FacSplit []uint32 // concatenated bitset words, card bits per factor split

	// Leaf payloads, dense by LeafIdx.
	SCount []uint32
	Sum    []float64 // regression: leaf mean numerator
	Rank   []uint32  // regression, quantile support: leaf's weighted-mean y-rank
	Val    []float64 // classification: jittered leaf score, ctg + frac
	Weight []float64 // classification: ctgWidth-wide per-leaf category sums

	PredInfo []float64 // summed split.Result.Info (children's score, not a gain over the parent) per predictor, this tree
}

// Params holds one tree's hyperparameters. Build with NewParams and the
// option functions below.
type Params struct {
	NSamp           int
	WithReplacement bool

	MinNode   int
	MinRatio  float64
	TotLevels int // <= 0 means unlimited

	PredFixed          int
	PredProb           []float64
	RegMono            []int8
	SmallFactorCeiling int

	CtgWidth int // 0 for regression

	// Budget caps the node count Grow will allocate before failing with
	// ErrBudgetExceeded; 0 means unbounded. forest.Train uses this to
	// retry a tree at a larger estimate, rather than relying on Go's
	// slice growth to paper over a blown pre-tree size estimate.
	Budget int
}

type configer interface {
	setNSamp(int)
	setWithReplacement(bool)
	setMinNode(int)
	setMinRatio(float64)
	setTotLevels(int)
	setPredFixed(int)
	setPredProb([]float64)
	setRegMono([]int8)
	setSmallFactorCeiling(int)
}

func (p *Params) setNSamp(n int)              { p.NSamp = n }
func (p *Params) setWithReplacement(b bool)   { p.WithReplacement = b }
func (p *Params) setMinNode(n int)            { p.MinNode = n }
func (p *Params) setMinRatio(r float64)       { p.MinRatio = r }
func (p *Params) setTotLevels(n int)          { p.TotLevels = n }
func (p *Params) setPredFixed(n int)          { p.PredFixed = n }
func (p *Params) setPredProb(v []float64)     { p.PredProb = v }
func (p *Params) setRegMono(v []int8)         { p.RegMono = v }
func (p *Params) setSmallFactorCeiling(n int) { p.SmallFactorCeiling = n }

// NSamp sets the in-bag sample size drawn per tree.
func NSamp(n int) func(configer) { return func(c configer) { c.setNSamp(n) } }

// WithReplacement selects bootstrap (true) vs. subsample (false) bagging.
func WithReplacement(b bool) func(configer) { return func(c configer) { c.setWithReplacement(b) } }

// MinNode limits the smallest node size a split may produce.
func MinNode(n int) func(configer) { return func(c configer) { c.setMinNode(n) } }

// MinRatio floors the LH/RH size ratio a split may produce.
func MinRatio(r float64) func(configer) { return func(c configer) { c.setMinRatio(r) } }

// TotLevels caps tree depth; <= 0 grows a full tree subject to MinNode/MinRatio.
func TotLevels(n int) func(configer) { return func(c configer) { c.setTotLevels(n) } }

// PredFixed samples exactly n predictors per node.
func PredFixed(n int) func(configer) { return func(c configer) { c.setPredFixed(n) } }

// PredProb samples predictors independently by per-predictor probability.
func PredProb(p []float64) func(configer) { return func(c configer) { c.setPredProb(p) } }

// RegMono declares a per-predictor monotonicity sign, in {-1, 0, +1}.
func RegMono(m []int8) func(configer) { return func(c configer) { c.setRegMono(m) } }

// NewParams returns a configured Params. With no options this is
// equivalent to NewParams(MinNode(1), MinRatio(0), TotLevels(-1)).
func NewParams(opts ...func(configer)) Params {
	p := &Params{
		NSamp:              0, // 0 means Grow draws nRow samples
		WithReplacement:    true,
		MinNode:            1,
		MinRatio:           0,
		TotLevels:          -1,
		SmallFactorCeiling: 10,
	}
	for _, opt := range opts {
		opt(p)
	}
	return *p
}

// Response carries one tree's training targets: Y for regression, or Ctg
// (plus CtgWidth) for classification. Exactly one variant is populated.
// YRank, when set, is Y's dense rank under rank.Compute (shared across all
// trees, like rank.RowRank itself) and drives quantile leaf tracking;
// nil skips it.
type Response struct {
	Y        []float64
	YRank    []uint32
	Ctg      []uint32
	CtgWidth int
}

func (r Response) isClassification() bool { return r.CtgWidth > 0 }

// rnd is threaded explicitly rather than stored on Params so concurrent
// tree-block workers (forest.Train) each own an independent source;
// trees share only read-only RowRank and PredBlock.
type rnd = *rand.Rand
