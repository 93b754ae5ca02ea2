// Package forest implements Forest/LeafStore: the append-only global
// arrays an ensemble of tree.Tree values splice into, and Train, the
// tree-block-parallel training session that drives them. It uses a
// channel-based worker pool and functional-option configuration, with
// tree.Grow doing per-tree CART growth over a shared
// block.Handle/rank.RowRank.
package forest

import (
	"encoding/gob"
	"io"
	"math/rand"
	"sync"

	"github.com/arboretum-ml/ranger/bitset"
	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/errors"
	"github.com/arboretum-ml/ranger/rank"
	"github.com/arboretum-ml/ranger/rlog"
	"github.com/arboretum-ml/ranger/tree"
)

// ForestNode is one global decision or leaf node, spliced in from a
// tree-local tree.Node by adding that tree's node and factor-bitset
// origins. Left/Right/LeafIdx are absolute indices into the ensemble's
// own arrays, not the source tree's.
type ForestNode struct {
	Leaf bool

	PredIdx  uint32
	IsFactor bool
	SplitVal float64
	FacOff   uint32 // absolute offset into FacSplit

	Left, Right uint32 // absolute node index, valid iff !Leaf

	LeafIdx uint32 // absolute leaf index, valid iff Leaf
}

// Forest is the ensemble-wide append-only array set Train produces:
// Nodes/Origin/FacOff/FacSplit, plus leaf payloads dense by absolute leaf
// index (SCount always; Sum/Rank for regression, Weight for
// classification).
type Forest struct {
	Nodes    []ForestNode
	Origin   []uint32 // per tree, first node index
	FacOff   []uint32 // per tree, first FacSplit word index
	FacSplit []uint32

	SCount []uint32
	Sum    []float64 // regression, dense by leaf
	Rank   []uint32  // regression quantile support, dense by leaf
	Val    []float64 // classification, jittered leaf score, dense by leaf
	Weight []float64 // classification, ctgWidth-wide per leaf

	PredInfo []float64
	InBag    *bitset.Matrix

	CtgWidth int
	NPred    int
}

// NTree reports the number of trees spliced into the ensemble.
func (f *Forest) NTree() int { return len(f.Origin) }

// TrainConfig holds one training session's hyperparameters, built with
// NewTrainConfig and the option functions below.
type TrainConfig struct {
	NTree      int
	NumWorkers int
	TrainBlock int

	// Budget0 seeds tree.Params.Budget for the first attempt at each tree;
	// 0 leaves node allocation unbounded (no BudgetExceeded retry ever
	// triggers). BudgetSlop is the growth factor a retry multiplies it by.
	Budget0    int
	BudgetSlop float64

	Log rlog.Logger
}

type trainConfiger interface {
	setNTree(int)
	setNumWorkers(int)
	setTrainBlock(int)
	setBudget0(int)
	setBudgetSlop(float64)
	setLog(rlog.Logger)
}

func (c *TrainConfig) setNTree(n int)            { c.NTree = n }
func (c *TrainConfig) setNumWorkers(n int)       { c.NumWorkers = n }
func (c *TrainConfig) setTrainBlock(n int)       { c.TrainBlock = n }
func (c *TrainConfig) setBudget0(n int)          { c.Budget0 = n }
func (c *TrainConfig) setBudgetSlop(f float64)   { c.BudgetSlop = f }
func (c *TrainConfig) setLog(l rlog.Logger)      { c.Log = l }

// NumTrees sets the ensemble size.
func NumTrees(n int) func(trainConfiger) { return func(c trainConfiger) { c.setNTree(n) } }

// NumWorkers sets the tree-block worker pool size; ensure GOMAXPROCS is
// also set > 1 to take advantage of multiple cores.
func NumWorkers(n int) func(trainConfiger) { return func(c trainConfiger) { c.setNumWorkers(n) } }

// TrainBlock sets how many trees are grown per parallel block before
// splicing into the global arrays.
func TrainBlock(n int) func(trainConfiger) { return func(c trainConfiger) { c.setTrainBlock(n) } }

// Budget0 sets the initial per-tree node-count budget; 0 leaves it
// unbounded.
func Budget0(n int) func(trainConfiger) { return func(c trainConfiger) { c.setBudget0(n) } }

// BudgetSlop sets the retry growth factor for a BudgetExceeded tree.
func BudgetSlop(f float64) func(trainConfiger) { return func(c trainConfiger) { c.setBudgetSlop(f) } }

// Log sets the structured logger used for per-block training progress.
func Log(l rlog.Logger) func(trainConfiger) { return func(c trainConfiger) { c.setLog(l) } }

// NewTrainConfig returns a configured TrainConfig. With no options this is
// equivalent to NewTrainConfig(NumTrees(10), NumWorkers(1), TrainBlock(10),
// BudgetSlop(1.2)).
func NewTrainConfig(opts ...func(trainConfiger)) TrainConfig {
	c := &TrainConfig{
		NTree:      10,
		NumWorkers: 1,
		TrainBlock: 10,
		BudgetSlop: 1.2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return *c
}

// Train grows cfg.NTree trees against the shared b/ranks/resp, TrainBlock
// trees at a time across cfg.NumWorkers workers, splicing each completed
// block into the ensemble's global arrays in tree-index order at
// block-commit time. A tree that exceeds its node budget is retried at
// BudgetSlop growth, rather than the whole block failing.
func Train(b block.Handle, ranks *rank.RowRank, resp tree.Response, cfg TrainConfig, params tree.Params) (*Forest, error) {
	if b == nil || ranks == nil {
		return nil, errors.Wrap(errors.ErrNotInitialized, "forest.Train: nil block or ranks")
	}
	if cfg.NTree == 0 {
		return nil, errors.Wrap(errors.ErrArity, "forest.Train: nTree == 0")
	}

	log := cfg.Log
	if log == nil {
		log = rlog.Nop()
	}

	nRow := b.NRow()
	trainBlock := cfg.TrainBlock
	if trainBlock <= 0 {
		trainBlock = cfg.NTree
	}
	numWorkers := cfg.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	slop := cfg.BudgetSlop
	if slop <= 1 {
		slop = 1.2
	}

	if params.CtgWidth == 0 && resp.YRank == nil {
		yCol := make([][]float64, nRow)
		for row, y := range resp.Y {
			yCol[row] = []float64{y}
		}
		yRanks, err := rank.Compute(yCol, 1)
		if err != nil {
			return nil, errors.Wrap(err, "forest.Train: ranking response")
		}
		resp.YRank = yRanks.Inverse(0)
	}

	f := &Forest{
		Origin:   make([]uint32, cfg.NTree),
		FacOff:   make([]uint32, cfg.NTree),
		PredInfo: make([]float64, b.NPred()),
		InBag:    bitset.New(nRow, cfg.NTree),
		CtgWidth: params.CtgWidth,
		NPred:    b.NPred(),
	}

	for blockStart := 0; blockStart < cfg.NTree; blockStart += trainBlock {
		blockEnd := blockStart + trainBlock
		if blockEnd > cfg.NTree {
			blockEnd = cfg.NTree
		}
		blockLen := blockEnd - blockStart

		trees := make([]*tree.Tree, blockLen)
		bags := make([]tree.Bag, blockLen)
		errs := make([]error, blockLen)

		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < numWorkers; w++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				r := rand.New(rand.NewSource(seed))
				for i := range jobs {
					t, bag, err := growWithRetry(b, ranks, resp, params, r, cfg.Budget0, slop)
					trees[i] = t
					bags[i] = bag
					errs[i] = err
				}
			}(int64(blockStart*numWorkers + w + 1))
		}
		for i := 0; i < blockLen; i++ {
			jobs <- i
		}
		close(jobs)
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return nil, errors.Wrapf(err, "forest.Train: tree %d", blockStart+i)
			}
		}

		for i, t := range trees {
			spliceTree(f, t, bags[i], blockStart+i)
		}

		log.Debug("tree block complete", map[string]interface{}{
			"block_start": blockStart,
			"block_len":   blockLen,
		})
	}

	return f, nil
}

// growWithRetry calls tree.Grow, reallocating budget at slop growth and
// retrying just this tree on ErrBudgetExceeded. budget0 == 0 leaves
// allocation unbounded and this loop runs exactly once.
func growWithRetry(b block.Handle, ranks *rank.RowRank, resp tree.Response, params tree.Params, r *rand.Rand, budget0 int, slop float64) (*tree.Tree, tree.Bag, error) {
	budget := budget0
	for {
		p := params
		p.Budget = budget
		t, bag, err := tree.Grow(b, ranks, resp, p, r)
		if err == nil {
			return t, bag, nil
		}
		if budget > 0 && errors.Is(err, errors.ErrBudgetExceeded) {
			budget = int(float64(budget)*slop) + 1
			continue
		}
		return nil, tree.Bag{}, err
	}
}

// spliceTree appends one grown tree's local arrays into the ensemble's
// global arrays, translating local Left/Right/FacOff/LeafIdx to absolute
// indices by adding this tree's node, factor-bitset, and leaf origins.
func spliceTree(f *Forest, t *tree.Tree, bag tree.Bag, treeIdx int) {
	nodeOrigin := uint32(len(f.Nodes))
	facOrigin := uint32(len(f.FacSplit))
	leafOrigin := uint32(len(f.SCount))

	f.Origin[treeIdx] = nodeOrigin
	f.FacOff[treeIdx] = facOrigin

	for _, n := range t.Nodes {
		gn := ForestNode{
			Leaf:     n.Leaf,
			PredIdx:  n.PredIdx,
			IsFactor: n.IsFactor,
			SplitVal: n.SplitVal,
		}
		if n.Leaf {
			gn.LeafIdx = leafOrigin + n.LeafIdx
		} else {
			gn.FacOff = facOrigin + n.FacOff
			gn.Left = nodeOrigin + n.Left
			gn.Right = nodeOrigin + n.Right
		}
		f.Nodes = append(f.Nodes, gn)
	}

	f.FacSplit = append(f.FacSplit, t.FacSplit...)
	f.SCount = append(f.SCount, t.SCount...)

	if f.CtgWidth > 0 {
		f.Val = append(f.Val, t.Val...)
		f.Weight = append(f.Weight, t.Weight...)
	} else {
		f.Sum = append(f.Sum, t.Sum...)
		f.Rank = append(f.Rank, t.Rank...)
	}

	for p, info := range t.PredInfo {
		f.PredInfo[p] += info
	}

	for row, inBag := range bag.InBag {
		if inBag {
			f.InBag.Set(row, treeIdx)
		}
	}
}

// Save writes the forest via gob.
func (f *Forest) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(gobForest{
		Nodes: f.Nodes, Origin: f.Origin, FacOff: f.FacOff, FacSplit: f.FacSplit,
		SCount: f.SCount, Sum: f.Sum, Rank: f.Rank, Val: f.Val, Weight: f.Weight,
		PredInfo: f.PredInfo, InBagWords: f.InBag.Words(), InBagNRow: f.InBag.NRow(), InBagNTree: f.InBag.NTree(),
		CtgWidth: f.CtgWidth, NPred: f.NPred,
	})
}

// Load reads a forest previously written by Save.
func Load(r io.Reader) (*Forest, error) {
	var g gobForest
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, errors.Wrap(err, "forest.Load")
	}
	return &Forest{
		Nodes: g.Nodes, Origin: g.Origin, FacOff: g.FacOff, FacSplit: g.FacSplit,
		SCount: g.SCount, Sum: g.Sum, Rank: g.Rank, Val: g.Val, Weight: g.Weight,
		PredInfo: g.PredInfo,
		InBag:    bitset.NewFromWords(g.InBagWords, g.InBagNRow, g.InBagNTree),
		CtgWidth: g.CtgWidth, NPred: g.NPred,
	}, nil
}

// gobForest is Forest's wire shape; Forest itself holds a *bitset.Matrix,
// which gob cannot encode directly without exporting its internals.
type gobForest struct {
	Nodes    []ForestNode
	Origin   []uint32
	FacOff   []uint32
	FacSplit []uint32

	SCount []uint32
	Sum    []float64
	Rank   []uint32
	Val    []float64
	Weight []float64

	PredInfo []float64

	InBagWords []uint64
	InBagNRow  int
	InBagNTree int

	CtgWidth int
	NPred    int
}
