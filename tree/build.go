package tree

import (
	"math"
	"math/rand"

	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/errors"
	"github.com/arboretum-ml/ranger/rank"
	"github.com/arboretum-ml/ranger/runset"
	"github.com/arboretum-ml/ranger/split"
)

// stage is one tree's mutable working copy of the shared RowRank's
// per-predictor row order and dense rank. restage rewrites it in place
// between levels; RowRank itself is never touched, so concurrent
// tree-block workers can keep reading it.
type stage struct {
	rows  [][]uint32
	ranks [][]uint32
}

func newStage(ranks *rank.RowRank, nPred int) *stage {
	s := &stage{rows: make([][]uint32, nPred), ranks: make([][]uint32, nPred)}
	for p := 0; p < nPred; p++ {
		s.rows[p] = append([]uint32(nil), ranks.Rows(p)...)
		s.ranks[p] = append([]uint32(nil), ranks.Ranks(p)...)
	}
	return s
}

func (s *stage) Rows(p int) []uint32  { return s.rows[p] }
func (s *stage) Ranks(p int) []uint32 { return s.ranks[p] }

// liveNode is one node awaiting or past its split decision. A single
// split.Range describes its position range in every predictor's stage
// order: restage always moves the same count of rows out of a range
// regardless of which predictor's order you look at, so the bound is
// predictor-independent even though the order behind it is not.
type liveNode struct {
	id      int
	nodeIdx int
	depth   int

	rng     split.Range
	sCount  int
	sum     float64
	rankSum float64 // regression quantile support, valid iff resp.YRank != nil
	ctgSum  []float64
	safe    []runset.SafeCount
}

// Grow builds one tree against a shared, read-only block.Handle and
// rank.RowRank via the breadth-first level loop: bag, then repeatedly
// call split.Level over the current frontier, restage winning
// partitions into child ranges, and finalize nodes that stop splitting
// into leaves. The drawn Bag is returned alongside the tree so
// forest.Train can record it into the ensemble's in-bag matrix.
func Grow(b block.Handle, ranks *rank.RowRank, resp Response, params Params, r *rand.Rand) (*Tree, Bag, error) {
	if b == nil || ranks == nil {
		return nil, Bag{}, errors.Wrap(errors.ErrNotInitialized, "tree.Grow: nil block or ranks")
	}

	nRow := b.NRow()
	nSamp := params.NSamp
	if nSamp <= 0 {
		nSamp = nRow
	}
	bag := NewBag(nRow, nSamp, params.WithReplacement, r)
	samp := split.Sample{SCount: bag.SCount, Y: resp.Y, Ctg: resp.Ctg}

	nPred := b.NPred()
	st := newStage(ranks, nPred)

	tr := &Tree{PredInfo: make([]float64, nPred)}

	root, err := rootNode(resp, bag, nRow)
	if err != nil {
		return nil, Bag{}, err
	}
	root.nodeIdx, err = allocNode(tr, params.Budget)
	if err != nil {
		return nil, Bag{}, err
	}

	cfg := split.Params{
		PredFixed:          params.PredFixed,
		PredProb:           params.PredProb,
		CtgWidth:           params.CtgWidth,
		SmallFactorCeiling: params.SmallFactorCeiling,
		RegMono:            params.RegMono,
		MinNode:            params.MinNode,
		Rnd:                r,
	}

	frontier := []liveNode{root}
	nextID := 1
	depth := 0

	for len(frontier) > 0 {
		if params.TotLevels > 0 && depth >= params.TotLevels {
			for _, n := range frontier {
				finalizeLeaf(tr, resp, n)
			}
			break
		}

		var eligible []liveNode
		for _, n := range frontier {
			if n.sCount < 2*maxInt(params.MinNode, 1) {
				finalizeLeaf(tr, resp, n)
				continue
			}
			eligible = append(eligible, n)
		}
		if len(eligible) == 0 {
			break
		}

		nodes := make([]split.Node, len(eligible))
		for i, n := range eligible {
			rng := make([]split.Range, nPred)
			for p := range rng {
				rng[p] = n.rng
			}
			nodes[i] = split.Node{ID: i, Range: rng, SCount: n.sCount, Sum: n.sum, CtgSum: n.ctgSum, Safe: n.safe}
		}

		results, safeUpdates, err := split.Level(nodes, b, st, samp, cfg)
		if err != nil {
			return nil, Bag{}, err
		}

		var next []liveNode
		for i, n := range eligible {
			res := results[i]
			if res.Pred < 0 {
				finalizeLeaf(tr, resp, n)
				continue
			}

			rhSCount := n.sCount - res.LHSampCt
			if params.MinRatio > 0 && ratio(res.LHSampCt, rhSCount) < params.MinRatio {
				finalizeLeaf(tr, resp, n)
				continue
			}

			tr.PredInfo[res.Pred] += res.Info

			decIdx := n.nodeIdx
			node := Node{
				PredIdx:  uint32(res.Pred),
				IsFactor: res.IsFactor,
				SplitVal: res.SplitVal,
			}

			if res.IsFactor {
				card := b.FacCard(res.Pred)
				bits := factorBits(b, st, res.Pred, res.LHRuns, card)
				node.FacOff = uint32(len(tr.FacSplit))
				tr.FacSplit = append(tr.FacSplit, bits...)
			}

			var leftRankSum, rightRankSum float64
			if resp.YRank != nil {
				leftRankSum = rankSum(st, res.Pred, res.LHRuns, resp.YRank, samp.SCount)
				rightRankSum = n.rankSum - leftRankSum
			}

			lhRange, rhRange := applySplit(st, nPred, n.rng, res)

			leftSum, rightSum := res.LHSum, n.sum-res.LHSum
			var leftCtg, rightCtg []float64
			if resp.isClassification() {
				leftCtg = res.LHCtgSum
				rightCtg = make([]float64, resp.CtgWidth)
				for c := range rightCtg {
					rightCtg[c] = n.ctgSum[c] - leftCtg[c]
				}
			}

			childSafe := mergeSafe(n.safe, safeUpdates[i], b.NPredFac())

			leftIdx, err := allocNode(tr, params.Budget)
			if err != nil {
				return nil, Bag{}, err
			}
			rightIdx, err := allocNode(tr, params.Budget)
			if err != nil {
				return nil, Bag{}, err
			}
			node.Left = uint32(leftIdx)
			node.Right = uint32(rightIdx)
			tr.Nodes[decIdx] = node

			left := liveNode{
				id: nextID, nodeIdx: leftIdx, depth: depth + 1,
				rng: lhRange, sCount: res.LHSampCt, sum: leftSum, rankSum: leftRankSum, ctgSum: leftCtg, safe: childSafe,
			}
			nextID++
			right := liveNode{
				id: nextID, nodeIdx: rightIdx, depth: depth + 1,
				rng: rhRange, sCount: rhSCount, sum: rightSum, rankSum: rightRankSum, ctgSum: rightCtg, safe: childSafe,
			}
			nextID++

			next = append(next, left, right)
		}

		frontier = next
		depth++
	}

	return tr, bag, nil
}

// rootNode computes the whole-tree aggregate totals over the in-bag rows,
// seeding split.Node's SCount/Sum/CtgSum at level 0.
func rootNode(resp Response, bag Bag, nRow int) (liveNode, error) {
	var sCount int
	var sum, rSum float64
	var ctg []float64
	if resp.isClassification() {
		ctg = make([]float64, resp.CtgWidth)
	}
	for row := 0; row < nRow; row++ {
		sc := int(bag.SCount[row])
		if sc == 0 {
			continue
		}
		sCount += sc
		if resp.isClassification() {
			ctg[resp.Ctg[row]] += float64(sc)
		} else {
			sum += resp.Y[row] * float64(sc)
			if resp.YRank != nil {
				rSum += float64(resp.YRank[row]) * float64(sc)
			}
		}
	}
	if sCount == 0 {
		return liveNode{}, errors.Wrap(errors.ErrArity, "tree.Grow: empty in-bag sample")
	}
	return liveNode{id: 0, rng: split.Range{Start: 0, End: nRow}, sCount: sCount, sum: sum, rankSum: rSum, ctgSum: ctg}, nil
}

// rankSum totals resp.YRank over the rows named by lhRuns (stage positions
// on predictor pred, still valid before applySplit mutates them), weighted
// by each row's sample count, mirroring how split's own LHSum is weighted.
func rankSum(st *stage, pred int, lhRuns []split.Range, yRank []uint32, sCount []uint32) float64 {
	rows := st.Rows(pred)
	var total float64
	for _, rng := range lhRuns {
		for i := rng.Start; i < rng.End; i++ {
			row := rows[i]
			if sc := sCount[row]; sc > 0 {
				total += float64(yRank[row]) * float64(sc)
			}
		}
	}
	return total
}

// factorBits reads the winning factor predictor's raw codes directly off
// block.Handle for every row in res.LHRuns (still valid stage positions;
// called before applySplit mutates them) and packs them into the
// forest's card-bit-wide LH bitset. No separate rank-to-code table is
// needed: Factor is already row-indexed.
func factorBits(b block.Handle, st *stage, pred int, lhRuns []split.Range, card uint32) []uint32 {
	nWords := (int(card) + 31) / 32
	bits := make([]uint32, nWords)
	rows := st.Rows(pred)
	fac := b.Factor(b.BlockIdx(pred))
	for _, rng := range lhRuns {
		for i := rng.Start; i < rng.End; i++ {
			code := fac[rows[i]]
			bits[code/32] |= 1 << (code % 32)
		}
	}
	return bits
}

// applySplit stable-partitions every predictor's stage order over rng
// into an LH prefix (rows named by res.LHRuns on the winning predictor)
// and an RH suffix, preserving relative order within each side. A stable
// partition of an already rank-sorted range is itself rank-sorted within
// each side, so no predictor needs re-sorting.
func applySplit(st *stage, nPred int, rng split.Range, res split.Result) (split.Range, split.Range) {
	lhRows := make(map[uint32]struct{}, res.LHIdxCount)
	winRows := st.Rows(res.Pred)
	for _, r := range res.LHRuns {
		for i := r.Start; i < r.End; i++ {
			lhRows[winRows[i]] = struct{}{}
		}
	}

	lhRowBuf := make([]uint32, 0, res.LHIdxCount)
	lhRankBuf := make([]uint32, 0, res.LHIdxCount)
	rhLen := rng.Len() - res.LHIdxCount
	rhRowBuf := make([]uint32, 0, rhLen)
	rhRankBuf := make([]uint32, 0, rhLen)

	for p := 0; p < nPred; p++ {
		lhRowBuf = lhRowBuf[:0]
		lhRankBuf = lhRankBuf[:0]
		rhRowBuf = rhRowBuf[:0]
		rhRankBuf = rhRankBuf[:0]

		rows := st.rows[p]
		rnk := st.ranks[p]
		for i := rng.Start; i < rng.End; i++ {
			if _, ok := lhRows[rows[i]]; ok {
				lhRowBuf = append(lhRowBuf, rows[i])
				lhRankBuf = append(lhRankBuf, rnk[i])
			} else {
				rhRowBuf = append(rhRowBuf, rows[i])
				rhRankBuf = append(rhRankBuf, rnk[i])
			}
		}
		copy(rows[rng.Start:], lhRowBuf)
		copy(rows[rng.Start+len(lhRowBuf):], rhRowBuf)
		copy(rnk[rng.Start:], lhRankBuf)
		copy(rnk[rng.Start+len(lhRankBuf):], rhRankBuf)
	}

	lh := split.Range{Start: rng.Start, End: rng.Start + res.LHIdxCount}
	rh := split.Range{Start: lh.End, End: rng.End}
	return lh, rh
}

// mergeSafe snapshots a node's per-factor-predictor SafeCount forward to
// its children, overlaying this level's observed updates (winner or not)
// onto the carried-forward base.
func mergeSafe(base []runset.SafeCount, updates []split.PredSafe, nPredFac int) []runset.SafeCount {
	if nPredFac == 0 {
		return nil
	}
	merged := make([]runset.SafeCount, nPredFac)
	copy(merged, base)
	for _, u := range updates {
		merged[u.Pred] = u.Safe
	}
	return merged
}

// finalizeLeaf writes one leaf's payload into the tree's dense leaf
// arrays. Classification's jittered Val (the "1 + val - ctg" contract)
// is the leaf's majority category plus half that category's share of
// the leaf — a deterministic, leaf-local fractional component used to
// break ties, not a random perturbation.
func finalizeLeaf(tr *Tree, resp Response, n liveNode) {
	leafIdx := uint32(len(tr.SCount))
	tr.Nodes[n.nodeIdx] = Node{Leaf: true, LeafIdx: leafIdx}
	tr.SCount = append(tr.SCount, uint32(n.sCount))
	if resp.isClassification() {
		tr.Sum = append(tr.Sum, 0)
		w := make([]float64, resp.CtgWidth)
		copy(w, n.ctgSum)
		tr.Weight = append(tr.Weight, w...)

		ctg := 0
		for c := 1; c < len(w); c++ {
			if w[c] > w[ctg] {
				ctg = c
			}
		}
		frac := 0.5 * w[ctg] / float64(n.sCount)
		tr.Val = append(tr.Val, float64(ctg)+frac)
	} else {
		tr.Sum = append(tr.Sum, n.sum)
		if resp.YRank != nil {
			tr.Rank = append(tr.Rank, uint32(math.Round(n.rankSum/float64(n.sCount))))
		}
	}
}

func allocNode(tr *Tree, budget int) (int, error) {
	if budget > 0 && len(tr.Nodes) >= budget {
		return 0, errors.Wrapf(errors.ErrBudgetExceeded, "tree.Grow: node count exceeded budget %d", budget)
	}
	tr.Nodes = append(tr.Nodes, Node{})
	return len(tr.Nodes) - 1, nil
}

func ratio(lh, rh int) float64 {
	if lh < rh {
		return float64(lh) / float64(rh)
	}
	return float64(rh) / float64(lh)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
