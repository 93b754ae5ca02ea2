// Package runset implements the per-(node, factor-predictor) run
// accumulator: contiguous runs of rows sharing a factor level, a
// category-sum checkerboard for classification, and the heap-ordered
// LH/RH partition machinery. Each RunSet is an index-bounded view into a
// shared Arena rather than a self-owned, pointer-linked structure.
package runset

import (
	"math/rand"

	rheap "github.com/arboretum-ml/ranger/heap"

	"github.com/arboretum-ml/ranger/errors"
)

// MaxWidth caps the number of factor levels considered exhaustively for a
// multi-class split; wider factors are subsampled without replacement via
// DeWide.
const MaxWidth = 10

// FRNode is a contiguous run: a block of rows sharing a factor level (or,
// before collapsing, a single rank), with its aggregated sample count and
// response sum.
type FRNode struct {
	Start, End uint32
	SCount     uint32
	Sum        float64
	Rank       uint32
}

// SafeCount is the conservative per-(node, predictor) run-length upper
// bound carried into a level's Arena; it comes from the previous level's
// actual RunCount, or from a factor predictor's cardinality on its first
// level.
type SafeCount struct {
	Count     int
	Singleton bool // sticky once true: RunCount stayed 1 some level
}

// Arena is three flat, typed vectors shared by every RunSet active during
// one level, plus the classification checkerboard and the wide-multiclass
// uniform draws. NewArena sizes it once at construction; there is no
// clear or reuse step.
type Arena struct {
	Runs   []FRNode
	Heap   []rheap.Pair
	Out    []int
	CtgSum []float64 // (Σ safeCount) x ctgWidth, classification only
	RVWide []float64 // wide multi-class only

	ctgWidth int
	sets     []*RunSet
}

// RunMode selects which arena-sizing rule a level's NewArena call applies.
type RunMode int

const (
	// ModeRegression: every RunSet gets a heap.
	ModeRegression RunMode = iota
	// ModeBinary: ctgWidth == 2, every RunSet gets a heap.
	ModeBinary
	// ModeMultiClass: ctgWidth > 2; only RunSets wider than MaxWidth use
	// the heap, for random subsampling via DeWide.
	ModeMultiClass
)

// NewArena allocates the three shared vectors (and, for classification,
// the checkerboard and wide-multiclass draws) sized from a conservative
// per-pair safeCount vector.
func NewArena(safe []SafeCount, mode RunMode, ctgWidth int, rnd *rand.Rand) *Arena {
	a := &Arena{ctgWidth: ctgWidth, sets: make([]*RunSet, len(safe))}
	if len(safe) == 0 {
		return a
	}

	runOff, heapOff, outOff := 0, 0, 0
	runOffs := make([]int, len(safe))
	heapOffs := make([]int, len(safe))
	outOffs := make([]int, len(safe))
	heapLens := make([]int, len(safe))
	outLens := make([]int, len(safe))

	for i, s := range safe {
		runOffs[i] = runOff
		var heapRuns, outRuns int
		switch mode {
		case ModeRegression, ModeBinary:
			heapRuns = s.Count
			outRuns = s.Count
		case ModeMultiClass:
			if s.Count > MaxWidth {
				heapRuns = s.Count
				outRuns = MaxWidth
			} else {
				heapRuns = 0
				outRuns = s.Count
			}
		}
		heapOffs[i] = heapOff
		outOffs[i] = outOff
		heapLens[i] = heapRuns
		outLens[i] = outRuns

		runOff += s.Count
		heapOff += heapRuns
		outOff += outRuns
	}

	totalRuns := runOff
	a.Runs = make([]FRNode, totalRuns)
	a.Heap = make([]rheap.Pair, heapOff)
	a.Out = make([]int, outOff)

	if ctgWidth > 0 {
		a.CtgSum = make([]float64, totalRuns*ctgWidth)
	}
	if mode == ModeMultiClass && heapOff > 0 {
		a.RVWide = make([]float64, heapOff)
		for i := range a.RVWide {
			a.RVWide[i] = rnd.Float64()
		}
	}

	for i := range safe {
		a.sets[i] = &RunSet{
			arena:     a,
			runOff:    runOffs[i],
			heapOff:   heapOffs[i],
			outOff:    outOffs[i],
			heapLen:   heapLens[i],
			outLen:    outLens[i],
			safeCount: safe[i].Count,
		}
	}

	return a
}

// Set returns the i-th RunSet view into the arena.
func (a *Arena) Set(i int) *RunSet { return a.sets[i] }

// Len reports how many RunSets this arena holds.
func (a *Arena) Len() int { return len(a.sets) }

// RunSet is a per-(node, factor-predictor) view into an Arena: an offset
// triple plus the live run count, never a cached pointer.
type RunSet struct {
	arena *Arena

	runOff, heapOff, outOff int
	heapLen, outLen         int
	safeCount               int

	runCount int
	runsLH   int
}

// RunCount returns how many runs have actually been written this level.
func (r *RunSet) RunCount() int { return r.runCount }

// SafeCount returns the conservative upper bound this view was sized for.
func (r *RunSet) SafeCount() int { return r.safeCount }

// RunsLH returns, after a partition call, how many out-slots belong to LH.
func (r *RunSet) RunsLH() int { return r.runsLH }

// EffCount returns the count of runs actually usable for subset
// enumeration: RunCount after any DeWide collapse.
func (r *RunSet) EffCount() int { return r.runCount }

func (r *RunSet) run(slot int) *FRNode { return &r.arena.Runs[r.runOff+slot] }

func (r *RunSet) ctgRow(slot int) []float64 {
	w := r.arena.ctgWidth
	base := (r.runOff + slot) * w
	return r.arena.CtgSum[base : base+w]
}

// Accumulate appends a run, and for classification folds ctgSum[ctg] into
// the run's per-category strip. Panics with an ErrInternal-wrapped error
// if called more times than the view's safeCount allows; nothing in the
// module recovers that panic.
func (r *RunSet) Accumulate(run FRNode, ctgSum []float64) {
	if r.runCount >= r.safeCount {
		panic(errors.Wrapf(errors.ErrInternal, "runset: accumulate exceeds safeCount %d", r.safeCount))
	}
	slot := r.runCount
	*r.run(slot) = run
	if ctgSum != nil {
		copy(r.ctgRow(slot), ctgSum)
	}
	r.runCount++
}

// SumCtg returns the accumulated response sum for category ctg in slot.
func (r *RunSet) SumCtg(slot, ctg int) float64 {
	return r.ctgRow(slot)[ctg]
}

// RunInfo returns slot's row-index count, sample count, and response sum,
// for callers that aggregate an explicit subset of slots (small-factor
// enumeration) rather than relying on DePop's heap order.
func (r *RunSet) RunInfo(slot int) (idxCount, sCount int, sum float64) {
	run := r.run(slot)
	return int(run.End - run.Start), int(run.SCount), run.Sum
}

// Out returns the slot written at out-position i by the most recent DePop,
// following the out vector's indirection without consuming it via LHSlots.
func (r *RunSet) Out(i int) int { return r.outSlice()[i] }

func (r *RunSet) heapSlice() []rheap.Pair {
	return r.arena.Heap[r.heapOff : r.heapOff+r.heapLen]
}

func (r *RunSet) outSlice() []int {
	return r.arena.Out[r.outOff : r.outOff+r.outLen]
}

// HeapMean primes the heap keyed by slot mean response (regression).
func (r *RunSet) HeapMean() {
	h := r.heapSlice()
	for slot := 0; slot < r.runCount; slot++ {
		run := r.run(slot)
		rheap.Insert(h, slot, run.Sum/float64(run.SCount))
	}
}

// HeapBinary primes the heap keyed by category-1 concentration (binary
// classification): ordering by class-1 probability is equivalent to
// ordering by class-1 concentration, since weighting by priors does not
// affect order.
func (r *RunSet) HeapBinary() {
	h := r.heapSlice()
	for slot := 0; slot < r.runCount; slot++ {
		run := r.run(slot)
		rheap.Insert(h, slot, r.SumCtg(slot, 1)/run.Sum)
	}
}

// HeapRandom primes the heap with uniform draws, for wide multi-class
// sampling without replacement.
func (r *RunSet) HeapRandom() {
	h := r.heapSlice()
	rv := r.arena.RVWide[r.heapOff : r.heapOff+r.heapLen]
	for slot := 0; slot < r.runCount; slot++ {
		rheap.Insert(h, slot, rv[slot])
	}
}

// DePop depopulates the heap, writing the pop smallest-keyed slots into the
// out vector in ascending-key order. pop == 0 means "pop RunCount". Panics
// if pop > RunCount.
func (r *RunSet) DePop(pop int) {
	if pop == 0 {
		pop = r.runCount
	}
	if pop > r.runCount {
		panic(errors.Wrapf(errors.ErrInternal, "runset: DePop(%d) exceeds runCount %d", pop, r.runCount))
	}
	rheap.Depopulate(r.heapSlice(), r.outSlice(), r.runCount, pop)
}

// DeWide collapses a wide run set down to MaxWidth runs selected without
// replacement, compacting both the run list and the category-sum strip
// into the first MaxWidth slots, and returns the post-shrink count. If
// RunCount is already <= MaxWidth this is the identity.
func (r *RunSet) DeWide() int {
	if r.runCount <= MaxWidth {
		return r.runCount
	}

	r.HeapRandom()
	r.DePop(MaxWidth)
	out := r.outSlice()[:MaxWidth]

	tempRun := make([]FRNode, MaxWidth)
	w := r.arena.ctgWidth
	var tempSum []float64
	if w > 0 {
		tempSum = make([]float64, MaxWidth*w)
	}

	for i := 0; i < MaxWidth; i++ {
		slot := out[i]
		tempRun[i] = *r.run(slot)
		if w > 0 {
			copy(tempSum[i*w:(i+1)*w], r.ctgRow(slot))
		}
	}
	for i := 0; i < MaxWidth; i++ {
		*r.run(i) = tempRun[i]
		if w > 0 {
			copy(r.ctgRow(i), tempSum[i*w:(i+1)*w])
		}
	}

	r.runCount = MaxWidth
	return r.runCount
}

// lhCounts returns a run's (index count, sample count) pair, where index
// count is the run's row span (End - Start).
func (r *RunSet) lhCounts(slot int) (idxCount, sCount int) {
	run := r.run(slot)
	return int(run.End - run.Start), int(run.SCount)
}

// LHBits decodes a bit vector of slot indices (bit k set means slot k goes
// to LH) and accumulates the LH index/sample counts, used when the split
// enumerates subsets explicitly (small factors).
func (r *RunSet) LHBits(lhBits uint32) (lhIdxCount, lhSampCt int) {
	slotSup := r.EffCount() - 1
	r.runsLH = 0
	out := r.outSlice()

	for slot := 0; slot < slotSup; slot++ {
		if lhBits&(1<<uint(slot)) != 0 {
			idxCt, sCt := r.lhCounts(slot)
			lhIdxCount += idxCt
			lhSampCt += sCt
			out[r.runsLH] = slot
			r.runsLH++
		}
	}
	return lhIdxCount, lhSampCt
}

// LHSlots dereferences the first cut+1 entries of the (already sorted)
// out vector and accumulates the LH index/sample counts, used after a
// heap-ordered monotonic cut search.
func (r *RunSet) LHSlots(cut int) (lhIdxCount, lhSampCt int) {
	out := r.outSlice()
	for outSlot := 0; outSlot <= cut; outSlot++ {
		idxCt, sCt := r.lhCounts(out[outSlot])
		lhIdxCount += idxCt
		lhSampCt += sCt
	}
	r.runsLH = cut + 1
	return lhIdxCount, lhSampCt
}

// Bounds dereferences the outSlot-th chosen run (through the out vector's
// indirection) for the restage driver, returning its rank interval and
// rank.
func (r *RunSet) Bounds(outSlot int) (start, end, rank uint32) {
	slot := r.outSlice()[outSlot]
	run := r.run(slot)
	return run.Start, run.End, run.Rank
}
