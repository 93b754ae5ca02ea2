package split

import (
	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/runset"
)

// splitFactor dispatches factor-predictor splitting three ways: small
// factors get exhaustive non-empty subset enumeration, binary
// classification and regression get a heap-ordered monotonic cut search,
// and wide multi-class factors get DeWide-sampled down to runset.MaxWidth
// before falling back to subset enumeration.
func splitFactor(n Node, p int, b block.Handle, ranks Ranks, samp Sample, cfg Params) (Result, bool, runset.SafeCount) {
	blockIdx := b.BlockIdx(p)
	card := b.FacCard(p)

	var safe runset.SafeCount
	if blockIdx < len(n.Safe) {
		safe = n.Safe[blockIdx]
	}
	if safe.Count == 0 {
		safe.Count = int(card)
	}
	if safe.Singleton {
		return Result{}, false, safe
	}

	mode := runset.ModeRegression
	if cfg.CtgWidth == 2 {
		mode = runset.ModeBinary
	} else if cfg.CtgWidth > 2 {
		mode = runset.ModeMultiClass
	}

	arena := runset.NewArena([]runset.SafeCount{safe}, mode, cfg.CtgWidth, cfg.Rnd)
	rs := arena.Set(0)

	buildRuns(rs, n, p, ranks, samp, cfg.CtgWidth)

	// The run count actually observed this level becomes next level's
	// safeCount ceiling; a lone run makes the pair a sticky singleton.
	newSafe := runset.SafeCount{
		Count:     rs.RunCount(),
		Singleton: rs.RunCount() <= 1,
	}

	if rs.RunCount() <= 1 {
		return Result{}, false, newSafe
	}

	small := int(card) <= cfg.SmallFactorCeiling
	wide := !small && cfg.CtgWidth > 2

	if wide {
		rs.DeWide()
		small = true
	}

	var res Result
	var ok bool
	if small {
		res, ok = enumerateSubsets(n, p, rs, cfg)
	} else {
		res, ok = heapCut(n, p, rs, cfg, mode)
	}
	return res, ok, newSafe
}

// buildRuns collapses n.Range[p]'s rank-ordered rows (factor codes carry
// the same rank-order structure as numeric values) into contiguous
// FRNode runs, one per distinct rank observed, folding per-category
// sums for classification.
func buildRuns(rs *runset.RunSet, n Node, p int, ranks Ranks, samp Sample, ctgWidth int) {
	rng := n.Range[p]
	rows := ranks.Rows(p)
	rnk := ranks.Ranks(p)

	ctgBuf := make([]float64, ctgWidth)

	pos := rng.Start
	for pos < rng.End {
		runEnd := pos
		var sCount uint32
		var sum float64
		for ctg := range ctgBuf {
			ctgBuf[ctg] = 0
		}
		for runEnd < rng.End && rnk[runEnd] == rnk[pos] {
			row := rows[runEnd]
			sc := samp.SCount[row]
			if sc > 0 {
				sCount += sc
				if ctgWidth > 0 {
					ctgBuf[samp.Ctg[row]] += float64(sc)
					sum += float64(sc)
				} else {
					sum += samp.Y[row] * float64(sc)
				}
			}
			runEnd++
		}
		rs.Accumulate(runset.FRNode{
			Start:  uint32(pos),
			End:    uint32(runEnd),
			SCount: sCount,
			Sum:    sum,
			Rank:   rnk[pos],
		}, nonZero(ctgWidth, ctgBuf))
		pos = runEnd
	}
}

func nonZero(width int, buf []float64) []float64 {
	if width == 0 {
		return nil
	}
	return buf
}

// enumerateSubsets scores every non-empty, non-full LH subset of a small
// run set (slot EffCount()-1 held fixed on RH) and returns the argmax.
func enumerateSubsets(n Node, p int, rs *runset.RunSet, cfg Params) (Result, bool) {
	eff := rs.EffCount()
	totCtg := make([]float64, cfg.CtgWidth)
	var totSum float64
	var totSCount int
	for slot := 0; slot < eff; slot++ {
		_, sc, sum := rs.RunInfo(slot)
		totSCount += sc
		totSum += sum
		for ctg := range totCtg {
			totCtg[ctg] += rs.SumCtg(slot, ctg)
		}
	}

	best := Result{NodeID: n.ID, Pred: p, IsFactor: true, FacWide: false}
	bestInfo := 0.0
	found := false
	var bestLSum float64
	var bestLCtg []float64

	masks := uint32(1) << uint(eff-1)
	for mask := uint32(1); mask < masks; mask++ {
		lSCount, lSum := 0, 0.0
		lCtg := make([]float64, cfg.CtgWidth)
		for slot := 0; slot < eff-1; slot++ {
			if mask&(1<<uint(slot)) == 0 {
				continue
			}
			_, sc, sum := rs.RunInfo(slot)
			lSCount += sc
			lSum += sum
			for ctg := range lCtg {
				lCtg[ctg] += rs.SumCtg(slot, ctg)
			}
		}
		rSCount := totSCount - lSCount
		if lSCount < cfg.MinNode || rSCount < cfg.MinNode {
			continue
		}

		var info float64
		if cfg.CtgWidth > 0 {
			rCtg := make([]float64, cfg.CtgWidth)
			for ctg := range rCtg {
				rCtg[ctg] = totCtg[ctg] - lCtg[ctg]
			}
			info = infoCtg(lSCount, lCtg, rSCount, rCtg)
		} else {
			info = infoReg(lSCount, lSum, rSCount, totSum-lSum)
		}

		if info > bestInfo {
			bestInfo = info
			best.FacMask = mask
			found = true
			bestLSum = lSum
			bestLCtg = lCtg
		}
	}

	if !found {
		return Result{}, false
	}

	lhIdx, lhSamp := rs.LHBits(best.FacMask)
	best.LHIdxCount = lhIdx
	best.LHSampCt = lhSamp
	best.LHSum = bestLSum
	best.LHCtgSum = bestLCtg
	best.Info = bestInfo
	best.LHRuns = lhRuns(rs)
	return best, true
}

// lhRuns dereferences the out vector LHBits/LHSlots just populated into
// the position ranges restage needs, via RunSet.Bounds.
func lhRuns(rs *runset.RunSet) []Range {
	runs := make([]Range, rs.RunsLH())
	for i := range runs {
		start, end, _ := rs.Bounds(i)
		runs[i] = Range{Start: int(start), End: int(end)}
	}
	return runs
}

// heapCut primes the heap by response (regression) or class-1
// concentration (binary classification), depopulates it in full, and
// walks the sorted cuts 0..RunCount-2 for the argmax monotonic
// partition.
func heapCut(n Node, p int, rs *runset.RunSet, cfg Params, mode runset.RunMode) (Result, bool) {
	if mode == runset.ModeBinary {
		rs.HeapBinary()
	} else {
		rs.HeapMean()
	}
	rs.DePop(0)

	eff := rs.EffCount()
	lSCount, lSum := 0, 0.0
	lCtg := make([]float64, cfg.CtgWidth)
	totCtg := make([]float64, cfg.CtgWidth)
	var totSum float64
	var totSCount int
	for i := 0; i < eff; i++ {
		_, sc, sum := rs.RunInfo(rs.Out(i))
		totSCount += sc
		totSum += sum
		for ctg := range totCtg {
			totCtg[ctg] += rs.SumCtg(rs.Out(i), ctg)
		}
	}

	best := Result{NodeID: n.ID, Pred: p, IsFactor: true, FacWide: true}
	bestInfo := 0.0
	found := false
	var bestLSum float64
	var bestLCtg []float64

	for cut := 0; cut < eff-1; cut++ {
		slot := rs.Out(cut)
		_, sc, sum := rs.RunInfo(slot)
		lSCount += sc
		lSum += sum
		for ctg := range lCtg {
			lCtg[ctg] += rs.SumCtg(slot, ctg)
		}
		rSCount := totSCount - lSCount
		if lSCount < cfg.MinNode || rSCount < cfg.MinNode {
			continue
		}

		var info float64
		if cfg.CtgWidth > 0 {
			rCtg := make([]float64, cfg.CtgWidth)
			for ctg := range rCtg {
				rCtg[ctg] = totCtg[ctg] - lCtg[ctg]
			}
			info = infoCtg(lSCount, lCtg, rSCount, rCtg)
		} else {
			info = infoReg(lSCount, lSum, rSCount, totSum-lSum)
		}

		if info > bestInfo {
			bestInfo = info
			best.FacCut = cut
			found = true
			bestLSum = lSum
			bestLCtg = append([]float64(nil), lCtg...)
		}
	}

	if !found {
		return Result{}, false
	}

	lhIdx, lhSamp := rs.LHSlots(best.FacCut)
	best.LHIdxCount = lhIdx
	best.LHSampCt = lhSamp
	best.LHSum = bestLSum
	best.LHCtgSum = bestLCtg
	best.Info = bestInfo
	best.LHRuns = lhRuns(rs)
	return best, true
}
