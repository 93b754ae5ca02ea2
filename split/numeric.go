package split

import (
	"github.com/arboretum-ml/ranger/block"
)

// splitNumeric walks predictor p's rank order restricted to n.Range[p],
// maintaining a running left (sCount, sum) or (sCount, ctgSum) and
// testing a cut at every rank boundary (ties kept together), tracking
// the argmax. MinNode on either side discards the cut.
func splitNumeric(n Node, p int, b block.Handle, ranks Ranks, samp Sample, cfg Params) (Result, bool) {
	rng := n.Range[p]
	if rng.Len() < 2*maxInt(cfg.MinNode, 1) {
		return Result{}, false
	}

	rows := ranks.Rows(p)
	rnk := ranks.Ranks(p)

	ctgWidth := cfg.CtgWidth
	lCtg := make([]float64, ctgWidth)
	rCtg := make([]float64, ctgWidth)
	if ctgWidth > 0 {
		copy(rCtg, n.CtgSum)
	}

	lSCount, lSum := 0, 0.0
	rSCount, rSum := n.SCount, n.Sum

	best := Result{NodeID: n.ID, Pred: -1}
	monoSign := int8(0)
	if p < len(cfg.RegMono) {
		monoSign = cfg.RegMono[p]
	}

	pos := rng.Start
	for pos < rng.End {
		runEnd := pos
		for runEnd < rng.End && rnk[runEnd] == rnk[pos] {
			runEnd++
		}
		for i := pos; i < runEnd; i++ {
			row := rows[i]
			sc := int(samp.SCount[row])
			if sc == 0 {
				continue
			}
			lSCount += sc
			rSCount -= sc
			if ctgWidth > 0 {
				ctg := samp.Ctg[row]
				lCtg[ctg] += float64(sc)
				rCtg[ctg] -= float64(sc)
			} else {
				v := samp.Y[row] * float64(sc)
				lSum += v
				rSum -= v
			}
		}

		cutPos := runEnd - 1
		haveRH := cutPos+1 < rng.End
		if haveRH && lSCount >= cfg.MinNode && rSCount >= cfg.MinNode {
			var info float64
			if ctgWidth > 0 {
				info = infoCtg(lSCount, lCtg, rSCount, rCtg)
			} else {
				info = infoReg(lSCount, lSum, rSCount, rSum)
				if monoSign != 0 && violatesMonotone(monoSign, lSCount, lSum, rSCount, rSum) {
					info = 0
				}
			}
			if info > best.Info {
				best = Result{
					NodeID:     n.ID,
					Pred:       p,
					IsFactor:   false,
					CutPos:     cutPos,
					SplitVal:   b.Numeric(p)[rows[cutPos]],
					LHRuns:     []Range{{Start: rng.Start, End: cutPos + 1}},
					LHIdxCount: cutPos - rng.Start + 1,
					LHSampCt:   lSCount,
					LHSum:      lSum,
					LHCtgSum:   append([]float64(nil), lCtg...),
					Info:       info,
				}
			}
		}
		pos = runEnd
	}

	return best, best.found()
}

func violatesMonotone(sign int8, lSCount int, lSum float64, rSCount int, rSum float64) bool {
	lMean := lSum / float64(lSCount)
	rMean := rSum / float64(rSCount)
	diff := rMean - lMean
	if sign > 0 {
		return diff < 0
	}
	return diff > 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
