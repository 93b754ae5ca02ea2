package rank

// bySortedValue orders x ascending, carrying each value's originating row
// along in rows. rows holds dense row indices directly (not a generic
// []int index slice) since that is the type RowRank.rows stores; sorting
// in place against it avoids an extra int<->uint32 conversion pass over
// nRow entries for every predictor column.
//
// The hybrid itself — insertion sort below a small-range cutoff, a
// Bentley-McIlroy three-way quicksort partition above it, falling back to
// heapsort when recursion depth runs out — mirrors what the standard
// library's sort package does internally; this copy exists only to avoid
// the sort.Interface call overhead on each predictor column rank.Compute
// sorts.
func bySortedValue(x []float64, rows []uint32) {
	n := len(rows)
	maxDepth := 0
	for i := n; i > 0; i >>= 1 {
		maxDepth++
	}
	maxDepth *= 2
	quickSortRows(x, rows, 0, n, maxDepth)
}

func swapRows(x []float64, rows []uint32, i, j int) {
	x[i], x[j] = x[j], x[i]
	rows[i], rows[j] = rows[j], rows[i]
}

func insertionSortRows(x []float64, rows []uint32, lo, hi int) {
	for i := lo + 1; i < hi; i++ {
		for j := i; j > lo && x[j] < x[j-1]; j-- {
			swapRows(x, rows, j, j-1)
		}
	}
}

// sink restores the max-heap property on x[first+lo : first+hi), pushing
// the element at relative position lo down until both children are no
// larger than it.
func sink(x []float64, rows []uint32, lo, hi, first int) {
	root := lo
	for {
		child := 2*root + 1
		if child >= hi {
			return
		}
		if child+1 < hi && x[first+child] < x[first+child+1] {
			child++
		}
		if !(x[first+root] < x[first+child]) {
			return
		}
		swapRows(x, rows, first+root, first+child)
		root = child
	}
}

func heapSortRows(x []float64, rows []uint32, lo, hi int) {
	n := hi - lo
	for i := n/2 - 1; i >= 0; i-- {
		sink(x, rows, i, n, lo)
	}
	for i := n - 1; i >= 0; i-- {
		swapRows(x, rows, lo, lo+i)
		sink(x, rows, 0, i, lo)
	}
}

// medianOfThreeRows arranges x[a] <= x[b] <= x[c] by moving the median of
// the three into position b; partitionRows passes the slot that should
// receive the median as b when it builds its ninther pivot.
func medianOfThreeRows(x []float64, rows []uint32, a, b, c int) {
	if x[b] < x[a] {
		swapRows(x, rows, b, a)
	}
	if x[c] < x[b] {
		swapRows(x, rows, c, b)
	}
	if x[b] < x[a] {
		swapRows(x, rows, b, a)
	}
}

func swapBlockRows(x []float64, rows []uint32, a, b, n int) {
	for i := 0; i < n; i++ {
		swapRows(x, rows, a+i, b+i)
	}
}

// partitionRows is a Hoare three-way (Bentley-McIlroy) partition around a
// ninther-chosen pivot, returning the span of elements equal to the pivot
// so quickSortRows only needs to recurse into the two unequal sides.
func partitionRows(x []float64, rows []uint32, lo, hi int) (midlo, midhi int) {
	mid := lo + (hi-lo)/2
	if hi-lo > 40 {
		step := (hi - lo) / 8
		medianOfThreeRows(x, rows, lo+step, lo, lo+2*step)
		medianOfThreeRows(x, rows, mid-step, mid, mid+step)
		medianOfThreeRows(x, rows, hi-1-step, hi-1, hi-1-2*step)
	}
	medianOfThreeRows(x, rows, mid, lo, hi-1)

	pivot := x[lo]
	a, b, c, d := lo+1, lo+1, hi, hi
	for {
		for b < c {
			if x[b] < pivot {
				b++
			} else if pivot < x[b] {
				break
			} else {
				swapRows(x, rows, a, b)
				a++
				b++
			}
		}
		for b < c {
			if pivot < x[c-1] {
				c--
			} else if x[c-1] < pivot {
				break
			} else {
				swapRows(x, rows, c-1, d-1)
				c--
				d--
			}
		}
		if b >= c {
			break
		}
		swapRows(x, rows, b, c-1)
		b++
		c--
	}

	eqLo := minInt(b-a, a-lo)
	swapBlockRows(x, rows, lo, b-eqLo, eqLo)

	eqHi := minInt(hi-d, d-c)
	swapBlockRows(x, rows, c, hi-eqHi, eqHi)

	return lo + b - a, hi - (d - c)
}

func quickSortRows(x []float64, rows []uint32, lo, hi, maxDepth int) {
	for hi-lo > 7 {
		if maxDepth == 0 {
			heapSortRows(x, rows, lo, hi)
			return
		}
		maxDepth--
		midlo, midhi := partitionRows(x, rows, lo, hi)
		if midlo-lo < hi-midhi {
			quickSortRows(x, rows, lo, midlo, maxDepth)
			lo = midhi
		} else {
			quickSortRows(x, rows, midhi, hi, maxDepth)
			hi = midlo
		}
	}
	if hi-lo > 1 {
		insertionSortRows(x, rows, lo, hi)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
