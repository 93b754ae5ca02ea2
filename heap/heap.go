// Package heap implements the array-backed binary min-heap used to order
// factor-predictor runs by split key (mean response, category-1
// concentration, or a random draw). Insertion keeps the minimal key at
// the root; Depopulate repeatedly pops the root and refiles the bottom
// element, writing slots into the caller's output in ascending-key order.
package heap

// Pair is a (key, slot) entry. slot identifies the caller's run, key is the
// value runs are ordered by.
type Pair struct {
	Key  float64
	Slot int
}

// Insert appends slot/key at position idx and sifts it up while its parent's
// key is larger. Callers insert at increasing idx starting from 0; idx must
// equal the number of pairs already inserted (the heap's current size).
func Insert(pairs []Pair, idx int, key float64) {
	pairs[idx] = Pair{Key: key, Slot: idx}

	child := idx
	for {
		parent := (child - 1) / 2
		if child == 0 || !(pairs[parent].Key > key) {
			break
		}
		pairs[child] = pairs[parent]
		pairs[parent] = Pair{Key: key, Slot: idx}
		child = parent
	}
}

// Depopulate pops the pop smallest-keyed entries from a heap holding
// heapSize elements and writes their slots into out[0:pop] in ascending-key
// order. Ties are not guaranteed to break by insertion order. Callers must
// not request pop > heapSize.
func Depopulate(pairs []Pair, out []int, heapSize, pop int) {
	bot := heapSize - 1
	for i := 0; i < pop; i++ {
		out[i] = slotPop(pairs, bot)
		bot--
	}
}

// slotPop removes the root (minimal-key entry) from a heap whose last valid
// index is bot, refiling the root with the element at bot and sifting down.
func slotPop(pairs []Pair, bot int) int {
	ret := pairs[0].Slot
	if bot == 0 {
		return ret
	}

	idx := 0
	slotRefile := pairs[bot].Slot
	keyRefile := pairs[bot].Key
	pairs[0] = Pair{Key: keyRefile, Slot: slotRefile}

	for {
		left := 2*idx + 1
		right := 2*idx + 2
		child := -1
		if right <= bot && pairs[right].Key < keyRefile {
			child = right
		}
		if left <= bot && pairs[left].Key < keyRefile && (child == -1 || pairs[left].Key < pairs[right].Key) {
			child = left
		}
		if child == -1 {
			break
		}
		pairs[idx] = pairs[child]
		pairs[child] = Pair{Key: keyRefile, Slot: slotRefile}
		idx = child
	}

	return ret
}
