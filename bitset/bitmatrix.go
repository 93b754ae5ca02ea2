// Package bitset implements the packed bit matrix used as the per-tree
// in-bag mask. Bit (r, t) set means row r was drawn into tree t's bootstrap
// sample.
package bitset

// Matrix is a ceil(nRow/64) x nTree array of uint64 words, row-major over
// trees: word index = t*wordsPerRow + r/64.
type Matrix struct {
	words       []uint64
	nRow, nTree int
	wordsPerRow int
}

// New allocates a zeroed matrix for nRow rows and nTree trees.
func New(nRow, nTree int) *Matrix {
	wordsPerRow := (nRow + 63) / 64
	return &Matrix{
		words:       make([]uint64, wordsPerRow*nTree),
		nRow:        nRow,
		nTree:       nTree,
		wordsPerRow: wordsPerRow,
	}
}

// NewFromWords wraps a pre-existing packed word slice, as read back from a
// persisted model's in-bag array.
func NewFromWords(words []uint64, nRow, nTree int) *Matrix {
	return &Matrix{
		words:       words,
		nRow:        nRow,
		nTree:       nTree,
		wordsPerRow: (nRow + 63) / 64,
	}
}

// Words returns the underlying packed representation for persistence.
func (m *Matrix) Words() []uint64 { return m.words }

// NRow returns the row count the matrix was built for.
func (m *Matrix) NRow() int { return m.nRow }

// NTree returns the tree count the matrix was built for.
func (m *Matrix) NTree() int { return m.nTree }

// Get reports whether row r was in-bag for tree t.
func (m *Matrix) Get(r, t int) bool {
	idx := t*m.wordsPerRow + r/64
	bit := uint(r % 64)
	return m.words[idx]&(uint64(1)<<bit) != 0
}

// Set marks row r as in-bag for tree t. Callers serialize writes per (r, t);
// there is one writer per tree during training, so no internal lock guards
// this.
func (m *Matrix) Set(r, t int) {
	idx := t*m.wordsPerRow + r/64
	bit := uint(r % 64)
	m.words[idx] |= uint64(1) << bit
}
