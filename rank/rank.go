// Package rank implements RowRank: for each numeric predictor, a
// rank-ordered permutation of row indices and its inverse, computed once
// per PreFormat and reused across retrainings. Sorting uses a specialized
// quicksort/heapsort/insertion-sort hybrid rather than sort.Sort, since
// this path sorts every numeric predictor's full column and avoids the
// interface-call overhead of sort.Interface.
package rank

import (
	"encoding/gob"
	"io"

	"github.com/arboretum-ml/ranger/errors"
)

// RowRank holds, for each numeric predictor, the row order sorted by value
// and the inverse permutation (row -> rank). Ties are assigned equal rank
// and keep their input relative order (stable, dense ranking).
type RowRank struct {
	nRow int
	nPred int
	// rows[p] is a permutation of [0,nRow) sorted by predictor p's value.
	rows [][]uint32
	// ranks[p][i] is the dense rank of rows[p][i]; ties share a rank.
	ranks [][]uint32
	// inv[p][row] is the rank assigned to row under predictor p.
	inv [][]uint32
}

// Compute derives RowRank for each column of numeric (row-major,
// numeric[row] gives that row's predictor values). Fails with ErrArity
// when there are no rows.
func Compute(numeric [][]float64, nPred int) (*RowRank, error) {
	nRow := len(numeric)
	if nRow == 0 {
		return nil, errors.Wrap(errors.ErrArity, "rank.Compute: zero rows")
	}

	r := &RowRank{
		nRow:  nRow,
		nPred: nPred,
		rows:  make([][]uint32, nPred),
		ranks: make([][]uint32, nPred),
		inv:   make([][]uint32, nPred),
	}

	xBuf := make([]float64, nRow)

	for p := 0; p < nPred; p++ {
		rows := make([]uint32, nRow)
		for i := 0; i < nRow; i++ {
			xBuf[i] = numeric[i][p]
			rows[i] = uint32(i)
		}
		bySortedValue(xBuf, rows)

		ranks := make([]uint32, nRow)
		inv := make([]uint32, nRow)

		rank := uint32(0)
		for i := 0; i < nRow; i++ {
			if i > 0 && xBuf[i] > xBuf[i-1] {
				rank++
			}
			ranks[i] = rank
			inv[rows[i]] = rank
		}

		r.rows[p] = rows
		r.ranks[p] = ranks
		r.inv[p] = inv
	}

	return r, nil
}

// NRow returns the row count RowRank was computed for.
func (r *RowRank) NRow() int { return r.nRow }

// Rows returns predictor p's row order, sorted by value ascending.
func (r *RowRank) Rows(p int) []uint32 { return r.rows[p] }

// Ranks returns the dense rank parallel to Rows(p) (ties share a rank).
func (r *RowRank) Ranks(p int) []uint32 { return r.ranks[p] }

// Inverse returns, for predictor p, row -> rank.
func (r *RowRank) Inverse(p int) []uint32 { return r.inv[p] }

type gobRowRank struct {
	NRow  int
	NPred int
	Rows  [][]uint32
	Ranks [][]uint32
	Inv   [][]uint32
}

// Encode serializes the RowRank so a session can skip recomputing it on a
// warm-start retrain.
func (r *RowRank) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(gobRowRank{
		NRow: r.nRow, NPred: r.nPred, Rows: r.rows, Ranks: r.ranks, Inv: r.inv,
	})
}

// Decode deserializes a RowRank previously written by Encode.
func Decode(r io.Reader) (*RowRank, error) {
	var g gobRowRank
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, errors.Wrap(err, "rank.Decode")
	}
	return &RowRank{nRow: g.NRow, nPred: g.NPred, rows: g.Rows, ranks: g.Ranks, inv: g.Inv}, nil
}
