// Package block implements PredBlock: the column-major numeric and
// factor-code matrices that back a training or prediction session, and the
// PreFormat artifact that lets a session skip re-deriving that layout on a
// warm-start retrain. A Handle is a value passed by reference to every
// operation that needs the block — there is no global install/deinstall;
// holding a *Handle live IS the installed state, and letting it go out
// of scope is the teardown.
package block

import (
	"github.com/arboretum-ml/ranger/errors"
)

// Handle is the query surface every split/predict operation uses to read
// the design matrix without knowing whether it is backed by a train-layout
// or predict-layout (transposed) block.
type Handle interface {
	NRow() int
	NPred() int
	NPredNum() int
	NPredFac() int
	IsFactor(pred int) bool
	// BlockIdx maps a global predictor index to its offset within its
	// typed column slice (numeric or factor).
	BlockIdx(pred int) int
	FacCard(pred int) uint32
	CardMax() uint32
	NumFirst() int
	FacFirst() int
	NumSup() int
	FacSup() int
	// Numeric returns the dense values of numeric predictor p, row-indexed.
	Numeric(p int) []float64
	// Factor returns the zero-based level codes of factor predictor p,
	// row-indexed. p is a block-local index (use BlockIdx first).
	Factor(p int) []uint32
}

type base struct {
	nRow     int
	nPredNum int
	nPredFac int
	facCard  []uint32
	cardMax  uint32
}

func (b *base) NRow() int     { return b.nRow }
func (b *base) NPred() int    { return b.nPredNum + b.nPredFac }
func (b *base) NPredNum() int { return b.nPredNum }
func (b *base) NPredFac() int { return b.nPredFac }
func (b *base) NumFirst() int { return 0 }
func (b *base) FacFirst() int { return b.nPredNum }
func (b *base) NumSup() int   { return b.nPredNum }
func (b *base) FacSup() int   { return b.nPredNum + b.nPredFac }

func (b *base) IsFactor(pred int) bool { return pred >= b.nPredNum }

func (b *base) BlockIdx(pred int) int {
	if pred >= b.nPredNum {
		return pred - b.nPredNum
	}
	return pred
}

func (b *base) FacCard(pred int) uint32 {
	return b.facCard[b.BlockIdx(pred)]
}

func (b *base) CardMax() uint32 { return b.cardMax }

// Train is the design-matrix layout used during training: dense numeric
// columns and factor-code columns, one []float64/[]uint32 per predictor.
type Train struct {
	base
	numeric []float64 // column-major: predictor p occupies [p*nRow : (p+1)*nRow]
	factor  []uint32
}

// NewTrain builds a training Handle from column-major numeric values and
// factor level codes. feNum has nPredNum columns of length nRow each;
// feFac has nPredFac columns of length nRow each; feCard gives each factor
// predictor's cardinality.
func NewTrain(feNum [][]float64, feFac [][]uint32, feCard []uint32, nRow int) (*Train, error) {
	if nRow == 0 {
		return nil, errors.Wrap(errors.ErrArity, "block.NewTrain: zero rows")
	}
	nPredNum := len(feNum)
	nPredFac := len(feFac)
	if nPredNum+nPredFac == 0 {
		return nil, errors.Wrap(errors.ErrArity, "block.NewTrain: zero predictors")
	}

	numeric := make([]float64, nPredNum*nRow)
	for p, col := range feNum {
		copy(numeric[p*nRow:(p+1)*nRow], col)
	}

	factor := make([]uint32, nPredFac*nRow)
	var cardMax uint32
	for p, col := range feFac {
		copy(factor[p*nRow:(p+1)*nRow], col)
		if feCard[p] > cardMax {
			cardMax = feCard[p]
		}
		for _, code := range col {
			if code >= feCard[p] {
				return nil, errors.Wrapf(errors.ErrInternal,
					"block.NewTrain: factor %d code %d >= cardinality %d", p, code, feCard[p])
			}
		}
	}

	card := make([]uint32, nPredFac)
	copy(card, feCard)

	return &Train{
		base: base{
			nRow:     nRow,
			nPredNum: nPredNum,
			nPredFac: nPredFac,
			facCard:  card,
			cardMax:  cardMax,
		},
		numeric: numeric,
		factor:  factor,
	}, nil
}

func (t *Train) Numeric(p int) []float64 {
	return t.numeric[p*t.nRow : (p+1)*t.nRow]
}

func (t *Train) Factor(p int) []uint32 {
	return t.factor[p*t.nRow : (p+1)*t.nRow]
}

// Predict is the transposed design-matrix layout used during prediction
// (feNumT, feFacT). Transposition lets the prediction driver walk one
// predictor's values for a block of rows contiguously.
type Predict struct {
	base
	numericT []float64
	factorT  []uint32
}

// NewPredict builds a prediction Handle from transposed numeric and factor
// blocks: feNumT has nPredNum rows of nRow values each, feFacT likewise.
func NewPredict(feNumT [][]float64, feFacT [][]uint32, feCard []uint32, nRow int) (*Predict, error) {
	if nRow == 0 {
		return nil, errors.Wrap(errors.ErrArity, "block.NewPredict: zero rows")
	}
	nPredNum := len(feNumT)
	nPredFac := len(feFacT)

	numeric := make([]float64, nPredNum*nRow)
	for p, row := range feNumT {
		copy(numeric[p*nRow:(p+1)*nRow], row)
	}
	factor := make([]uint32, nPredFac*nRow)
	var cardMax uint32
	for p, row := range feFacT {
		copy(factor[p*nRow:(p+1)*nRow], row)
		if feCard[p] > cardMax {
			cardMax = feCard[p]
		}
	}
	card := make([]uint32, nPredFac)
	copy(card, feCard)

	return &Predict{
		base: base{
			nRow:     nRow,
			nPredNum: nPredNum,
			nPredFac: nPredFac,
			facCard:  card,
			cardMax:  cardMax,
		},
		numericT: numeric,
		factorT:  factor,
	}, nil
}

func (p *Predict) Numeric(pred int) []float64 {
	return p.numericT[pred*p.nRow : (pred+1)*p.nRow]
}

func (p *Predict) Factor(pred int) []uint32 {
	return p.factorT[pred*p.nRow : (pred+1)*p.nRow]
}
