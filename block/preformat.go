package block

import "github.com/arboretum-ml/ranger/errors"

// Signature records which global predictor columns were classified as
// factors at training time, and the ordered level names observed for
// each. It round-trips with the PreFormat artifact so a later predict
// session can detect a mismatch before scoring.
type Signature struct {
	// PredMap maps each predictor's position within its typed block
	// (numeric prefix, then factor suffix) back to its original column
	// index in the input frame.
	PredMap []int
	// Level holds, for each factor predictor, the ordered level names
	// observed during training.
	Level [][]string
}

// PreFormat is the persisted record of a design matrix's layout,
// independent of the numeric/factor values themselves, so retraining can
// skip re-deriving column roles and a predict-time factor frame can be
// remapped against the training levels.
type PreFormat struct {
	ColNames []string
	RowNames []string
	BlockNum int // nPredNum
	BlockFac int // nPredFac
	NPredFac int
	NRow     int
	FacCard  []uint32
	Sig      Signature
}

// Verify checks a predict-time Signature against the training Signature.
// A PredMap mismatch is fatal (ErrSignatureMismatch). A level-set mismatch
// per factor predictor is not fatal: levels present at predict time but
// unobserved during training are remapped to the proxy code
// trainLevels+1, and ErrLevelNotObserved is returned as a warning alongside
// the remapping so the caller can log it.
//
// remap[f] holds, for factor predictor f, one entry per predict-time level
// giving the retrained level's code (or the proxy code if unobserved).
func (pf *PreFormat) Verify(test Signature) (remap [][]uint32, warn error) {
	if len(test.PredMap) != len(pf.Sig.PredMap) {
		return nil, errors.Wrap(errors.ErrSignatureMismatch, "block.PreFormat.Verify: predictor count differs")
	}
	for i, p := range pf.Sig.PredMap {
		if test.PredMap[i] != p {
			return nil, errors.Wrap(errors.ErrSignatureMismatch, "block.PreFormat.Verify: predictor map differs")
		}
	}

	remap = make([][]uint32, len(pf.Sig.Level))
	for f, trainLevels := range pf.Sig.Level {
		testLevels := test.Level[f]
		trainIdx := make(map[string]uint32, len(trainLevels))
		for i, name := range trainLevels {
			trainIdx[name] = uint32(i)
		}

		proxy := uint32(len(trainLevels) + 1)
		r := make([]uint32, len(testLevels))
		for i, name := range testLevels {
			if code, ok := trainIdx[name]; ok {
				r[i] = code
			} else {
				r[i] = proxy
				warn = errors.Wrap(errors.ErrLevelNotObserved,
					"block.PreFormat.Verify: factor level not observed during training, using proxy")
			}
		}
		remap[f] = r
	}

	return remap, warn
}
