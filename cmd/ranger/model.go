package main

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/arboretum-ml/ranger/block"
	"github.com/arboretum-ml/ranger/forest"
	"github.com/arboretum-ml/ranger/predict"
	"github.com/arboretum-ml/ranger/rank"
	"github.com/arboretum-ml/ranger/tree"
)

// modelOptions carries the CLI's exposed training knobs through to
// tree.Params/forest.TrainConfig.
type modelOptions struct {
	nTree       int
	minLeaf     int
	maxFeatures int
	nWorkers    int
}

// Model bundles one fitted forest.Forest with enough bookkeeping
// (category labels, predictor names, OOB metrics computed at fit time) to
// report on and apply it later.
type Model struct {
	IsRegression bool
	Forest       *forest.Forest
	Classes      []string
	VarNames     []string

	OOBConfusion [][]uint32
	OOBError     []float64
	OOBMSE       float64
	OOBRSquared  float64

	fitTime time.Duration
	opt     modelOptions
	nSample int
}

// Fit trains a forest on d, then scores the training block out-of-bag
// (masking each row's own in-bag trees via forest.Forest.InBag) to report
// a confusion matrix or mean squared error without a held-out set.
func (m *Model) Fit(d *parsedInput, opt modelOptions) error {
	start := time.Now()

	nRow := len(d.X)
	nPred := len(d.VarNames)
	feNum := make([][]float64, nPred)
	for p := 0; p < nPred; p++ {
		feNum[p] = make([]float64, nRow)
		for row, xi := range d.X {
			feNum[p][row] = xi[p]
		}
	}

	b, err := block.NewTrain(feNum, nil, nil, nRow)
	if err != nil {
		return err
	}

	ranks, err := rank.Compute(d.X, nPred)
	if err != nil {
		return err
	}

	params := tree.NewParams(tree.MinNode(opt.minLeaf))
	if opt.maxFeatures > 0 {
		params.PredFixed = opt.maxFeatures
	}

	var resp tree.Response
	var ctg []uint32
	if d.isRegression {
		resp = tree.Response{Y: d.YReg}
	} else {
		var classes []string
		ctg, classes = encodeLabels(d.YClf)
		m.Classes = classes
		params.CtgWidth = len(classes)
		resp = tree.Response{Ctg: ctg, CtgWidth: len(classes)}
	}

	cfg := forest.NewTrainConfig(forest.NumTrees(opt.nTree), forest.NumWorkers(opt.nWorkers))
	f, err := forest.Train(b, ranks, resp, cfg, params)
	if err != nil {
		return err
	}

	m.Forest = f
	m.IsRegression = d.isRegression
	m.VarNames = d.VarNames
	m.nSample = nRow
	m.opt = opt
	m.fitTime = time.Since(start)

	if d.isRegression {
		oob, err := predict.Regression(f, b, predict.RegressionConfig{Bag: f.InBag})
		if err == nil {
			m.OOBMSE, m.OOBRSquared = regressionMetrics(oob.YPred, d.YReg)
		}
	} else {
		oob, err := predict.Classification(f, b, predict.ClassificationConfig{Bag: f.InBag, YTest: ctg})
		if err == nil {
			m.OOBConfusion = oob.Confusion
			m.OOBError = oob.Error
		}
	}

	return nil
}

func encodeLabels(y []string) ([]uint32, []string) {
	ids := make(map[string]uint32)
	var classes []string
	ctg := make([]uint32, len(y))
	for i, v := range y {
		id, ok := ids[v]
		if !ok {
			id = uint32(len(classes))
			ids[v] = id
			classes = append(classes, v)
		}
		ctg[i] = id
	}
	return ctg, classes
}

// regressionMetrics reports mean squared error and R-squared over rows
// with a defined (non-NaN) prediction, skipping rows every tree was
// masked for (see predict.Regression's NaN convention).
func regressionMetrics(pred, actual []float64) (mse, rSquared float64) {
	var mean float64
	for _, y := range actual {
		mean += y
	}
	mean /= float64(len(actual))

	var sse, sst, n float64
	for i, p := range pred {
		if math.IsNaN(p) {
			continue
		}
		d := actual[i] - p
		sse += d * d
		sst += (actual[i] - mean) * (actual[i] - mean)
		n++
	}
	if n > 0 {
		mse = sse / n
	}
	if sst > 0 {
		rSquared = 1 - sse/sst
	}
	return mse, rSquared
}

// Predict scores d against the fitted forest, returning each row's
// prediction rendered back to the response's original representation
// (a formatted float for regression, the category label for
// classification).
func (m *Model) Predict(d *parsedInput) ([]string, error) {
	nRow := len(d.X)
	nPred := len(m.VarNames)
	feNumT := make([][]float64, nPred)
	for p := 0; p < nPred; p++ {
		feNumT[p] = make([]float64, nRow)
		for row, xi := range d.X {
			feNumT[p][row] = xi[p]
		}
	}

	b, err := block.NewPredict(feNumT, nil, nil, nRow)
	if err != nil {
		return nil, err
	}

	pStr := make([]string, nRow)
	if m.IsRegression {
		res, err := predict.Regression(m.Forest, b, predict.RegressionConfig{})
		if err != nil {
			return nil, err
		}
		for i, v := range res.YPred {
			pStr[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	} else {
		res, err := predict.Classification(m.Forest, b, predict.ClassificationConfig{})
		if err != nil {
			return nil, err
		}
		for i, id := range res.YPred {
			pStr[i] = m.Classes[id]
		}
	}

	return pStr, nil
}

func (m *Model) Report(w io.Writer) {
	fmt.Fprintf(w, "Fit %d trees using %d examples in %.2f seconds\n", m.opt.nTree, m.nSample, m.fitTime.Seconds())
	fmt.Fprintf(w, "\n")

	m.ReportVarImp(w, 20)

	if m.IsRegression {
		fmt.Fprintf(w, "OOB Mean Squared Error: %.3f\n", m.OOBMSE)
		fmt.Fprintf(w, "OOB R-Squared: %.2f%%\n", 100*m.OOBRSquared)
	} else {
		m.reportConfusion(w)
	}
}

func (m *Model) reportConfusion(w io.Writer) {
	fmt.Fprintf(w, "OOB Confusion Matrix\n")
	fmt.Fprintf(w, "--------------------\n")

	fmt.Fprintf(w, "%-14s ", "")
	for _, class := range m.Classes {
		fmt.Fprintf(w, "%-14s ", class)
	}
	fmt.Fprintf(w, "\n")

	for actualID, class := range m.Classes {
		fmt.Fprintf(w, "%-14s ", class)
		for predID := range m.Classes {
			fmt.Fprintf(w, "%-14d ", m.OOBConfusion[actualID][predID])
		}
		fmt.Fprintf(w, "\n")
	}
	fmt.Fprintf(w, "\n")

	for ctg, class := range m.Classes {
		fmt.Fprintf(w, "%-14s error: %.2f%%\n", class, 100*m.OOBError[ctg])
	}
}

func (m *Model) VarImp() []float64 {
	return m.Forest.PredInfo
}

func (m *Model) SaveVarImp(w io.Writer) error {
	writer := csv.NewWriter(w)

	for i, score := range m.VarImp() {
		err := writer.Write([]string{m.VarNames[i], strconv.FormatFloat(score, 'f', -1, 64)})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return nil
}

func (m *Model) ReportVarImp(w io.Writer, maxVars int) {
	fmt.Fprintf(w, "Variable Importance\n")
	fmt.Fprintf(w, "-------------------\n")

	varImp := append([]float64(nil), m.VarImp()...)
	varNames := append([]string(nil), m.VarNames...)
	sortByImportance(varImp, varNames)

	if maxVars > len(varImp) {
		maxVars = len(varImp)
	}

	for i, imp := range varImp[:maxVars] {
		fmt.Fprintf(w, "%-15s: %-10.2f\n", varNames[i], imp)
	}

	fmt.Fprintf(w, "\n")
}

// modelMeta is Model's wire shape, minus Forest: forest.Forest owns its
// own gob encoding (Save/Load) since its *bitset.Matrix field isn't
// directly gob-encodable.
type modelMeta struct {
	IsRegression bool
	Classes      []string
	VarNames     []string
	OOBConfusion [][]uint32
	OOBError     []float64
	OOBMSE       float64
	OOBRSquared  float64
	FitTime      time.Duration
	Opt          modelOptions
	NSample      int
}

func (m *Model) Load(r io.Reader) error {
	var meta modelMeta
	if err := gob.NewDecoder(r).Decode(&meta); err != nil {
		return err
	}
	m.IsRegression = meta.IsRegression
	m.Classes = meta.Classes
	m.VarNames = meta.VarNames
	m.OOBConfusion = meta.OOBConfusion
	m.OOBError = meta.OOBError
	m.OOBMSE = meta.OOBMSE
	m.OOBRSquared = meta.OOBRSquared
	m.fitTime = meta.FitTime
	m.opt = meta.Opt
	m.nSample = meta.NSample

	f, err := forest.Load(r)
	if err != nil {
		return err
	}
	m.Forest = f
	return nil
}

func (m *Model) Save(w io.Writer) error {
	meta := modelMeta{
		IsRegression: m.IsRegression,
		Classes:      m.Classes,
		VarNames:     m.VarNames,
		OOBConfusion: m.OOBConfusion,
		OOBError:     m.OOBError,
		OOBMSE:       m.OOBMSE,
		OOBRSquared:  m.OOBRSquared,
		FitTime:      m.fitTime,
		Opt:          m.opt,
		NSample:      m.nSample,
	}
	if err := gob.NewEncoder(w).Encode(meta); err != nil {
		return err
	}
	return m.Forest.Save(w)
}

type varImpSort struct {
	varName []string
	imp     []float64
}

func (v varImpSort) Len() int           { return len(v.imp) }
func (v varImpSort) Less(i, j int) bool { return v.imp[i] < v.imp[j] }
func (v varImpSort) Swap(i, j int) {
	v.imp[i], v.imp[j] = v.imp[j], v.imp[i]
	v.varName[i], v.varName[j] = v.varName[j], v.varName[i]
}

func sortByImportance(imp []float64, names []string) {
	sort.Sort(sort.Reverse(varImpSort{imp: imp, varName: names}))
}
