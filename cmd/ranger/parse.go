package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/arboretum-ml/ranger/errors"
)

// parsedInput is one CSV file's target/feature columns: column 0 is the
// response, the rest are numeric predictors.
type parsedInput struct {
	isRegression bool
	X            [][]float64
	YClf         []string  // nil once isRegression is decided true
	YReg         []float64 // nil once isRegression is decided false
	VarNames     []string
}

// parseCSV reads column 0 as the response and the rest as numeric
// predictors, detecting regression vs. classification by whether column 0
// parses as a float in every row, unless forceClf pins it to
// classification.
func parseCSV(r io.Reader, forceClf bool) (*parsedInput, error) {
	reader := csv.NewReader(r)
	p := &parsedInput{isRegression: !forceClf}

	row, err := reader.Read()
	if err != nil {
		return nil, err
	}

	if varNames, herr := parseHeader(row); herr == nil {
		p.VarNames = varNames
	} else {
		for i := range row[1:] {
			p.VarNames = append(p.VarNames, fmt.Sprintf("X%d", i+1))
		}
		if err := p.ParseRow(row); err != nil {
			return nil, err
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := p.ParseRow(row); err != nil {
			return nil, err
		}
	}

	if p.isRegression {
		p.YClf = nil
	} else {
		p.YReg = nil
	}

	return p, nil
}

func (p *parsedInput) ParseRow(row []string) error {
	xi, err := parseFeatureVals(row)
	if err != nil {
		return err
	}
	p.X = append(p.X, xi)

	if p.isRegression {
		yi, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			p.isRegression = false
		}
		p.YReg = append(p.YReg, yi)
	}
	p.YClf = append(p.YClf, row[0])

	return nil
}

func parseFeatureVals(row []string) ([]float64, error) {
	if len(row) < 2 {
		return nil, errors.Wrap(errors.ErrArity, "parseCSV: row has no feature columns")
	}
	xi := make([]float64, 0, len(row)-1)
	for _, val := range row[1:] {
		fv, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, err
		}
		xi = append(xi, fv)
	}
	return xi, nil
}

// parseHeader returns an error (treat as a data row) the moment any column
// after the first parses as a float, since this format only carries
// numeric predictors.
func parseHeader(row []string) ([]string, error) {
	if len(row) < 2 {
		return nil, errors.Wrap(errors.ErrArity, "parseCSV: header row has no feature columns")
	}
	colNames := make([]string, 0, len(row)-1)
	for _, val := range row[1:] {
		if _, err := strconv.ParseFloat(val, 64); err == nil {
			return nil, errors.New("parseCSV: not a header row")
		}
		colNames = append(colNames, val)
	}
	return colNames, nil
}
