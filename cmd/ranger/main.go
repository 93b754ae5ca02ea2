// Command ranger fits or applies a random forest from a CSV file, column
// 0 as the response and the rest as numeric predictors. GNU-style
// double-dash flags via docker/mflag, optional CPU profiling via
// pkg/profile.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/pkg/profile"

	flag "github.com/docker/docker/pkg/mflag"
)

var (
	dataFile    = flag.String([]string{"d", "-data"}, "", "example data")
	predictFile = flag.String([]string{"p", "-predictions"}, "", "file to output predictions")
	modelFile   = flag.String([]string{"f", "-final_model"}, "rf.model", "file to output fitted model")
	impFile     = flag.String([]string{"-var_importance"}, "", "file to output variable importance estimates")

	nTree       = flag.Int([]string{"-trees"}, 10, "number of trees")
	minLeaf     = flag.Int([]string{"-min_leaf"}, 1, "minimum number of samples in newly created leaves")
	maxFeatures = flag.Int([]string{"-max_features"}, -1, "number of predictors sampled per split, -1 considers all")

	forceClf = flag.Bool([]string{"c", "-classification"}, false, "force parser to treat column 0 as a category label")

	nWorkers   = flag.Int([]string{"-workers"}, 1, "number of workers for growing trees")
	runProfile = flag.Bool([]string{"-profile"}, false, "cpu profile")
)

func main() {
	flag.Parse()

	if *nWorkers > 1 {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	if *runProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	if *dataFile == "" {
		fmt.Fprintf(os.Stderr, "Usage of ranger:\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(*dataFile)
	if err != nil {
		fatal("error opening data file", err.Error())
	}
	defer f.Close()

	d, err := parseCSV(f, *forceClf)
	if err != nil {
		fatal("error parsing input data", err.Error())
	}

	// a non-blank predictFile means apply an existing model; fit otherwise.
	if *predictFile != "" {
		m, err := loadModel(*modelFile)
		if err != nil {
			fatal("error opening model file", err.Error())
		}

		pred, err := m.Predict(d)
		if err != nil {
			fatal(err.Error())
		}

		o, err := os.Create(*predictFile)
		if err != nil {
			fatal("error creating", *predictFile, err.Error())
		}
		defer o.Close()

		if err := writePred(o, pred); err != nil {
			fatal("error writing predictions", err.Error())
		}
		return
	}

	opt := modelOptions{
		nTree:       *nTree,
		minLeaf:     *minLeaf,
		maxFeatures: *maxFeatures,
		nWorkers:    *nWorkers,
	}

	m := new(Model)
	if err := m.Fit(d, opt); err != nil {
		fatal("error fitting model", err.Error())
	}

	o, err := os.Create(*modelFile)
	if err != nil {
		fatal("error saving model", err.Error())
	}
	defer o.Close()

	if err := m.Save(o); err != nil {
		fatal("error saving model", err.Error())
	}

	if *impFile != "" {
		vf, err := os.Create(*impFile)
		if err != nil {
			fatal("error saving variable importance", err.Error())
		}
		defer vf.Close()
		if err := m.SaveVarImp(vf); err != nil {
			fatal("error saving variable importance", err.Error())
		}
	}

	m.Report(os.Stderr)
}

func loadModel(fName string) (*Model, error) {
	f, err := os.Open(fName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := new(Model)
	err = m.Load(f)
	return m, err
}

func fatal(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(1)
}

func writePred(w io.Writer, prediction []string) error {
	wtr := bufio.NewWriter(w)

	for _, pred := range prediction {
		if _, err := wtr.WriteString(pred); err != nil {
			return err
		}
		if err := wtr.WriteByte('\n'); err != nil {
			return err
		}
	}

	return wtr.Flush()
}
