// Package tabtrain trains and evaluates classification and regression models
// on tabular data, with a scikit-learn-like model API on top of gonum.
//
// A run takes a frame and a declarative configuration and returns a
// structured ExperimentResult: test metrics, normalized feature importances
// and the hyperparameters actually used. Cleaning, transformation and
// per-column analysis are available as separate steps.
//
// # Installation
//
//	go get github.com/tabtrain/tabtrain
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//	    "os"
//
//	    "github.com/tabtrain/tabtrain/frame"
//	    "github.com/tabtrain/tabtrain/pipeline"
//	)
//
//	func main() {
//	    file, err := os.Open("iris.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer file.Close()
//
//	    f, err := frame.ReadCSV(file, "iris.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    cfg := pipeline.DefaultTrainConfig("species", pipeline.Classification)
//	    res, _, err := pipeline.RunExperiment(pipeline.Env{}, f, cfg, "iris")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(res.Metrics)
//	}
//
// # Packages
//
//   - frame: In-memory columnar table and CSV reading
//   - dataprep: Cleaning, transformation and analysis
//   - preprocessing: Scalers, encoders and the column transformer
//   - pipeline: Model registry, trainer, experiments and artifacts
//   - sklearn/...: Tree, ensemble, linear, SVM and nearest neighbor models
//   - model_selection: Train/test splitting
//   - metrics: Classification and regression metrics
//   - store: SQLite experiment store
//   - report: Feature importance and residual charts
//   - core/model: Estimator interfaces, fitted state and persistence
//   - core/parallel: Parallel processing utilities
//   - pkg/errors, pkg/log, pkg/validate: Errors, logging and config checks
//
// The tabtrain command (cmd/tabtrain) exposes the same operations on CSV
// files.
package tabtrain
