// Package model defines the interfaces shared by every estimator and
// transformer, the fitted-state bookkeeping they embed, and gob based
// persistence helpers.
package model

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Fitter is a model that learns from training data.
type Fitter interface {
	// Fit trains the model on X (n_samples x n_features) and the column
	// vector y.
	Fit(X, y mat.Matrix) error
}

// Predictor is a model that predicts one value per input row.
type Predictor interface {
	// Predict returns an n_samples x 1 matrix of predictions.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator is a supervised model.
type Estimator interface {
	Fitter
	Predictor
}

// Classifier is an estimator over class codes that can report class
// membership probabilities.
type Classifier interface {
	Estimator

	// PredictProba returns an n_samples x n_classes matrix whose columns
	// follow Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class codes seen during Fit.
	Classes() []float64
}

// FeatureImportancer is implemented by models that expose impurity based
// feature importances, one per input column, summing to 1.
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// ParameterGetter exposes a model's hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ConvergenceReporter is implemented by iterative models that can stop at
// their iteration limit. A nil warning means the model converged.
type ConvergenceReporter interface {
	ConvergenceWarning() *errors.ConvergenceWarning
}

// Transformer learns a column-wise transformation.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ValidateFitInput checks the shapes and values every estimator requires in
// Fit: a non-empty X, a column vector y with one row per sample, and only
// finite values.
func ValidateFitInput(op string, X, y mat.Matrix) (nSamples, nFeatures int, err error) {
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return 0, 0, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if err := errors.CheckMatrix(op, X); err != nil {
		return 0, 0, err
	}
	if err := errors.CheckMatrix(op, y); err != nil {
		return 0, 0, err
	}
	return nSamples, nFeatures, nil
}

// ValidatePredictInput checks that X has the number of features seen during
// Fit.
func ValidatePredictInput(op string, X mat.Matrix, nFeatures int) error {
	r, c := X.Dims()
	if r == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if c != nFeatures {
		return errors.NewDimensionError(op, nFeatures, c, 1)
	}
	return nil
}

// UniqueSorted returns the distinct values of the column vector y in
// ascending order.
func UniqueSorted(y mat.Matrix) []float64 {
	rows, _ := y.Dims()
	seen := make(map[float64]struct{}, 8)
	out := make([]float64, 0, 8)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
