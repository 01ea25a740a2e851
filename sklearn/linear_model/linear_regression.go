package linear_model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// LinearRegression is ordinary least squares. Rank deficient designs, such
// as one-hot blocks next to an intercept, get the minimum norm solution.
type LinearRegression struct {
	state *model.StateManager

	fitIntercept bool

	coef_      []float64
	intercept_ float64
	rank_      int
}

// LinearRegressionOption configures a LinearRegression.
type LinearRegressionOption func(*LinearRegression)

// WithLRFitIntercept sets whether an intercept is learned.
func WithLRFitIntercept(fit bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// NewLinearRegression creates an OLS model that fits an intercept.
func NewLinearRegression(options ...LinearRegressionOption) *LinearRegression {
	lr := &LinearRegression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(lr)
	}
	return lr
}

// Fit solves the least squares problem on X and y.
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	rows, cols, err := model.ValidateFitInput("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}

	XWork := mat.DenseCopyOf(X)
	yWork := mat.NewVecDense(rows, mat.Col(nil, 0, y))

	xMean := make([]float64, cols)
	yMean := 0.0
	if lr.fitIntercept {
		for j := 0; j < cols; j++ {
			col := mat.Col(nil, j, XWork)
			xMean[j] = floats.Sum(col) / float64(rows)
			floats.AddConst(-xMean[j], col)
			XWork.SetCol(j, col)
		}
		yMean = floats.Sum(yWork.RawVector().Data) / float64(rows)
		floats.AddConst(-yMean, yWork.RawVector().Data)
	}

	var svd mat.SVD
	if ok := svd.Factorize(XWork, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "svd factorization failed", errors.ErrSingularMatrix)
	}
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(rows, cols))
	rank := svd.Rank(rcond)
	if rank == 0 {
		lr.coef_ = make([]float64, cols)
	} else {
		var coef mat.Dense
		svd.SolveTo(&coef, yWork, rank)
		lr.coef_ = mat.Col(nil, 0, &coef)
	}
	if err := errors.CheckVector("LinearRegression.Fit", lr.coef_, 0); err != nil {
		return err
	}

	lr.intercept_ = 0
	if lr.fitIntercept {
		lr.intercept_ = yMean - floats.Dot(xMean, lr.coef_)
	}
	lr.rank_ = rank

	lr.state.MarkFitted(cols, rows)
	return nil
}

// Predict returns X·coef + intercept.
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.CheckPredict("LinearRegression", "Predict", X); err != nil {
		return nil, err
	}

	rows, _ := X.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	predictions.Mul(X, mat.NewDense(len(lr.coef_), 1, lr.Coef()))
	for i := 0; i < rows; i++ {
		predictions.Set(i, 0, predictions.At(i, 0)+lr.intercept_)
	}
	return predictions, nil
}

// Score returns the coefficient of determination R² on X and y.
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	var yMean float64
	for i := 0; i < rows; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(rows)

	var ssTot, ssRes float64
	for i := 0; i < rows; i++ {
		yi := y.At(i, 0)
		pi := predictions.At(i, 0)
		ssTot += (yi - yMean) * (yi - yMean)
		ssRes += (yi - pi) * (yi - pi)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1.0 - ssRes/ssTot, nil
}

// Coef returns a copy of the learned coefficients.
func (lr *LinearRegression) Coef() []float64 {
	if lr.coef_ == nil {
		return nil
	}
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the learned intercept.
func (lr *LinearRegression) Intercept() float64 {
	return lr.intercept_
}

// Rank returns the effective rank of the centered design matrix.
func (lr *LinearRegression) Rank() int {
	return lr.rank_
}

// IsFitted returns whether the model has been fitted.
func (lr *LinearRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.fitIntercept,
	}
}

// SetParams sets the model's hyperparameters.
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "fit_intercept":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			lr.fitIntercept = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// String returns the string representation of the model.
func (lr *LinearRegression) String() string {
	if !lr.state.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.fitIntercept)
	}
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, rank=%d, fitted=true)",
		lr.fitIntercept, len(lr.coef_), lr.rank_)
}

type linearRegressionState struct {
	FitIntercept bool
	State        *model.StateManager
	Coef         []float64
	Intercept    float64
	Rank         int
}

// GobEncode implements gob.GobEncoder.
func (lr *LinearRegression) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(linearRegressionState{
		FitIntercept: lr.fitIntercept,
		State:        lr.state,
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Rank:         lr.rank_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (lr *LinearRegression) GobDecode(data []byte) error {
	var s linearRegressionState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	lr.fitIntercept = s.FitIntercept
	lr.state = s.State
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	lr.coef_, lr.intercept_, lr.rank_ = s.Coef, s.Intercept, s.Rank
	return nil
}
