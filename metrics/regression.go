package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// residualsOf checks that yTrue and yPred are non-empty and aligned and
// returns yTrue - yPred.
func residualsOf(op string, yTrue, yPred *mat.VecDense) ([]float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	r := vecData(yTrue)
	floats.Sub(r, vecData(yPred))
	return r, nil
}

// MSE returns the mean squared error.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residualsOf("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Dot(r, r) / float64(len(r)), nil
}

// RMSE returns the root mean squared error.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	return math.Sqrt(mse), err
}

// MAE returns the mean absolute error.
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residualsOf("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(r, 1) / float64(len(r)), nil
}

// R2Score returns the coefficient of determination. When yTrue is
// constant the score is 1 for a perfect prediction and 0 otherwise.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residualsOf("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	y := vecData(yTrue)
	mean := stat.Mean(y, nil)
	var tss float64
	for _, v := range y {
		tss += (v - mean) * (v - mean)
	}
	rss := floats.Dot(r, r)
	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// ExplainedVarianceScore returns 1 - Var(yTrue - yPred) / Var(yTrue).
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	r, err := residualsOf("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if len(r) < 2 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "need at least two samples")
	}
	varY := stat.Variance(vecData(yTrue), nil)
	if varY == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	return 1 - stat.Variance(r, nil)/varY, nil
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
