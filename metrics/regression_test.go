package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestRegressionMetrics(t *testing.T) {
	type metric func(yTrue, yPred *mat.VecDense) (float64, error)
	funcs := map[string]metric{
		"mse":  MSE,
		"rmse": RMSE,
		"mae":  MAE,
		"r2":   R2Score,
	}

	tests := []struct {
		name  string
		yTrue *mat.VecDense
		yPred *mat.VecDense
		want  map[string]float64
	}{
		{
			name:  "perfect prediction",
			yTrue: vec(1, 2, 3, 4, 5),
			yPred: vec(1, 2, 3, 4, 5),
			want:  map[string]float64{"mse": 0, "rmse": 0, "mae": 0, "r2": 1},
		},
		{
			name:  "symmetric half errors",
			yTrue: vec(1, 2, 3, 4),
			yPred: vec(1.5, 2.5, 2.5, 3.5),
			// tss = 5, rss = 1
			want: map[string]float64{"mse": 0.25, "rmse": 0.5, "mae": 0.5, "r2": 0.8},
		},
		{
			name:  "mixed errors",
			yTrue: vec(10, 20, 30),
			yPred: vec(12, 18, 33),
			// tss = 200, rss = 17
			want: map[string]float64{"mse": 17.0 / 3, "rmse": math.Sqrt(17.0 / 3), "mae": 7.0 / 3, "r2": 1 - 17.0/200},
		},
		{
			name:  "constant target, imperfect prediction",
			yTrue: vec(2, 2, 2),
			yPred: vec(1, 2, 3),
			want:  map[string]float64{"mse": 2.0 / 3, "rmse": math.Sqrt(2.0 / 3), "mae": 2.0 / 3, "r2": 0},
		},
		{
			name:  "predicting the mean",
			yTrue: vec(1, 2, 3),
			yPred: vec(2, 2, 2),
			want:  map[string]float64{"mse": 2.0 / 3, "rmse": math.Sqrt(2.0 / 3), "mae": 2.0 / 3, "r2": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, fn := range funcs {
				got, err := fn(tt.yTrue, tt.yPred)
				require.NoError(t, err, name)
				assert.InDelta(t, tt.want[name], got, 1e-10, name)
			}
		})
	}
}

func TestRegressionMetrics_InvalidInput(t *testing.T) {
	for name, fn := range map[string]func(a, b *mat.VecDense) (float64, error){
		"mse":                MSE,
		"rmse":               RMSE,
		"mae":                MAE,
		"r2":                 R2Score,
		"explained_variance": ExplainedVarianceScore,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fn(vec(1, 2, 3), vec(1, 2))
			var dimErr *errors.DimensionError
			require.True(t, errors.As(err, &dimErr))
			assert.Equal(t, 3, dimErr.Expected)
			assert.Equal(t, 2, dimErr.Got)

			_, err = fn(&mat.VecDense{}, &mat.VecDense{})
			var valErr *errors.ValueError
			assert.True(t, errors.As(err, &valErr))
		})
	}
}

func TestExplainedVarianceScore(t *testing.T) {
	// A constant offset is not penalized.
	got, err := ExplainedVarianceScore(vec(1, 2, 3, 4), vec(2, 3, 4, 5))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	got, err = ExplainedVarianceScore(vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5))
	require.NoError(t, err)
	// residuals -0.5,-0.5,0.5,0.5 have variance 1/3 against 5/3.
	assert.InDelta(t, 0.8, got, 1e-12)

	_, err = ExplainedVarianceScore(vec(2, 2, 2), vec(1, 2, 3))
	assert.Error(t, err)
}
