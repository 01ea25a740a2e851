package linear_model

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

func TestLinearRegression_Noiseless(t *testing.T) {
	X := mat.NewDense(100, 1, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, 2*float64(i)+3)
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.Coef()[0], 1e-9)
	assert.InDelta(t, 3.0, lr.Intercept(), 1e-9)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.999)
}

func TestLinearRegression_MultipleFeatures(t *testing.T) {
	X := mat.NewDense(100, 3, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, math.Sin(float64(i)/10.0))
		X.Set(i, 1, math.Cos(float64(i)/10.0))
		X.Set(i, 2, float64(i)/50.0)
		y.Set(i, 0, 2*X.At(i, 0)+3*X.At(i, 1)-X.At(i, 2)+5)
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDeltaSlice(t, []float64{2, 3, -1}, lr.Coef(), 1e-8)
	assert.InDelta(t, 5.0, lr.Intercept(), 1e-8)
	assert.Equal(t, 3, lr.Rank())
}

func TestLinearRegression_RankDeficient(t *testing.T) {
	// two one-hot columns always sum to one, collinear with the intercept
	X := mat.NewDense(6, 3, []float64{
		1, 1, 0,
		2, 0, 1,
		3, 1, 0,
		4, 0, 1,
		5, 1, 0,
		6, 0, 1,
	})
	y := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		y.Set(i, 0, 4*X.At(i, 0)+2*X.At(i, 1)+1)
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 2, lr.Rank())

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1e-8)
	}
	coef := lr.Coef()
	assert.InDelta(t, -coef[1], coef[2], 1e-8)
}

func TestLinearRegression_ConstantFeature(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{2, 2, 2, 2})
	y := mat.NewDense(4, 1, []float64{1, 2, 3, 4})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 0.0, lr.Coef()[0])
	assert.InDelta(t, 2.5, lr.Intercept(), 1e-12)
}

func TestLinearRegression_NoIntercept(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{2, 4, 6})

	lr := NewLinearRegression(WithLRFitIntercept(false))
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.Coef()[0], 1e-12)
	assert.Equal(t, 0.0, lr.Intercept())
	assert.Equal(t, false, lr.GetParams()["fit_intercept"])
}

func TestLinearRegression_Errors(t *testing.T) {
	lr := NewLinearRegression()

	_, err := lr.Predict(mat.NewDense(1, 1, []float64{1}))
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))

	err = lr.Fit(mat.NewDense(2, 1, []float64{1, math.Inf(1)}), mat.NewDense(2, 1, []float64{1, 2}))
	assert.Error(t, err)

	err = lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(3, 1, []float64{1, 2, 3}))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	require.NoError(t, lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{1, 2})))
	_, err = lr.Predict(mat.NewDense(1, 2, []float64{1, 2}))
	assert.True(t, errors.As(err, &dimErr))

	assert.Error(t, lr.SetParams(map[string]interface{}{"normalize": true}))
}

func TestLinearRegression_GobReproducibility(t *testing.T) {
	X := mat.NewDense(50, 2, nil)
	y := mat.NewDense(50, 1, nil)
	for i := 0; i < 50; i++ {
		X.Set(i, 0, math.Sin(float64(i)))
		X.Set(i, 1, float64(i%7))
		y.Set(i, 0, X.At(i, 0)-0.5*X.At(i, 1)+float64(i%3)/10)
	}
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(lr))
	restored := &LinearRegression{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	assert.Equal(t, lr.Coef(), restored.Coef())
	assert.Equal(t, lr.Intercept(), restored.Intercept())

	a, err := lr.Predict(X)
	require.NoError(t, err)
	b, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}
