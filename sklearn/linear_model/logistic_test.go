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

func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRTol(1e-4))
	require.NoError(t, lr.Fit(X, y))

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.Equal(t, y.At(i, 0), pred.At(i, 0), "sample %d", i)
	}

	XTest := mat.NewDense(2, 2, []float64{
		1.0, 1.0,
		3.0, 3.0,
	})
	testPred, err := lr.Predict(XTest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testPred.At(0, 0))
	assert.Equal(t, 1.0, testPred.At(1, 0))
	assert.Len(t, lr.Coef(), 1)
}

func TestLogisticRegression_PredictProba(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(500))
	require.NoError(t, lr.Fit(X, y))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	require.Equal(t, 4, rows)
	require.Equal(t, 2, cols)

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		assert.InDelta(t, 1.0, p0+p1, 1e-9)
		if pred.At(i, 0) == 0 {
			assert.Greater(t, p0, p1)
		} else {
			assert.Greater(t, p1, p0)
		}
	}
}

func TestLogisticRegression_Score(t *testing.T) {
	// class 1 when at least two features are set
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 0, 1,
		0, 1, 0,
		0, 1, 1,
		1, 0, 0,
		1, 0, 1,
		1, 1, 0,
		1, 1, 1,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 1, 0, 1, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10.0))
	require.NoError(t, lr.Fit(X, y))
	assert.GreaterOrEqual(t, lr.Score(X, y), 0.75)

	XSimple := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
	})
	ySimple := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	lr2 := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10.0))
	require.NoError(t, lr2.Fit(XSimple, ySimple))
	assert.Equal(t, 1.0, lr2.Score(XSimple, ySimple))
}

func TestLogisticRegression_Regularization(t *testing.T) {
	X := mat.NewDense(10, 5, []float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
		1, 1, 0, 0, 0,
		0, 1, 1, 0, 0,
		0, 0, 1, 1, 0,
		0, 0, 0, 1, 1,
		1, 0, 0, 0, 1,
	})
	y := mat.NewDense(10, 1, []float64{0, 0, 0, 1, 1, 0, 0, 1, 1, 1})

	strong := NewLogisticRegression(WithLRC(0.01), WithLRMaxIter(1000))
	require.NoError(t, strong.Fit(X, y))
	weak := NewLogisticRegression(WithLRC(100.0), WithLRMaxIter(1000))
	require.NoError(t, weak.Fit(X, y))

	norm := func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v * v
		}
		return math.Sqrt(s)
	}
	assert.Less(t, norm(strong.coef_[0]), norm(weak.coef_[0]))
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
		4, 4,
		4, 5,
		5, 4,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10.0))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 3, lr.nClasses_)
	assert.Len(t, lr.Coef(), 3)
	assert.GreaterOrEqual(t, lr.Score(X, y), 0.88)

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	require.Equal(t, 3, cols)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			p := proba.At(i, j)
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestLogisticRegression_NonContiguousClasses(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 5, 6})
	y := mat.NewDense(4, 1, []float64{3, 3, 8, 8})

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []float64{3, 8}, lr.Classes())

	pred, err := lr.Predict(mat.NewDense(1, 1, []float64{10}))
	require.NoError(t, err)
	assert.Equal(t, 8.0, pred.At(0, 0))
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
		4, 4,
		4, 5,
		5, 4,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRTol(1e-12))
	require.NoError(t, lr.Fit(X, y))
	w := lr.ConvergenceWarning()
	require.NotNil(t, w)
	assert.Equal(t, "LogisticRegression", w.Algorithm)

	converged := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, converged.Fit(X, y))
	assert.Nil(t, converged.ConvergenceWarning())
}

func TestLogisticRegression_SingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})

	err := NewLogisticRegression().Fit(X, y)
	var vErr *errors.ValueError
	assert.True(t, errors.As(err, &vErr))
}

func TestLogisticRegression_GetSetParams(t *testing.T) {
	lr := NewLogisticRegression()

	params := lr.GetParams()
	assert.Equal(t, 1.0, params["C"])
	assert.Equal(t, 100, params["max_iter"])
	assert.Equal(t, "lbfgs", params["solver"])

	require.NoError(t, lr.SetParams(map[string]interface{}{
		"C":        2.0,
		"max_iter": 200,
		"penalty":  "none",
		"tol":      1e-5,
	}))
	assert.Equal(t, 2.0, lr.C)
	assert.Equal(t, 200, lr.maxIter)
	assert.Equal(t, "none", lr.penalty)
	assert.Equal(t, 1e-5, lr.tol)

	assert.Error(t, lr.SetParams(map[string]interface{}{"penalty": "l1"}))
	assert.Error(t, lr.SetParams(map[string]interface{}{"max_iter": "many"}))
}

func TestLogisticRegression_NotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, err := lr.Predict(X)
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))

	_, err = lr.PredictProba(X)
	assert.Error(t, err)
}

func TestLogisticRegression_Gob(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(lr))
	restored := &LogisticRegression{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	want, err := lr.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
