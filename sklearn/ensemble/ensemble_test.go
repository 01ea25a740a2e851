package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// blobs returns n points per class around well separated centers; the
// third feature is noise.
func blobs(n, classes int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n*classes, 3, nil)
	y := mat.NewDense(n*classes, 1, nil)
	for c := 0; c < classes; c++ {
		for i := 0; i < n; i++ {
			r := c*n + i
			X.Set(r, 0, float64(c)*5+rng.NormFloat64()*0.5)
			X.Set(r, 1, float64(c)*-3+rng.NormFloat64()*0.5)
			X.Set(r, 2, rng.NormFloat64())
			y.Set(r, 0, float64(c))
		}
	}
	return X, y
}

func linearData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*10, rng.Float64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y.Set(i, 0, 3*a+1)
	}
	return X, y
}

func accuracy(t *testing.T, pred mat.Matrix, y mat.Matrix) float64 {
	t.Helper()
	n, _ := y.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

func r2(pred, y mat.Matrix) float64 {
	n, _ := y.Dims()
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += y.At(i, 0)
	}
	mean /= float64(n)
	ssRes, ssTot := 0.0, 0.0
	for i := 0; i < n; i++ {
		d := y.At(i, 0) - pred.At(i, 0)
		ssRes += d * d
		m := y.At(i, 0) - mean
		ssTot += m * m
	}
	return 1 - ssRes/ssTot
}

func sumsToOne(t *testing.T, v []float64) {
	t.Helper()
	s := 0.0
	for _, x := range v {
		assert.GreaterOrEqual(t, x, 0.0)
		s += x
	}
	assert.InDelta(t, 1.0, s, 1e-6)
}

func TestRandomForestClassifier(t *testing.T) {
	X, y := blobs(30, 3, 1)

	rf := NewRandomForestClassifier(WithNEstimators(20), WithRandomState(42))
	require.NoError(t, rf.Fit(X, y))
	assert.Equal(t, 20, rf.NTrees())
	assert.Equal(t, []float64{0, 1, 2}, rf.Classes())

	pred, err := rf.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, accuracy(t, pred, y), 0.95)

	proba, err := rf.PredictProba(X)
	require.NoError(t, err)
	_, k := proba.Dims()
	require.Equal(t, 3, k)
	sumsToOne(t, mat.Row(nil, 0, proba))

	imp, err := rf.FeatureImportances()
	require.NoError(t, err)
	sumsToOne(t, imp)
	assert.Less(t, imp[2], imp[0]+imp[1])
}

func TestRandomForestClassifier_Deterministic(t *testing.T) {
	X, y := blobs(20, 2, 3)

	a := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(7))
	b := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(7))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb))

	ia, _ := a.FeatureImportances()
	ib, _ := b.FeatureImportances()
	assert.Equal(t, ia, ib)
}

func TestRandomForestClassifier_Params(t *testing.T) {
	rf := NewRandomForestClassifier()
	p := rf.GetParams()
	assert.Equal(t, 100, p["n_estimators"])
	assert.Nil(t, p["max_depth"])
	assert.Equal(t, MaxFeaturesSqrt, p["max_features"])

	bad := NewRandomForestClassifier(WithNEstimators(0))
	X, y := blobs(5, 2, 1)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(bad.Fit(X, y), &vErr))
}

func TestRandomForestRegressor(t *testing.T) {
	X, y := linearData(120, 5)

	rf := NewRandomForestRegressor(WithNEstimators(25), WithRandomState(1))
	require.NoError(t, rf.Fit(X, y))

	pred, err := rf.Predict(X)
	require.NoError(t, err)
	assert.Greater(t, r2(pred, y), 0.95)

	imp, err := rf.FeatureImportances()
	require.NoError(t, err)
	sumsToOne(t, imp)
	assert.Greater(t, imp[0], imp[1])
}

func TestRandomForest_NotFitted(t *testing.T) {
	X := mat.NewDense(1, 2, []float64{1, 2})
	_, err := NewRandomForestClassifier().Predict(X)
	assert.Error(t, err)
	_, err = NewRandomForestRegressor().Predict(X)
	assert.Error(t, err)
	_, err = NewRandomForestRegressor().FeatureImportances()
	assert.Error(t, err)
}

func TestRandomForest_Gob(t *testing.T) {
	X, y := blobs(10, 2, 9)
	rf := NewRandomForestClassifier(WithNEstimators(5))
	require.NoError(t, rf.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(rf))
	restored := &RandomForestClassifier{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	want, err := rf.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
	assert.Equal(t, 5, restored.NEstimators)
}

func TestGradientBoostingRegressor(t *testing.T) {
	X, y := linearData(100, 11)

	gb := NewGradientBoostingRegressor(WithRandomState(3))
	require.NoError(t, gb.Fit(X, y))

	pred, err := gb.Predict(X)
	require.NoError(t, err)
	assert.Greater(t, r2(pred, y), 0.98)

	imp, err := gb.FeatureImportances()
	require.NoError(t, err)
	sumsToOne(t, imp)

	p := gb.GetParams()
	assert.Equal(t, 3, p["max_depth"])
	assert.Equal(t, 0.1, p["learning_rate"])
}

func TestGradientBoostingRegressor_ConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{7, 7, 7, 7})

	gb := NewGradientBoostingRegressor(WithNEstimators(5))
	require.NoError(t, gb.Fit(X, y))
	pred, err := gb.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 7.0, pred.At(i, 0), 1e-12)
	}
	imp, err := gb.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, imp)
}

func TestGradientBoostingClassifier_Binary(t *testing.T) {
	X, y := blobs(25, 2, 4)

	gb := NewGradientBoostingClassifier(WithNEstimators(30))
	require.NoError(t, gb.Fit(X, y))

	pred, err := gb.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, accuracy(t, pred, y), 0.98)

	raw, err := gb.DecisionFunction(X)
	require.NoError(t, err)
	_, c := raw.Dims()
	assert.Equal(t, 1, c)

	proba, err := gb.PredictProba(X)
	require.NoError(t, err)
	_, k := proba.Dims()
	require.Equal(t, 2, k)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-9)
	}
}

func TestGradientBoostingClassifier_Multiclass(t *testing.T) {
	X, y := blobs(20, 3, 8)

	gb := NewGradientBoostingClassifier(WithNEstimators(20))
	require.NoError(t, gb.Fit(X, y))

	pred, err := gb.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, accuracy(t, pred, y), 0.98)

	proba, err := gb.PredictProba(X)
	require.NoError(t, err)
	_, k := proba.Dims()
	require.Equal(t, 3, k)
	sumsToOne(t, mat.Row(nil, 10, proba))

	imp, err := gb.FeatureImportances()
	require.NoError(t, err)
	sumsToOne(t, imp)
}

func TestGradientBoostingClassifier_SingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})

	err := NewGradientBoostingClassifier().Fit(X, y)
	var vErr *errors.ValueError
	assert.True(t, errors.As(err, &vErr))
}

func TestGradientBoosting_Gob(t *testing.T) {
	X, y := blobs(10, 3, 2)
	gb := NewGradientBoostingClassifier(WithNEstimators(5))
	require.NoError(t, gb.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(gb))
	restored := &GradientBoostingClassifier{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	want, err := gb.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	Xr, yr := linearData(20, 1)
	gr := NewGradientBoostingRegressor(WithNEstimators(5))
	require.NoError(t, gr.Fit(Xr, yr))
	buf.Reset()
	require.NoError(t, gob.NewEncoder(&buf).Encode(gr))
	rr := &GradientBoostingRegressor{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(rr))
	a, _ := gr.Predict(Xr)
	b, err := rr.Predict(Xr)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12))
}

func TestSigmoidIsStable(t *testing.T) {
	assert.InDelta(t, 1.0, sigmoid(1000), 1e-12)
	assert.InDelta(t, 0.0, sigmoid(-1000), 1e-12)
	assert.False(t, math.IsNaN(sigmoid(-1e308)))
}
