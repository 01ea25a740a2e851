package dataprep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

var nan = math.NaN()

func sample() *frame.Frame {
	return frame.MustNew(
		frame.NewNumeric("age", []float64{20, nan, 40, 30, nan}),
		frame.NewNumeric("score", []float64{1, 2, 3, 4, 100}),
		frame.NewCategorical("city", []string{"a", "b", "", "b", "a"}, []bool{false, false, true, false, false}),
	)
}

func cleaning(strategy string) DataCleaningConfig {
	cfg := DefaultCleaningConfig()
	cfg.MissingValueStrategy = strategy
	return cfg
}

func TestClean_NoMissingValuesIsIdentity(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("x", []float64{1, 2, 3}),
		frame.NewCategorical("c", []string{"p", "q", "p"}, nil),
	)
	for _, s := range []string{MissingMean, MissingMedian, MissingMode, MissingDrop, MissingFillZero} {
		t.Run(s, func(t *testing.T) {
			out, st, err := Clean(f, cleaning(s))
			require.NoError(t, err)
			assert.True(t, out.Equal(f))
			assert.Equal(t, 0, st.DroppedRows)
			assert.Equal(t, 3, st.RowsAfter)
		})
	}
}

func TestClean_Imputation(t *testing.T) {
	tests := []struct {
		strategy string
		age      float64
		city     string
		cityMiss bool
	}{
		{MissingMean, 30, "", true},
		{MissingMedian, 30, "", true},
		{MissingMode, 20, "a", false},
		{MissingFillZero, 0, UnknownCategory, false},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			in := sample()
			out, st, err := Clean(in, cleaning(tt.strategy))
			require.NoError(t, err)

			age, _ := out.Column("age")
			assert.Equal(t, tt.age, age.Float(1))
			assert.Equal(t, tt.age, age.Float(4))

			city, _ := out.Column("city")
			assert.Equal(t, tt.cityMiss, city.IsMissing(2))
			if !tt.cityMiss {
				assert.Equal(t, tt.city, city.Str(2))
			}
			assert.Equal(t, 3, st.MissingValuesBefore)
			assert.Equal(t, 5, st.RowsAfter)

			orig, _ := in.Column("age")
			assert.True(t, orig.IsMissing(1), "input frame must not change")
		})
	}
}

func TestClean_DropRemovesAllMissing(t *testing.T) {
	out, st, err := Clean(sample(), cleaning(MissingDrop))
	require.NoError(t, err)

	assert.Equal(t, 0, out.MissingCount())
	assert.LessOrEqual(t, st.RowsAfter, st.RowsBefore)
	assert.Equal(t, 2, st.RowsAfter)
	assert.Equal(t, 3, st.DroppedRows)
	assert.Equal(t, 0, st.MissingValuesAfter)
}

func TestClean_DropEverythingIsEmptyDataset(t *testing.T) {
	f := frame.MustNew(frame.NewNumeric("x", []float64{nan, nan}))
	_, _, err := Clean(f, cleaning(MissingDrop))
	var empty *errors.EmptyDatasetError
	assert.True(t, errors.As(err, &empty))
}

func TestClean_ModeFallbacks(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("x", []float64{nan, nan, nan, nan, nan}),
		frame.NewCategorical("c", make([]string, 5), []bool{true, true, true, true, true}),
		frame.NewNumeric("tie", []float64{3, 1, 3, 1, nan}),
	)
	out, _, err := Clean(f, cleaning(MissingMode))
	require.NoError(t, err)
	require.Equal(t, 5, out.NRows())

	x, _ := out.Column("x")
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, x.Floats())
	c, _ := out.Column("c")
	for _, v := range c.Strings() {
		assert.Equal(t, UnknownCategory, v)
	}
	assert.Zero(t, c.MissingCount())
	tie, _ := out.Column("tie")
	assert.Equal(t, []float64{3, 1, 3, 1, 1}, tie.Floats())
}

func TestClean_IQRClipsToOriginalBounds(t *testing.T) {
	in := sample()
	cfg := cleaning(MissingMean)
	cfg.HandleOutliers = true
	cfg.OutlierThreshold = 1.5

	out, _, err := Clean(in, cfg)
	require.NoError(t, err)

	orig, _ := in.Column("score")
	lo, hi, ok := IQRBounds(orig, 1.5)
	require.True(t, ok)
	score, _ := out.Column("score")
	for _, v := range score.Floats() {
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
	// Q1=2, Q3=4, IQR=2: 100 is clipped to 7.
	assert.Equal(t, []float64{1, 2, 3, 4, 7}, score.Floats())
	assert.Equal(t, 5, out.NRows())
}

func TestClean_ZScoreReplacesWithMean(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	f := frame.MustNew(frame.NewNumeric("v", values))
	cfg := cleaning(MissingMean)
	cfg.HandleOutliers = true
	cfg.OutlierMethod = OutlierZScore
	cfg.OutlierThreshold = 2

	out, _, err := Clean(f, cfg)
	require.NoError(t, err)
	v, _ := out.Column("v")
	assert.Equal(t, 19.0, v.Float(9))
	assert.Equal(t, 10.0, v.Float(0))
}

func TestClean_InvalidConfig(t *testing.T) {
	_, _, err := Clean(sample(), cleaning("interpolate"))
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "missing_value_strategy", cfgErr.Field)
}

func TestTransform_Scalers(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("a", []float64{1, 2, 3}),
		frame.NewNumeric("b", []float64{10, 20, 30}),
		frame.NewCategorical("c", []string{"x", "y", "x"}, nil),
	)

	out, rep, err := Transform(f, FeatureTransformConfig{TransformType: TransformNormalize})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rep.Columns)
	a, _ := out.Column("a")
	assert.Equal(t, []float64{0, 0.5, 1}, a.Floats())

	out, rep, err = Transform(f, FeatureTransformConfig{TransformType: TransformStandardize, Columns: []string{"b", "c", "zzz"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rep.Columns)
	b, _ := out.Column("b")
	assert.InDelta(t, 0, b.Float(1), 1e-12)
	assert.InDelta(t, -math.Sqrt(1.5), b.Float(0), 1e-12)
	a, _ = out.Column("a")
	assert.Equal(t, []float64{1, 2, 3}, a.Floats())

	out, _, err = Transform(f, FeatureTransformConfig{TransformType: TransformRobust})
	require.NoError(t, err)
	a, _ = out.Column("a")
	assert.Equal(t, []float64{-1, 0, 1}, a.Floats())
}

func TestTransform_NothingToDo(t *testing.T) {
	f := frame.MustNew(frame.NewCategorical("c", []string{"x"}, nil))
	out, rep, err := Transform(f, DefaultTransformConfig())
	require.NoError(t, err)
	assert.Same(t, f, out)
	assert.Empty(t, rep.Columns)
}

func TestTransform_LabelEncodeIsDeterministic(t *testing.T) {
	f := frame.MustNew(
		frame.NewCategorical("c", []string{"z", "a", "z", "m", ""}, []bool{false, false, false, false, true}),
		frame.NewNumeric("n", []float64{1, 2, 3, 4, 5}),
	)
	cfg := FeatureTransformConfig{TransformType: TransformLabelEncode}

	first, rep, err := Transform(f, cfg)
	require.NoError(t, err)
	second, _, err := Transform(f, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, rep.Columns)
	c1, _ := first.Column("c")
	c2, _ := second.Column("c")
	assert.Equal(t, frame.Numeric, c1.Kind())
	assert.Equal(t, []float64{0, 1, 0, 2, 3}, c1.Floats())
	assert.Equal(t, c1.Floats(), c2.Floats())
}

func TestAnalyze(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("x", []float64{1, 2, 3, nan}),
		frame.NewNumeric("y", []float64{2, 4, 6, 8}),
		frame.NewNumeric("k", []float64{5, 5, 5, 5}),
		frame.NewCategorical("c", []string{"p", "q", "p", "p"}, nil),
	)
	a, err := Analyze(f)
	require.NoError(t, err)
	assert.Equal(t, 4, a.NFeatures)
	assert.Equal(t, 4, a.NSamples)

	x := a.Features[0]
	assert.Equal(t, 1, x.MissingCount)
	assert.Equal(t, 0.25, x.MissingRate)
	require.NotNil(t, x.Mean)
	assert.Equal(t, 2.0, *x.Mean)
	assert.Equal(t, 1.0, *x.Std)
	assert.Equal(t, 3, *x.UniqueCount)

	c := a.Features[3]
	assert.Nil(t, c.Mean)
	assert.Equal(t, []ValueCount{{"p", 3}, {"q", 1}}, c.TopValues)

	assert.Equal(t, []string{"x", "y", "k"}, a.CorrelationFeatures)
	assert.InDelta(t, 1.0, a.CorrelationMatrix[0][1], 1e-12)
	assert.Equal(t, 0.0, a.CorrelationMatrix[2][2])
	assert.Equal(t, 0.0, a.CorrelationMatrix[0][2])

	_, err = Analyze(frame.MustNew(frame.NewNumeric("x", nil)))
	var empty *errors.EmptyDatasetError
	assert.True(t, errors.As(err, &empty))
}
