package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
)

func labelFrame(labels []float64) *frame.Frame {
	x := make([]float64, len(labels))
	for i := range x {
		x[i] = float64(i)
	}
	return frame.MustNew(frame.NewNumeric("x", x), frame.NewNumeric("label", labels))
}

func TestTrainer_Stratification(t *testing.T) {
	tests := []struct {
		name       string
		labels     []float64
		task       TaskType
		stratified bool
	}{
		{"every class has two members", []float64{0, 0, 1, 1, 1}, Classification, true},
		{"singleton class", []float64{0, 1, 1, 1, 1}, Classification, false},
		{"single class", []float64{1, 1, 1, 1, 1}, Classification, false},
		{"regression never stratifies", []float64{0, 0, 1, 1, 1}, Regression, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := log.NewTestLogger(log.LevelInfo)
			cfg := DefaultTrainConfig("label", tt.task)
			cfg.TestSize = 0.4

			tr, err := NewTrainer(Env{Logger: logger}, labelFrame(tt.labels), cfg)
			require.NoError(t, err)
			require.NoError(t, tr.Split(context.Background()))

			split := tr.SplitResult()
			assert.Equal(t, tt.stratified, split.Stratified)
			assert.Len(t, split.Test, 2)
			assert.Len(t, split.Train, 3)
			assert.True(t, logger.ContainsField(log.StratifiedKey, tt.stratified))
			assert.Equal(t, StateSplit, tr.State())

			if tt.stratified {
				y := tr.target
				assert.ElementsMatch(t, []float64{0, 1}, []float64{y[split.Test[0]], y[split.Test[1]]})
			}
		})
	}
}

func TestTrainer_StepsMustRunInOrder(t *testing.T) {
	ctx := context.Background()
	tr, err := NewTrainer(Env{}, labelFrame([]float64{0, 0, 1, 1, 0, 1, 0, 1, 0, 1}), DefaultTrainConfig("label", Classification))
	require.NoError(t, err)
	assert.Equal(t, StateUnsplit, tr.State())

	assert.Error(t, tr.Fit(ctx))
	_, err = tr.Evaluate(ctx)
	assert.Error(t, err)
	assert.Equal(t, StateUnsplit, tr.State())

	require.NoError(t, tr.Split(ctx))
	assert.Error(t, tr.Split(ctx))
	require.NoError(t, tr.Fit(ctx))
	assert.Equal(t, StateFitted, tr.State())
	require.NotNil(t, tr.Pipeline())

	items, err := tr.Evaluate(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, StateEvaluated, tr.State())

	yTrue, yPred := tr.TestPredictions()
	assert.Equal(t, 2, yTrue.Len())
	assert.Equal(t, 2, yPred.Len())
}

func TestTrainer_LogsTransitionsAndStopsWhenCancelled(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	f := labelFrame([]float64{0, 0, 1, 1, 0, 1, 0, 1, 0, 1})
	tr, err := NewTrainer(Env{Logger: logger}, f, DefaultTrainConfig("label", Classification))
	require.NoError(t, err)

	require.NoError(t, tr.Split(context.Background()))
	assert.Equal(t, StateSplit, tr.State())
	assert.True(t, logger.ContainsField("from", StateUnsplit))
	assert.True(t, logger.ContainsField("to", StateSplit))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tr.Fit(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateSplit, tr.State())
}

func TestTrainer_ClassEncoding(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("x", []float64{1, 2, 3, 4}),
		frame.NewNumeric("label", []float64{10, 2, 10, 2}),
	)
	tr, err := NewTrainer(Env{}, f, DefaultTrainConfig("label", Classification))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "10"}, tr.ClassLabels())
	assert.Equal(t, []float64{1, 0, 1, 0}, tr.target)

	f = frame.MustNew(
		frame.NewNumeric("x", []float64{1, 2, 3}),
		frame.NewCategorical("label", []string{"b", "a", "c"}, nil),
	)
	tr, err = NewTrainer(Env{}, f, DefaultTrainConfig("label", Classification))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tr.ClassLabels())
	assert.Equal(t, []float64{1, 0, 2}, tr.target)
	assert.Equal(t, []string{"x"}, tr.Predictors().Names())
}

func TestTrainer_MissingTargetValues(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("x", []float64{1, 2, 3}),
		frame.NewCategorical("label", []string{"a", "", "b"}, []bool{false, true, false}),
	)
	_, err := NewTrainer(Env{}, f, DefaultTrainConfig("label", Classification))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSplitFeaturesTarget(t *testing.T) {
	f := frame.MustNew(
		frame.NewNumeric("a", []float64{1}),
		frame.NewNumeric("t", []float64{2}),
		frame.NewCategorical("b", []string{"x"}, nil),
	)
	X, y, err := SplitFeaturesTarget(f, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, X.Names())
	assert.Equal(t, "t", y.Name())

	_, _, err = SplitFeaturesTarget(f, "z")
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "target column not found", cfgErr.Message)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t,
		[]Algorithm{DecisionTree, GradientBoosting, KNN, LogisticRegression, RandomForest, SVM},
		r.Algorithms(Classification))
	assert.Equal(t,
		[]Algorithm{DecisionTree, GradientBoosting, KNN, LinearRegression, RandomForest, SVM},
		r.Algorithms(Regression))

	// logistic_regression is a classification-only entry.
	_, resolved, fellBack, err := r.Resolve(Regression, LogisticRegression)
	require.NoError(t, err)
	assert.True(t, fellBack)
	assert.Equal(t, RandomForest, resolved)

	factory, resolved, fellBack, err := r.Resolve(Classification, SVM)
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Equal(t, SVM, resolved)
	m, knobs := factory(DefaultTrainConfig("y", Classification))
	assert.Equal(t, "SVC", modelName(m))
	assert.Equal(t, "rbf", knobs["kernel"])

	empty := NewRegistry()
	_, _, _, err = empty.Resolve(Classification, RandomForest)
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Error(t, empty.SetFallback(Classification, KNN))

	_, _, err = Build(Env{Registry: empty}, labelFrame([]float64{0, 1}).Drop("label"), DefaultTrainConfig("label", Classification))
	assert.True(t, errors.As(err, &cfgErr))
}

func TestBuild_NoPredictors(t *testing.T) {
	f := frame.MustNew(frame.NewNumeric("label", []float64{1, 2, 3, 4, 5}))
	_, _, err := RunExperiment(Env{}, f, DefaultTrainConfig("label", Regression), "d")
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*TrainConfig)
		field string
	}{
		{"valid", func(*TrainConfig) {}, ""},
		{"no target", func(c *TrainConfig) { c.TargetColumn = "" }, "target_column"},
		{"bad task", func(c *TrainConfig) { c.TaskType = "clustering" }, "task_type"},
		{"zero test size", func(c *TrainConfig) { c.TestSize = 0 }, "test_size"},
		{"bad fold", func(c *TrainConfig) { c.ImportanceFold = "shapley" }, "importance_fold"},
		{"unknown algorithm is allowed", func(c *TrainConfig) { c.Algorithm = "xgboost" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainConfig("y", Classification)
			tt.edit(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *errors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
