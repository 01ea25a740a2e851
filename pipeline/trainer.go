package pipeline

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/looplab/fsm"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/metrics"
	"github.com/tabtrain/tabtrain/model_selection"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
)

// Trainer states.
const (
	StateUnsplit   = "Unsplit"
	StateSplit     = "Split"
	StateFitted    = "Fitted"
	StateEvaluated = "Evaluated"
)

// Trainer events.
const (
	EventSplit    = "split"
	EventFit      = "fit"
	EventEvaluate = "evaluate"
)

// Trainer runs one experiment step by step: Split, Fit, then Evaluate.
// Calling a step out of order is an error.
type Trainer struct {
	// FSM tracks the trainer state.
	FSM *fsm.FSM

	env    Env
	cfg    TrainConfig
	logger log.Logger

	predictors  *frame.Frame
	target      []float64
	classLabels []string

	split       *model_selection.Split
	pipeline    *Pipeline
	hyperparams map[string]interface{}

	yTest   *mat.VecDense
	yPred   *mat.VecDense
	metrics []MetricItem
}

// NewTrainer validates cfg against f and prepares the target. A missing
// target column is a ConfigError and an empty frame an EmptyDatasetError.
func NewTrainer(env Env, f *frame.Frame, cfg TrainConfig) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	predictors, targetCol, err := SplitFeaturesTarget(f, cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	if f.NRows() == 0 {
		return nil, errors.NewEmptyDatasetError("split")
	}

	t := &Trainer{
		env:        env,
		cfg:        cfg,
		logger:     env.logger(),
		predictors: predictors,
	}
	if cfg.TaskType == Classification {
		t.target, t.classLabels, err = encodeClasses(targetCol)
	} else {
		t.target, err = regressionTarget(targetCol)
	}
	if err != nil {
		return nil, err
	}

	t.FSM = fsm.NewFSM(
		StateUnsplit,
		fsm.Events{
			{Name: EventSplit, Src: []string{StateUnsplit}, Dst: StateSplit},
			{Name: EventFit, Src: []string{StateSplit}, Dst: StateFitted},
			{Name: EventEvaluate, Src: []string{StateFitted}, Dst: StateEvaluated},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				t.logger.Debug("Trainer state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return t, nil
}

// encodeClasses stringifies the labels, sorts the distinct ones (numerically
// for numeric columns) and codes them 0..K-1.
func encodeClasses(col frame.Column) ([]float64, []string, error) {
	if n := col.MissingCount(); n > 0 {
		return nil, nil, errors.NewConfigError("target_column", "target has missing values", n)
	}
	seen := make(map[string]float64)
	var labels []string
	for i := 0; i < col.Len(); i++ {
		s := col.FormatValue(i)
		if _, ok := seen[s]; !ok {
			seen[s] = 0
			labels = append(labels, s)
		}
	}
	if col.Kind() == frame.Numeric {
		sort.Slice(labels, func(i, j int) bool {
			a, _ := strconv.ParseFloat(labels[i], 64)
			b, _ := strconv.ParseFloat(labels[j], 64)
			return a < b
		})
	} else {
		sort.Strings(labels)
	}
	for code, l := range labels {
		seen[l] = float64(code)
	}

	y := make([]float64, col.Len())
	for i := range y {
		y[i] = seen[col.FormatValue(i)]
	}
	return y, labels, nil
}

func regressionTarget(col frame.Column) ([]float64, error) {
	if col.Kind() != frame.Numeric {
		return nil, errors.NewConfigError("target_column", "regression target must be numeric", col.Name())
	}
	if n := col.MissingCount(); n > 0 {
		return nil, errors.NewConfigError("target_column", "target has missing values", n)
	}
	return col.Floats(), nil
}

// step checks that event may fire now. A cancelled ctx stops the run
// between steps; a running step is not interrupted.
func (t *Trainer) step(ctx context.Context, event string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "trainer: %s", event)
	}
	if !t.FSM.Can(event) {
		return errors.Newf("trainer: cannot %s in state %s", event, t.FSM.Current())
	}
	return nil
}

// Split partitions the rows into training and test sets. Classification
// targets are stratified when every class has at least two members and
// there are at least two classes.
func (t *Trainer) Split(ctx context.Context) error {
	if err := t.step(ctx, EventSplit); err != nil {
		return err
	}

	var stratify []float64
	if t.cfg.TaskType == Classification && model_selection.CanStratify(t.target) {
		stratify = t.target
	}
	split, err := model_selection.TrainTestSplit(len(t.target), t.cfg.TestSize, t.cfg.RandomState, stratify)
	if err != nil {
		return err
	}
	t.split = split

	t.logger.Info("Split dataset",
		log.OperationKey, log.OperationSplit,
		log.TrainSamplesKey, len(split.Train),
		log.TestSamplesKey, len(split.Test),
		log.StratifiedKey, split.Stratified,
	)
	return t.FSM.Event(EventSplit)
}

// Fit builds the pipeline and fits it on the training rows only.
func (t *Trainer) Fit(ctx context.Context) error {
	if err := t.step(ctx, EventFit); err != nil {
		return err
	}

	p, hyperparams, err := Build(t.env, t.predictors, t.cfg)
	if err != nil {
		return err
	}
	p.ClassLabels = t.classLabels

	start := t.env.now()
	if err := p.Fit(t.predictors.Take(t.split.Train), take(t.target, t.split.Train)); err != nil {
		return err
	}
	if cr, ok := p.Model.(model.ConvergenceReporter); ok {
		if w := cr.ConvergenceWarning(); w != nil {
			t.logger.Warn("Model did not converge",
				log.ModelNameKey, p.ModelName,
				log.IterationKey, w.Iterations,
				log.ErrorCodeKey, log.ErrorConvergence,
			)
		}
	}
	t.logger.Info("Fitted pipeline",
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, p.ModelName,
		log.FeaturesKey, len(p.Preprocessor.OutputNames),
		log.DurationMsKey, t.env.now().Sub(start).Milliseconds(),
	)

	t.pipeline, t.hyperparams = p, hyperparams
	return t.FSM.Event(EventFit)
}

// Evaluate predicts the test rows and computes accuracy and macro F1 for
// classification, or MSE, RMSE, MAE and R² for regression.
func (t *Trainer) Evaluate(ctx context.Context) ([]MetricItem, error) {
	if err := t.step(ctx, EventEvaluate); err != nil {
		return nil, err
	}

	yPred, err := t.pipeline.Predict(t.predictors.Take(t.split.Test))
	if err != nil {
		return nil, err
	}
	yTest := mat.NewVecDense(len(t.split.Test), take(t.target, t.split.Test))

	var items []MetricItem
	if t.cfg.TaskType == Classification {
		items, err = classificationMetrics(yTest, yPred)
	} else {
		items, err = regressionMetrics(yTest, yPred)
	}
	if err != nil {
		return nil, err
	}
	t.yTest, t.yPred, t.metrics = yTest, yPred, items

	fields := []any{log.OperationKey, log.OperationEvaluate}
	for _, m := range items {
		fields = append(fields, "metrics."+m.Name, m.Value)
	}
	t.logger.Info("Evaluated pipeline", fields...)

	if err := t.FSM.Event(EventEvaluate); err != nil {
		return nil, err
	}
	return items, nil
}

func classificationMetrics(yTrue, yPred *mat.VecDense) ([]MetricItem, error) {
	acc, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	f1, err := metrics.F1Macro(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return []MetricItem{{Name: "accuracy", Value: acc}, {Name: "f1_macro", Value: f1}}, nil
}

func regressionMetrics(yTrue, yPred *mat.VecDense) ([]MetricItem, error) {
	mse, err := metrics.MSE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	mae, err := metrics.MAE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r2, err := metrics.R2Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return []MetricItem{
		{Name: "mse", Value: mse},
		{Name: "rmse", Value: math.Sqrt(mse)},
		{Name: "mae", Value: mae},
		{Name: "r2", Value: r2},
	}, nil
}

// State returns the current trainer state.
func (t *Trainer) State() string { return t.FSM.Current() }

// SplitResult returns the train/test partition, or nil before Split.
func (t *Trainer) SplitResult() *model_selection.Split { return t.split }

// Pipeline returns the fitted pipeline, or nil before Fit.
func (t *Trainer) Pipeline() *Pipeline { return t.pipeline }

// Hyperparams returns the hyperparameter record of the fitted pipeline.
func (t *Trainer) Hyperparams() map[string]interface{} { return t.hyperparams }

// TestPredictions returns the true and predicted test targets after
// Evaluate. Classification targets are class codes.
func (t *Trainer) TestPredictions() (yTrue, yPred *mat.VecDense) { return t.yTest, t.yPred }

// ClassLabels returns the original labels of the class codes.
func (t *Trainer) ClassLabels() []string { return t.classLabels }

// Predictors returns the predictor frame.
func (t *Trainer) Predictors() *frame.Frame { return t.predictors }

func take(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}
