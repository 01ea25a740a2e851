package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/metrics"
	"github.com/tabtrain/tabtrain/pkg/log"
)

// RunExperiment splits f, fits the configured pipeline on the training rows
// and evaluates it on the test rows. The fitted pipeline is returned for
// callers that want to persist or reuse it; a failed run returns no result.
func RunExperiment(env Env, f *frame.Frame, cfg TrainConfig, datasetName string) (*ExperimentResult, *Pipeline, error) {
	res, t, err := run(env, f, cfg, datasetName)
	if err != nil {
		return nil, nil, err
	}
	return res, t.Pipeline(), nil
}

func run(env Env, f *frame.Frame, cfg TrainConfig, datasetName string) (*ExperimentResult, *Trainer, error) {
	logger := env.logger().With(
		log.RunIDKey, uuid.NewString(),
		log.DatasetKey, datasetName,
		log.TaskKey, string(cfg.TaskType),
		log.AlgorithmKey, string(cfg.Algorithm),
	)
	env.Logger = logger
	start := env.now()
	logger.Info("Experiment started",
		log.SamplesKey, f.NRows(),
		log.TargetKey, cfg.TargetColumn,
	)

	res, t, err := runSteps(env, f, cfg, datasetName)
	if err != nil {
		logger.Error("Experiment failed", log.ErrAttrKey, err)
		return nil, nil, err
	}

	logger.Info("Experiment finished",
		log.ModelNameKey, res.ModelName,
		log.DurationMsKey, env.now().Sub(start).Milliseconds(),
	)
	return res, t, nil
}

func runSteps(env Env, f *frame.Frame, cfg TrainConfig, datasetName string) (*ExperimentResult, *Trainer, error) {
	ctx := context.Background()
	t, err := NewTrainer(env, f, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := t.Split(ctx); err != nil {
		return nil, nil, err
	}
	if err := t.Fit(ctx); err != nil {
		return nil, nil, err
	}
	items, err := t.Evaluate(ctx)
	if err != nil {
		return nil, nil, err
	}

	p := t.Pipeline()
	fi, err := ExtractImportance(p.Model, p.Predictors, p.Preprocessor.OutputSources, cfg.fold())
	if err != nil {
		return nil, nil, err
	}

	res := &ExperimentResult{
		DatasetName:       datasetName,
		NSamples:          f.NRows(),
		NFeatures:         len(p.Predictors),
		TargetColumn:      cfg.TargetColumn,
		TaskType:          cfg.TaskType,
		ModelName:         p.ModelName,
		Hyperparams:       t.Hyperparams(),
		Metrics:           items,
		FeatureImportance: fi,
	}
	return res, t, nil
}

// ClassScore is one row of a classification report.
type ClassScore struct {
	Class     string  `json:"class" yaml:"class"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Support   int     `json:"support" yaml:"support"`
}

// ResidualSummary describes the test residuals (true minus predicted) of a
// regression run.
type ResidualSummary struct {
	Mean         float64   `json:"mean" yaml:"mean"`
	Std          float64   `json:"std" yaml:"std"`
	Min          float64   `json:"min" yaml:"min"`
	Max          float64   `json:"max" yaml:"max"`
	MedianAbsErr float64   `json:"median_abs_error" yaml:"median_abs_error"`
	Predicted    []float64 `json:"predicted" yaml:"predicted"`
	Residuals    []float64 `json:"residuals" yaml:"residuals"`
}

// Evaluation is a run together with the detailed outputs selected by an
// EvaluationConfig.
type Evaluation struct {
	Experiment           *ExperimentResult       `json:"experiment" yaml:"experiment"`
	Config               EvaluationConfig        `json:"evaluation_config" yaml:"evaluation_config"`
	ConfusionMatrix      [][]int                 `json:"confusion_matrix,omitempty" yaml:"confusion_matrix,omitempty"`
	ConfusionLabels      []string                `json:"confusion_labels,omitempty" yaml:"confusion_labels,omitempty"`
	ClassificationReport []ClassScore            `json:"classification_report,omitempty" yaml:"classification_report,omitempty"`
	Residuals            *ResidualSummary        `json:"residuals,omitempty" yaml:"residuals,omitempty"`
	TopFeatures          []FeatureImportanceItem `json:"top_features" yaml:"top_features"`
}

// Evaluate runs an experiment like RunExperiment and adds the confusion
// matrix, per-class report or residual summary of the held-out rows.
func Evaluate(env Env, f *frame.Frame, cfg TrainConfig, evalCfg EvaluationConfig, datasetName string) (*Evaluation, *Pipeline, error) {
	if err := evalCfg.Validate(); err != nil {
		return nil, nil, err
	}
	res, t, err := run(env, f, cfg, datasetName)
	if err != nil {
		return nil, nil, err
	}

	ev := &Evaluation{
		Experiment:  res,
		Config:      evalCfg,
		TopFeatures: TopK(res.FeatureImportance, evalCfg.TopKFeatures),
	}
	yTrue, yPred := t.TestPredictions()
	if cfg.TaskType == Classification {
		labels := t.ClassLabels()
		if evalCfg.IncludeConfusionMatrix {
			if ev.ConfusionMatrix, err = confusion(yTrue, yPred, len(labels)); err != nil {
				return nil, nil, err
			}
			ev.ConfusionLabels = labels
		}
		if evalCfg.IncludeClassificationReport {
			if ev.ClassificationReport, err = classReport(yTrue, yPred, labels); err != nil {
				return nil, nil, err
			}
		}
	} else if evalCfg.IncludeResiduals {
		if ev.Residuals, err = residuals(yTrue, yPred); err != nil {
			return nil, nil, err
		}
	}
	return ev, t.Pipeline(), nil
}

func confusion(yTrue, yPred *mat.VecDense, nClasses int) ([][]int, error) {
	codes := make([]float64, nClasses)
	for i := range codes {
		codes[i] = float64(i)
	}
	cm, _, err := metrics.ConfusionMatrix(yTrue, yPred, codes)
	if err != nil {
		return nil, err
	}
	out := make([][]int, nClasses)
	for i := range out {
		out[i] = make([]int, nClasses)
		for j := range out[i] {
			out[i][j] = int(cm.At(i, j))
		}
	}
	return out, nil
}

func classReport(yTrue, yPred *mat.VecDense, labels []string) ([]ClassScore, error) {
	reports, err := metrics.PrecisionRecallF1(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	out := make([]ClassScore, len(reports))
	for i, r := range reports {
		name := fmt.Sprint(r.Label)
		if c := int(r.Label); c >= 0 && c < len(labels) {
			name = labels[c]
		}
		out[i] = ClassScore{Class: name, Precision: r.Precision, Recall: r.Recall, F1: r.F1, Support: r.Support}
	}
	return out, nil
}

func residuals(yTrue, yPred *mat.VecDense) (*ResidualSummary, error) {
	n := yTrue.Len()
	res := make([]float64, n)
	abs := make([]float64, n)
	for i := range res {
		res[i] = yTrue.AtVec(i) - yPred.AtVec(i)
		abs[i] = math.Abs(res[i])
	}
	s := &ResidualSummary{
		Predicted: mat.Col(nil, 0, yPred),
		Residuals: res,
	}
	var err error
	if s.Mean, err = stats.Mean(res); err != nil {
		return nil, err
	}
	if s.Min, err = stats.Min(res); err != nil {
		return nil, err
	}
	if s.Max, err = stats.Max(res); err != nil {
		return nil, err
	}
	if s.MedianAbsErr, err = stats.Median(abs); err != nil {
		return nil, err
	}
	if n > 1 {
		if s.Std, err = stats.StandardDeviationSample(res); err != nil {
			return nil, err
		}
	}
	return s, nil
}
