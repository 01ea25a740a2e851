package pipeline

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
	"github.com/tabtrain/tabtrain/preprocessing"
)

// Pipeline is a column transformer composed with a model. It is built for
// one run and owned by it.
type Pipeline struct {
	Preprocessor *preprocessing.ColumnTransformer
	Model        model.Estimator

	Task      TaskType
	Target    string
	ModelName string

	// Predictors lists the predictor columns in frame order.
	Predictors []string

	// ClassLabels maps class codes to the original target labels. It is
	// empty for regression.
	ClassLabels []string
}

// Prediction is the output of PredictRecord. Value is the class label for
// classification and a float64 for regression.
type Prediction struct {
	Value         interface{}        `json:"prediction" yaml:"prediction"`
	Probabilities map[string]float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
}

// Build assembles an unfitted pipeline for the predictor columns of
// predictors and returns it with the hyperparameter record of the run.
func Build(env Env, predictors *frame.Frame, cfg TrainConfig) (*Pipeline, map[string]interface{}, error) {
	if predictors.NCols() == 0 {
		return nil, nil, errors.NewConfigError("predictors", "no predictor columns besides the target", cfg.TargetColumn)
	}
	factory, resolved, fellBack, err := env.registry().Resolve(cfg.TaskType, cfg.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	if fellBack {
		env.logger().Warn("Unknown algorithm, using fallback model",
			log.AlgorithmKey, string(cfg.Algorithm),
			"fallback", string(resolved),
			log.TaskKey, string(cfg.TaskType),
			log.ErrorCodeKey, log.ErrorUnknownAlgo,
		)
	}

	m, knobs := factory(cfg)
	name := modelName(m)

	hyperparams := map[string]interface{}{
		"algorithm":    string(cfg.Algorithm),
		"random_state": cfg.RandomState,
		"test_size":    cfg.TestSize,
		"model_type":   name,
		"created_at":   env.now().UTC().Format(time.RFC3339),
	}
	for k, v := range knobs {
		hyperparams[k] = v
	}

	p := &Pipeline{
		Preprocessor: preprocessing.NewColumnTransformer(predictors),
		Model:        m,
		Task:         cfg.TaskType,
		Target:       cfg.TargetColumn,
		ModelName:    name,
		Predictors:   predictors.Names(),
	}
	return p, hyperparams, nil
}

func modelName(m model.Estimator) string {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Fit fits the preprocessing stage and then the model on the rows of X with
// targets y. Any failure, including a panic inside the model, is a FitError.
func (p *Pipeline) Fit(X *frame.Frame, y []float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewFitError(p.ModelName, errors.NewPanicError(p.ModelName+".Fit", r))
		}
	}()

	Xm, err := p.Preprocessor.FitTransform(X)
	if err != nil {
		return errors.NewFitError(p.ModelName, err)
	}
	if err := p.Model.Fit(Xm, mat.NewDense(len(y), 1, append([]float64(nil), y...))); err != nil {
		return errors.NewFitError(p.ModelName, err)
	}
	return nil
}

// Predict returns one prediction per row of X: class codes for
// classification and values for regression.
func (p *Pipeline) Predict(X *frame.Frame) (*mat.VecDense, error) {
	Xm, err := p.Preprocessor.Transform(X)
	if err != nil {
		return nil, err
	}
	pred, err := p.Model.Predict(Xm)
	if err != nil {
		return nil, err
	}
	col := mat.Col(nil, 0, pred)
	return mat.NewVecDense(len(col), col), nil
}

// PredictProba returns class probabilities for X, one column per class
// code. It fails for models without probability outputs.
func (p *Pipeline) PredictProba(X *frame.Frame) (mat.Matrix, error) {
	clf, ok := p.Model.(model.Classifier)
	if !ok {
		return nil, errors.NewValueError("Pipeline.PredictProba",
			fmt.Sprintf("%s does not produce probabilities", p.ModelName))
	}
	Xm, err := p.Preprocessor.Transform(X)
	if err != nil {
		return nil, err
	}
	return clf.PredictProba(Xm)
}

// PredictRecord predicts a single record given as column name to value.
// Absent or nil values count as missing.
func (p *Pipeline) PredictRecord(record map[string]interface{}) (*Prediction, error) {
	row, err := p.recordFrame(record)
	if err != nil {
		return nil, err
	}
	pred, err := p.Predict(row)
	if err != nil {
		return nil, err
	}

	out := &Prediction{Value: pred.AtVec(0)}
	if p.Task != Classification {
		return out, nil
	}
	code := int(pred.AtVec(0))
	if code >= 0 && code < len(p.ClassLabels) {
		out.Value = p.ClassLabels[code]
	}
	if _, ok := p.Model.(model.Classifier); ok {
		proba, err := p.PredictProba(row)
		if err != nil {
			return nil, err
		}
		classes := p.Model.(model.Classifier).Classes()
		out.Probabilities = make(map[string]float64, len(classes))
		for j, c := range classes {
			label := strconv.FormatFloat(c, 'f', -1, 64)
			if int(c) < len(p.ClassLabels) {
				label = p.ClassLabels[int(c)]
			}
			out.Probabilities[label] = proba.At(0, j)
		}
	}
	return out, nil
}

func (p *Pipeline) recordFrame(record map[string]interface{}) (*frame.Frame, error) {
	cols := make([]frame.Column, 0, len(p.Predictors))
	numeric := make(map[string]bool, len(p.Preprocessor.NumericColumns))
	for _, n := range p.Preprocessor.NumericColumns {
		numeric[n] = true
	}
	for _, name := range p.Predictors {
		v := record[name]
		if numeric[name] {
			x, err := toFloat(name, v)
			if err != nil {
				return nil, err
			}
			cols = append(cols, frame.NewNumeric(name, []float64{x}))
			continue
		}
		if v == nil {
			cols = append(cols, frame.NewCategorical(name, []string{""}, []bool{true}))
			continue
		}
		cols = append(cols, frame.NewCategorical(name, []string{fmt.Sprint(v)}, nil))
	}
	return frame.New(cols...)
}

func toFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.NewValueError("Pipeline.PredictRecord", fmt.Sprintf("column %q expects a number, got %q", name, x))
		}
		return f, nil
	default:
		return 0, errors.NewValueError("Pipeline.PredictRecord", fmt.Sprintf("column %q expects a number, got %T", name, v))
	}
}
