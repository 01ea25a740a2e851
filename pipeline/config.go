// Package pipeline turns a frame and a declarative training configuration
// into a fitted preprocessing + model pipeline and a structured
// ExperimentResult: metrics, feature importance and the hyperparameters
// that were actually used.
//
//	res, pipe, err := pipeline.RunExperiment(env, f, pipeline.DefaultTrainConfig("label", pipeline.Classification), "iris")
package pipeline

import (
	"time"

	"github.com/tabtrain/tabtrain/pkg/log"
	"github.com/tabtrain/tabtrain/pkg/validate"
)

// TaskType is the kind of supervised problem.
type TaskType string

// Task types.
const (
	Classification TaskType = "classification"
	Regression     TaskType = "regression"
)

// Algorithm names a model family in the registry.
type Algorithm string

// Algorithms known to DefaultRegistry.
const (
	RandomForest       Algorithm = "random_forest"
	SVM                Algorithm = "svm"
	LogisticRegression Algorithm = "logistic_regression"
	LinearRegression   Algorithm = "linear_regression"
	GradientBoosting   Algorithm = "gradient_boosting"
	KNN                Algorithm = "knn"
	DecisionTree       Algorithm = "decision_tree"
)

// Importance folds map expanded feature importances back onto predictor
// columns.
const (
	// FoldCyclic adds the importance at expanded index i to predictor
	// i mod n.
	FoldCyclic = "cyclic"
	// FoldSource sums the importances of the expanded columns derived from
	// each predictor.
	FoldSource = "source"
)

var checker = validate.New()

// TrainConfig describes one training run. Algorithm is not validated:
// names unknown to the registry fall back to the task's default model.
type TrainConfig struct {
	TargetColumn   string    `json:"target_column" yaml:"target_column" mapstructure:"target_column" validate:"required"`
	TaskType       TaskType  `json:"task_type" yaml:"task_type" mapstructure:"task_type" validate:"oneof=classification regression"`
	Algorithm      Algorithm `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	TestSize       float64   `json:"test_size" yaml:"test_size" mapstructure:"test_size" validate:"gt=0,lt=1"`
	RandomState    uint64    `json:"random_state" yaml:"random_state" mapstructure:"random_state"`
	ImportanceFold string    `json:"importance_fold,omitempty" yaml:"importance_fold,omitempty" mapstructure:"importance_fold" validate:"omitempty,oneof=cyclic source"`
}

// DefaultTrainConfig returns a random forest configuration with a 20% test
// split and seed 42.
func DefaultTrainConfig(target string, task TaskType) TrainConfig {
	return TrainConfig{
		TargetColumn:   target,
		TaskType:       task,
		Algorithm:      RandomForest,
		TestSize:       0.2,
		RandomState:    42,
		ImportanceFold: FoldCyclic,
	}
}

// Validate returns a ConfigError for the first invalid field.
func (c TrainConfig) Validate() error {
	return validate.Struct(checker, c)
}

func (c TrainConfig) fold() string {
	if c.ImportanceFold == "" {
		return FoldCyclic
	}
	return c.ImportanceFold
}

// EvaluationConfig selects the extra outputs of Evaluate.
type EvaluationConfig struct {
	IncludeConfusionMatrix      bool `json:"include_confusion_matrix" yaml:"include_confusion_matrix" mapstructure:"include_confusion_matrix"`
	IncludeClassificationReport bool `json:"include_classification_report" yaml:"include_classification_report" mapstructure:"include_classification_report"`
	IncludeResiduals            bool `json:"include_residuals" yaml:"include_residuals" mapstructure:"include_residuals"`
	TopKFeatures                int  `json:"top_k_features" yaml:"top_k_features" mapstructure:"top_k_features" validate:"gte=0"`
}

// DefaultEvaluationConfig includes every classification output and the
// ten most important features.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		IncludeConfusionMatrix:      true,
		IncludeClassificationReport: true,
		TopKFeatures:                10,
	}
}

// Validate returns a ConfigError for the first invalid field.
func (c EvaluationConfig) Validate() error {
	return validate.Struct(checker, c)
}

// Env carries what a run needs from its caller. The zero value is usable:
// it discards logs, reads the wall clock and uses DefaultRegistry.
type Env struct {
	Logger   log.Logger
	Clock    func() time.Time
	Registry *Registry
}

func (e Env) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e Env) registry() *Registry {
	if e.Registry == nil {
		return DefaultRegistry()
	}
	return e.Registry
}
