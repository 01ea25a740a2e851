package pipeline

import (
	"fmt"
	"sort"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/ensemble"
	"github.com/tabtrain/tabtrain/sklearn/linear_model"
	"github.com/tabtrain/tabtrain/sklearn/neighbors"
	"github.com/tabtrain/tabtrain/sklearn/svm"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

// ModelFactory creates an unfitted model for cfg together with the model
// specific hyperparameters worth recording.
type ModelFactory func(cfg TrainConfig) (model.Estimator, map[string]interface{})

type registryKey struct {
	task      TaskType
	algorithm Algorithm
}

// Registry maps (task, algorithm) pairs to model factories. Each task may
// name a fallback algorithm used for names it does not know.
type Registry struct {
	factories map[registryKey]ModelFactory
	fallback  map[TaskType]Algorithm
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[registryKey]ModelFactory),
		fallback:  make(map[TaskType]Algorithm),
	}
}

// Register adds or replaces the factory for (task, algorithm).
func (r *Registry) Register(task TaskType, algorithm Algorithm, factory ModelFactory) {
	r.factories[registryKey{task, algorithm}] = factory
}

// SetFallback makes algorithm the default for unknown names under task.
// The algorithm must already be registered for the task.
func (r *Registry) SetFallback(task TaskType, algorithm Algorithm) error {
	if _, ok := r.factories[registryKey{task, algorithm}]; !ok {
		return errors.NewConfigError("fallback", fmt.Sprintf("%s is not registered for %s", algorithm, task), algorithm)
	}
	r.fallback[task] = algorithm
	return nil
}

// Resolve returns the factory for (task, algorithm). When the pair is not
// registered the task's fallback is used and fellBack is true. A task with
// neither is a ConfigError.
func (r *Registry) Resolve(task TaskType, algorithm Algorithm) (factory ModelFactory, resolved Algorithm, fellBack bool, err error) {
	if f, ok := r.factories[registryKey{task, algorithm}]; ok {
		return f, algorithm, false, nil
	}
	fb, ok := r.fallback[task]
	if !ok {
		return nil, "", false, errors.NewConfigError("algorithm",
			fmt.Sprintf("no model registered for task %s", task), algorithm)
	}
	return r.factories[registryKey{task, fb}], fb, true, nil
}

// Algorithms lists the algorithms registered for task in name order.
func (r *Registry) Algorithms(task TaskType) []Algorithm {
	var out []Algorithm
	for k := range r.factories {
		if k.task == task {
			out = append(out, k.algorithm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns a fresh registry holding the built-in models,
// with random forests as the fallback of both tasks.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(Classification, RandomForest, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := ensemble.NewRandomForestClassifier(ensemble.WithNEstimators(100), ensemble.WithMaxDepth(tree.Unlimited),
			ensemble.WithRandomState(cfg.RandomState))
		return m, forestKnobs(m.GetParams())
	})
	r.Register(Regression, RandomForest, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := ensemble.NewRandomForestRegressor(ensemble.WithNEstimators(100), ensemble.WithMaxDepth(tree.Unlimited),
			ensemble.WithRandomState(cfg.RandomState))
		return m, forestKnobs(m.GetParams())
	})

	r.Register(Classification, SVM, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return svm.NewSVC(svm.WithKernel(svm.KernelRBF)), map[string]interface{}{"kernel": svm.KernelRBF}
	})
	r.Register(Regression, SVM, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return svm.NewSVR(svm.WithKernel(svm.KernelRBF)), map[string]interface{}{"kernel": svm.KernelRBF}
	})

	r.Register(Classification, LogisticRegression, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return linear_model.NewLogisticRegression(linear_model.WithLRMaxIter(1000)), map[string]interface{}{"max_iter": 1000}
	})
	r.Register(Regression, LinearRegression, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return linear_model.NewLinearRegression(), map[string]interface{}{}
	})

	r.Register(Classification, GradientBoosting, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := ensemble.NewGradientBoostingClassifier(ensemble.WithNEstimators(100), ensemble.WithRandomState(cfg.RandomState))
		return m, map[string]interface{}{"n_estimators": m.GetParams()["n_estimators"]}
	})
	r.Register(Regression, GradientBoosting, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := ensemble.NewGradientBoostingRegressor(ensemble.WithNEstimators(100), ensemble.WithRandomState(cfg.RandomState))
		return m, map[string]interface{}{"n_estimators": m.GetParams()["n_estimators"]}
	})

	r.Register(Classification, KNN, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return neighbors.NewKNeighborsClassifier(neighbors.WithNNeighbors(5)), map[string]interface{}{"n_neighbors": 5}
	})
	r.Register(Regression, KNN, func(TrainConfig) (model.Estimator, map[string]interface{}) {
		return neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(5)), map[string]interface{}{"n_neighbors": 5}
	})

	r.Register(Classification, DecisionTree, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := tree.NewDecisionTreeClassifier(tree.WithRandomState(cfg.RandomState))
		return m, map[string]interface{}{"max_depth": m.GetParams()["max_depth"]}
	})
	r.Register(Regression, DecisionTree, func(cfg TrainConfig) (model.Estimator, map[string]interface{}) {
		m := tree.NewDecisionTreeRegressor(tree.WithRandomState(cfg.RandomState))
		return m, map[string]interface{}{"max_depth": m.GetParams()["max_depth"]}
	})

	// Both are registered above, so SetFallback cannot fail.
	_ = r.SetFallback(Classification, RandomForest)
	_ = r.SetFallback(Regression, RandomForest)
	return r
}

func forestKnobs(params map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"n_estimators": params["n_estimators"],
		"max_depth":    params["max_depth"],
	}
}
