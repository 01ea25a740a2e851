// Package tree implements CART decision trees for classification and
// regression. The exported Build function is shared with the ensemble
// models, which grow many trees over bootstrap samples or gradients.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Option configures a decision tree.
type Option func(*params)

type params struct {
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	randomState     uint64
}

// WithCriterion sets the split quality measure: "gini" or "entropy" for
// classifiers, "squared_error" for regressors.
func WithCriterion(criterion string) Option {
	return func(p *params) { p.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. Unlimited (or any negative
// value) lets it grow fully.
func WithMaxDepth(depth int) Option {
	return func(p *params) { p.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split
// an internal node.
func WithMinSamplesSplit(n int) Option {
	return func(p *params) { p.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *params) { p.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are drawn at each split. 0 uses all
// features.
func WithMaxFeatures(n int) Option {
	return func(p *params) { p.maxFeatures = n }
}

// WithRandomState seeds feature sampling.
func WithRandomState(seed uint64) Option {
	return func(p *params) { p.randomState = seed }
}

func (p *params) config(nClasses int) BuildConfig {
	return BuildConfig{
		Criterion:       p.criterion,
		MaxDepth:        p.maxDepth,
		MinSamplesSplit: p.minSamplesSplit,
		MinSamplesLeaf:  p.minSamplesLeaf,
		MaxFeatures:     p.maxFeatures,
		NClasses:        nClasses,
		Rng:             rand.New(rand.NewPCG(p.randomState, p.randomState)),
	}
}

func (p *params) getParams() map[string]interface{} {
	var depth interface{}
	if p.maxDepth >= 0 {
		depth = p.maxDepth
	}
	return map[string]interface{}{
		"criterion":         p.criterion,
		"max_depth":         depth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"max_features":      p.maxFeatures,
		"random_state":      p.randomState,
	}
}

func (p *params) setParams(values map[string]interface{}, allowed ...string) error {
	for key, value := range values {
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok || !contains(allowed, s) {
				return errors.NewValidationError(key, fmt.Sprintf("must be one of %v", allowed), value)
			}
			p.criterion = s
		case "max_depth":
			if value == nil {
				p.maxDepth = Unlimited
				continue
			}
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int or nil", value)
			}
			p.maxDepth = v
		case "min_samples_split":
			v, ok := value.(int)
			if !ok || v < 2 {
				return errors.NewValidationError(key, "must be an int >= 2", value)
			}
			p.minSamplesSplit = v
		case "min_samples_leaf":
			v, ok := value.(int)
			if !ok || v < 1 {
				return errors.NewValidationError(key, "must be an int >= 1", value)
			}
			p.minSamplesLeaf = v
		case "max_features":
			v, ok := value.(int)
			if !ok || v < 0 {
				return errors.NewValidationError(key, "must be a non-negative int", value)
			}
			p.maxFeatures = v
		case "random_state":
			v, ok := value.(uint64)
			if !ok {
				return errors.NewValidationError(key, "must be a uint64", value)
			}
			p.randomState = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func defaults(criterion string) params {
	return params{
		criterion:       criterion,
		maxDepth:        Unlimited,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
}

// flatten copies X into a row-major slice.
func flatten(X mat.Matrix) []float64 {
	r, c := X.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = X.At(i, j)
		}
	}
	return out
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// DecisionTreeClassifier is a CART classifier.
type DecisionTreeClassifier struct {
	*model.StateManager
	params

	tree      *Tree
	classes   []float64
	nClasses_ int
}

// NewDecisionTreeClassifier creates a classifier using gini impurity and
// unlimited depth unless overridden.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	p := defaults(CriterionGini)
	for _, opt := range opts {
		opt(&p)
	}
	return &DecisionTreeClassifier{StateManager: model.NewStateManager(), params: p}
}

// Fit grows the tree on X and the class column y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	if dt.criterion != CriterionGini && dt.criterion != CriterionEntropy {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	nSamples, nFeatures, err := model.ValidateFitInput("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}

	classes := model.UniqueSorted(y)
	codes := EncodeClasses(y, classes)

	dt.tree = Build(flatten(X), nFeatures, codes, allRows(nSamples), dt.config(len(classes)))
	dt.classes = classes
	dt.nClasses_ = len(classes)
	dt.MarkFitted(nFeatures, nSamples)
	return nil
}

// EncodeClasses maps each value of y to its index in the sorted classes.
func EncodeClasses(y mat.Matrix, classes []float64) []float64 {
	index := make(map[float64]float64, len(classes))
	for i, c := range classes {
		index[c] = float64(i)
	}
	n, _ := y.Dims()
	codes := make([]float64, n)
	for i := range codes {
		codes[i] = index[y.At(i, 0)]
	}
	return codes
}

// PredictProba returns the class distribution of the leaf each row lands in.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.CheckPredict("DecisionTreeClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	out := mat.NewDense(n, dt.nClasses_, nil)
	row := make([]float64, nf)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.tree.Predict(row))
	}
	return out, nil
}

// Predict returns the most probable class for each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return ArgmaxClasses(proba, dt.classes), nil
}

// ArgmaxClasses picks, per row of proba, the class with the highest
// probability. Ties go to the lowest class.
func ArgmaxClasses(proba mat.Matrix, classes []float64) *mat.Dense {
	n, k := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, classes[best])
	}
	return out
}

// Score returns the mean accuracy on X and y, or 0 when prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := y.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Classes returns the sorted class values seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), dt.classes...)
}

// FeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.tree.NormalizedImportances(), nil
}

// GetFeatureImportances is FeatureImportances without the error, returning
// nil before Fit.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	imp, _ := dt.FeatureImportances()
	return imp
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.NLeaves()
}

// GetParams returns the hyperparameters. max_depth is nil when unlimited.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return dt.getParams()
}

// SetParams updates hyperparameters by name.
func (dt *DecisionTreeClassifier) SetParams(values map[string]interface{}) error {
	return dt.setParams(values, CriterionGini, CriterionEntropy)
}

type classifierState struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     uint64
	State           *model.StateManager
	Tree            *Tree
	Classes         []float64
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(classifierState{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		State:           dt.StateManager,
		Tree:            dt.tree,
		Classes:         dt.classes,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s classifierState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	dt.params = params{
		criterion:       s.Criterion,
		maxDepth:        s.MaxDepth,
		minSamplesSplit: s.MinSamplesSplit,
		minSamplesLeaf:  s.MinSamplesLeaf,
		maxFeatures:     s.MaxFeatures,
		randomState:     s.RandomState,
	}
	dt.StateManager = s.State
	if dt.StateManager == nil {
		dt.StateManager = model.NewStateManager()
	}
	dt.tree = s.Tree
	dt.classes = s.Classes
	dt.nClasses_ = len(s.Classes)
	return nil
}

// DecisionTreeRegressor is a CART regressor minimizing squared error.
type DecisionTreeRegressor struct {
	*model.StateManager
	params

	tree *Tree
}

// NewDecisionTreeRegressor creates a regressor with unlimited depth unless
// overridden.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	p := defaults(CriterionSquaredError)
	for _, opt := range opts {
		opt(&p)
	}
	return &DecisionTreeRegressor{StateManager: model.NewStateManager(), params: p}
}

// Fit grows the tree on X and the target column y.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if dt.criterion != CriterionSquaredError {
		return errors.NewValidationError("criterion", "must be squared_error", dt.criterion)
	}
	nSamples, nFeatures, err := model.ValidateFitInput("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	dt.tree = Build(flatten(X), nFeatures, mat.Col(nil, 0, y), allRows(nSamples), dt.config(0))
	dt.MarkFitted(nFeatures, nSamples)
	return nil
}

// Predict returns the leaf mean for each row.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.CheckPredict("DecisionTreeRegressor", "Predict", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	out := mat.NewDense(n, 1, nil)
	row := make([]float64, nf)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.tree.Predict(row)[0])
	}
	return out, nil
}

// FeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if err := dt.RequireFitted("DecisionTreeRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.tree.NormalizedImportances(), nil
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.Depth()
}

// GetParams returns the hyperparameters. max_depth is nil when unlimited.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return dt.getParams()
}

// SetParams updates hyperparameters by name.
func (dt *DecisionTreeRegressor) SetParams(values map[string]interface{}) error {
	return dt.setParams(values, CriterionSquaredError)
}

type regressorState struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     uint64
	State           *model.StateManager
	Tree            *Tree
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeRegressor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(regressorState{
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		State:           dt.StateManager,
		Tree:            dt.tree,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeRegressor) GobDecode(data []byte) error {
	var s regressorState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	dt.params = defaults(CriterionSquaredError)
	dt.maxDepth = s.MaxDepth
	dt.minSamplesSplit = s.MinSamplesSplit
	dt.minSamplesLeaf = s.MinSamplesLeaf
	dt.maxFeatures = s.MaxFeatures
	dt.randomState = s.RandomState
	dt.StateManager = s.State
	if dt.StateManager == nil {
		dt.StateManager = model.NewStateManager()
	}
	dt.tree = s.Tree
	return nil
}
