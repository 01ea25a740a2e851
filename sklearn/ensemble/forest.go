// Package ensemble implements random forests and gradient boosted trees on
// top of the CART builder in sklearn/tree.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/core/parallel"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

// Max features strategies.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// Option configures an ensemble model.
type Option func(*Params)

// Params holds the hyperparameters shared by the ensemble models. Fields a
// model does not use are ignored.
type Params struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	LearningRate    float64
	RandomState     uint64
}

// WithNEstimators sets the number of trees or boosting stages.
func WithNEstimators(n int) Option {
	return func(p *Params) { p.NEstimators = n }
}

// WithMaxDepth limits tree depth; tree.Unlimited grows trees fully.
func WithMaxDepth(depth int) Option {
	return func(p *Params) { p.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(p *Params) { p.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *Params) { p.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature sampling strategy.
func WithMaxFeatures(strategy string) Option {
	return func(p *Params) { p.MaxFeatures = strategy }
}

// WithBootstrap toggles bootstrap sampling of rows per tree.
func WithBootstrap(b bool) Option {
	return func(p *Params) { p.Bootstrap = b }
}

// WithLearningRate sets the shrinkage applied to each boosting stage.
func WithLearningRate(lr float64) Option {
	return func(p *Params) { p.LearningRate = lr }
}

// WithRandomState seeds row and feature sampling.
func WithRandomState(seed uint64) Option {
	return func(p *Params) { p.RandomState = seed }
}

func (p *Params) validate() error {
	if p.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", p.NEstimators)
	}
	switch p.MaxFeatures {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
	default:
		return errors.NewValidationError("max_features", "must be sqrt, log2 or all", p.MaxFeatures)
	}
	return nil
}

func (p *Params) maxFeatureCount(nFeatures int) int {
	switch p.MaxFeatures {
	case MaxFeaturesSqrt:
		return max(1, int(math.Sqrt(float64(nFeatures))))
	case MaxFeaturesLog2:
		return max(1, int(math.Log2(float64(nFeatures))))
	default:
		return 0
	}
}

func (p *Params) buildConfig(criterion string, nClasses, nFeatures int, rng *rand.Rand) tree.BuildConfig {
	return tree.BuildConfig{
		Criterion:       criterion,
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		MinSamplesLeaf:  p.MinSamplesLeaf,
		MaxFeatures:     p.maxFeatureCount(nFeatures),
		NClasses:        nClasses,
		Rng:             rng,
	}
}

func (p *Params) asMap() map[string]interface{} {
	var depth interface{}
	if p.MaxDepth >= 0 {
		depth = p.MaxDepth
	}
	return map[string]interface{}{
		"n_estimators":      p.NEstimators,
		"max_depth":         depth,
		"min_samples_split": p.MinSamplesSplit,
		"min_samples_leaf":  p.MinSamplesLeaf,
		"max_features":      p.MaxFeatures,
		"random_state":      p.RandomState,
	}
}

// treeSeeds derives one independent seed per tree from the model seed so
// that parallel fitting is deterministic.
func treeSeeds(seed uint64, n int) []uint64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}
	return seeds
}

func bootstrapRows(n int, bootstrap bool, rng *rand.Rand) []int {
	rows := make([]int, n)
	for i := range rows {
		if bootstrap {
			rows[i] = rng.IntN(n)
		} else {
			rows[i] = i
		}
	}
	return rows
}

// meanImportances averages the normalized importances of trees that split
// at least once and renormalizes the result.
func meanImportances(trees []*tree.Tree, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for _, t := range trees {
		if len(t.Nodes) < 2 {
			continue
		}
		used++
		for j, v := range t.NormalizedImportances() {
			out[j] += v
		}
	}
	if used == 0 {
		return out
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	for j := range out {
		out[j] /= total
	}
	return out
}

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

// fitForest grows n trees in parallel, each on its own bootstrap replica.
func fitForest(p *Params, data []float64, nSamples, nFeatures int, y []float64, criterion string, nClasses int) ([]*tree.Tree, error) {
	seeds := treeSeeds(p.RandomState, p.NEstimators)
	trees := make([]*tree.Tree, p.NEstimators)
	err := parallel.ForEach(p.NEstimators, func(i int) (err error) {
		defer errors.Recover(&err, "forest.fitTree")
		rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
		rows := bootstrapRows(nSamples, p.Bootstrap, rng)
		trees[i] = tree.Build(data, nFeatures, y, rows, p.buildConfig(criterion, nClasses, nFeatures, rng))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trees, nil
}

// RandomForestClassifier averages the class distributions of bootstrapped
// gini trees.
type RandomForestClassifier struct {
	*model.StateManager
	Params

	trees       []*tree.Tree
	classes     []float64
	importances []float64
}

// NewRandomForestClassifier creates a forest of 100 fully grown trees
// sampling sqrt(n_features) features per split.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	p := Params{
		NEstimators:     100,
		MaxDepth:        tree.Unlimited,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesSqrt,
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &RandomForestClassifier{StateManager: model.NewStateManager(), Params: p}
}

// Fit grows the forest.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.ValidateFitInput("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes := model.UniqueSorted(y)
	codes := tree.EncodeClasses(y, classes)

	trees, err := fitForest(&rf.Params, flatten(X), nSamples, nFeatures, codes, tree.CriterionGini, len(classes))
	if err != nil {
		return err
	}
	rf.trees = trees
	rf.classes = classes
	rf.importances = meanImportances(trees, nFeatures)
	rf.MarkFitted(nFeatures, nSamples)
	return nil
}

// PredictProba averages the leaf class distributions over all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.CheckPredict("RandomForestClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	k := len(rf.classes)
	out := mat.NewDense(n, k, nil)
	parallel.ParallelizeWithThreshold(n, 256, func(start, end int) {
		row := make([]float64, nf)
		acc := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			for c := range acc {
				acc[c] = 0
			}
			for _, t := range rf.trees {
				for c, v := range t.Predict(row) {
					acc[c] += v
				}
			}
			for c := range acc {
				acc[c] /= float64(len(rf.trees))
			}
			out.SetRow(i, acc)
		}
	})
	return out, nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxClasses(proba, rf.classes), nil
}

// Classes returns the sorted class values seen during Fit.
func (rf *RandomForestClassifier) Classes() []float64 {
	return append([]float64(nil), rf.classes...)
}

// FeatureImportances returns the mean decrease in impurity per feature.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.RequireFitted("RandomForestClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.importances...), nil
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	m := rf.asMap()
	m["bootstrap"] = rf.Bootstrap
	return m
}

// NTrees returns the number of fitted trees.
func (rf *RandomForestClassifier) NTrees() int { return len(rf.trees) }

// RandomForestRegressor averages bootstrapped squared error trees.
type RandomForestRegressor struct {
	*model.StateManager
	Params

	trees       []*tree.Tree
	importances []float64
}

// NewRandomForestRegressor creates a forest of 100 fully grown trees
// considering every feature at each split.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	p := Params{
		NEstimators:     100,
		MaxDepth:        tree.Unlimited,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesAll,
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &RandomForestRegressor{StateManager: model.NewStateManager(), Params: p}
}

// Fit grows the forest.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.ValidateFitInput("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	trees, err := fitForest(&rf.Params, flatten(X), nSamples, nFeatures, mat.Col(nil, 0, y), tree.CriterionSquaredError, 0)
	if err != nil {
		return err
	}
	rf.trees = trees
	rf.importances = meanImportances(trees, nFeatures)
	rf.MarkFitted(nFeatures, nSamples)
	return nil
}

// Predict averages the tree predictions.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.CheckPredict("RandomForestRegressor", "Predict", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	out := mat.NewDense(n, 1, nil)
	parallel.ParallelizeWithThreshold(n, 256, func(start, end int) {
		row := make([]float64, nf)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for _, t := range rf.trees {
				sum += t.Predict(row)[0]
			}
			out.Set(i, 0, sum/float64(len(rf.trees)))
		}
	})
	return out, nil
}

// FeatureImportances returns the mean decrease in impurity per feature.
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if err := rf.RequireFitted("RandomForestRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.importances...), nil
}

// GetParams returns the hyperparameters.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	m := rf.asMap()
	m["bootstrap"] = rf.Bootstrap
	return m
}

// NTrees returns the number of fitted trees.
func (rf *RandomForestRegressor) NTrees() int { return len(rf.trees) }

type forestState struct {
	Params      Params
	State       *model.StateManager
	Trees       []*tree.Tree
	Classes     []float64
	Importances []float64
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes(), err
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func stateOrNew(s *model.StateManager) *model.StateManager {
	if s == nil {
		return model.NewStateManager()
	}
	return s
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	return encodeGob(forestState{Params: rf.Params, State: rf.StateManager, Trees: rf.trees, Classes: rf.classes, Importances: rf.importances})
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestState
	if err := decodeGob(data, &s); err != nil {
		return err
	}
	rf.Params, rf.StateManager, rf.trees, rf.classes, rf.importances = s.Params, stateOrNew(s.State), s.Trees, s.Classes, s.Importances
	return nil
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestRegressor) GobEncode() ([]byte, error) {
	return encodeGob(forestState{Params: rf.Params, State: rf.StateManager, Trees: rf.trees, Importances: rf.importances})
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestRegressor) GobDecode(data []byte) error {
	var s forestState
	if err := decodeGob(data, &s); err != nil {
		return err
	}
	rf.Params, rf.StateManager, rf.trees, rf.importances = s.Params, stateOrNew(s.State), s.Trees, s.Importances
	return nil
}
