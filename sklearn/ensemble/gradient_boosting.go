package ensemble

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

// lossFunction is the objective a boosting stage descends. Residuals are the
// negative gradients the stage trees are fitted to; LeafValue is the Newton
// step applied to the samples in one leaf.
type lossFunction interface {
	Residual(target, raw float64) float64
	LeafValue(residuals []float64) float64
	Name() string
}

type squaredLoss struct{}

func (squaredLoss) Residual(target, raw float64) float64 { return target - raw }

func (squaredLoss) LeafValue(residuals []float64) float64 {
	return floats.Sum(residuals) / float64(len(residuals))
}

func (squaredLoss) Name() string { return "squared_error" }

// logLoss is the binomial deviance on a single raw score.
type logLoss struct{}

func (logLoss) Residual(target, raw float64) float64 { return target - sigmoid(raw) }

func (logLoss) LeafValue(residuals []float64) float64 {
	num, den := 0.0, 0.0
	for _, r := range residuals {
		num += r
		p := math.Abs(r)
		den += p * (1 - p)
	}
	if den < 1e-150 {
		return 0
	}
	return num / den
}

func (logLoss) Name() string { return "log_loss" }

// multinomialLoss is the softmax deviance with one raw score per class. The
// residual for class k is y_k - p_k and is computed by the caller.
type multinomialLoss struct{ k int }

func (multinomialLoss) Residual(target, prob float64) float64 { return target - prob }

func (m multinomialLoss) LeafValue(residuals []float64) float64 {
	num, den := 0.0, 0.0
	for _, r := range residuals {
		num += r
		p := math.Abs(r)
		den += p * (1 - p)
	}
	if den < 1e-150 {
		return 0
	}
	return float64(m.k-1) / float64(m.k) * num / den
}

func (multinomialLoss) Name() string { return "log_loss" }

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func boostingParams(opts []Option) Params {
	p := Params{
		NEstimators:     100,
		MaxDepth:        3,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesAll,
		LearningRate:    0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p *Params) validateBoosting() error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	return nil
}

// fitStage grows one regression tree on residuals and replaces its leaf
// values with the loss's Newton step. raw is advanced in place by
// learningRate times the stage prediction.
func fitStage(p *Params, loss lossFunction, data []float64, nSamples, nFeatures int, residuals, raw []float64, rng *rand.Rand) *tree.Tree {
	rows := bootstrapRows(nSamples, false, rng)
	t := tree.Build(data, nFeatures, residuals, rows, p.buildConfig(tree.CriterionSquaredError, 0, nFeatures, rng))

	leafOf := make([]int, nSamples)
	byLeaf := make(map[int][]float64)
	for i := 0; i < nSamples; i++ {
		leaf := t.Apply(data[i*nFeatures : (i+1)*nFeatures])
		leafOf[i] = leaf
		byLeaf[leaf] = append(byLeaf[leaf], residuals[i])
	}
	for leaf, res := range byLeaf {
		t.Nodes[leaf].Value = []float64{loss.LeafValue(res)}
	}
	for i := 0; i < nSamples; i++ {
		raw[i] += p.LearningRate * t.Nodes[leafOf[i]].Value[0]
	}
	return t
}

// GradientBoostingRegressor fits shallow regression trees to the residuals
// of the running prediction under squared loss.
type GradientBoostingRegressor struct {
	*model.StateManager
	Params

	init        float64
	stages      []*tree.Tree
	importances []float64
}

// NewGradientBoostingRegressor creates a model with 100 stages of depth-3
// trees and learning rate 0.1.
func NewGradientBoostingRegressor(opts ...Option) *GradientBoostingRegressor {
	return &GradientBoostingRegressor{StateManager: model.NewStateManager(), Params: boostingParams(opts)}
}

// Fit runs the boosting stages.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	if err := gb.validateBoosting(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.ValidateFitInput("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	data := flatten(X)
	target := mat.Col(nil, 0, y)
	loss := squaredLoss{}
	rng := rand.New(rand.NewPCG(gb.RandomState, gb.RandomState))

	gb.init = floats.Sum(target) / float64(nSamples)
	raw := make([]float64, nSamples)
	for i := range raw {
		raw[i] = gb.init
	}
	residuals := make([]float64, nSamples)
	gb.stages = make([]*tree.Tree, 0, gb.NEstimators)
	for s := 0; s < gb.NEstimators; s++ {
		for i := range residuals {
			residuals[i] = loss.Residual(target[i], raw[i])
		}
		gb.stages = append(gb.stages, fitStage(&gb.Params, loss, data, nSamples, nFeatures, residuals, raw, rng))
	}
	if err := errors.CheckVector("GradientBoostingRegressor.Fit", raw, gb.NEstimators); err != nil {
		return err
	}

	gb.importances = meanImportances(gb.stages, nFeatures)
	gb.MarkFitted(nFeatures, nSamples)
	return nil
}

// Predict returns the initial estimate plus the shrunken stage predictions.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := gb.CheckPredict("GradientBoostingRegressor", "Predict", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	out := mat.NewDense(n, 1, nil)
	row := make([]float64, nf)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		v := gb.init
		for _, t := range gb.stages {
			v += gb.LearningRate * t.Predict(row)[0]
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// FeatureImportances returns the mean decrease in impurity over all stages.
func (gb *GradientBoostingRegressor) FeatureImportances() ([]float64, error) {
	if err := gb.RequireFitted("GradientBoostingRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), gb.importances...), nil
}

// GetParams returns the hyperparameters.
func (gb *GradientBoostingRegressor) GetParams() map[string]interface{} {
	m := gb.asMap()
	m["learning_rate"] = gb.LearningRate
	m["loss"] = squaredLoss{}.Name()
	return m
}

// GradientBoostingClassifier boosts trees under log loss. Two classes use
// a single raw score per sample; more classes use one score and one tree
// per class and stage, combined with a softmax.
type GradientBoostingClassifier struct {
	*model.StateManager
	Params

	classes []float64
	init    []float64
	// stages[s][k] is the tree for class k at stage s; binary models have a
	// single tree per stage.
	stages      [][]*tree.Tree
	importances []float64
}

// NewGradientBoostingClassifier creates a model with 100 stages of depth-3
// trees and learning rate 0.1.
func NewGradientBoostingClassifier(opts ...Option) *GradientBoostingClassifier {
	return &GradientBoostingClassifier{StateManager: model.NewStateManager(), Params: boostingParams(opts)}
}

func (gb *GradientBoostingClassifier) nScores() int {
	if len(gb.classes) == 2 {
		return 1
	}
	return len(gb.classes)
}

// Fit runs the boosting stages.
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingClassifier.Fit")

	if err := gb.validateBoosting(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.ValidateFitInput("GradientBoostingClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes := model.UniqueSorted(y)
	if len(classes) < 2 {
		return errors.NewValueError("GradientBoostingClassifier.Fit", "needs samples of at least 2 classes in the data")
	}
	gb.classes = classes
	codes := tree.EncodeClasses(y, classes)
	data := flatten(X)
	rng := rand.New(rand.NewPCG(gb.RandomState, gb.RandomState))
	k := gb.nScores()

	prior := make([]float64, len(classes))
	for _, c := range codes {
		prior[int(c)]++
	}
	floats.Scale(1/float64(nSamples), prior)

	gb.init = make([]float64, k)
	if k == 1 {
		gb.init[0] = math.Log(prior[1] / prior[0])
	} else {
		for c := range gb.init {
			gb.init[c] = math.Log(math.Max(prior[c], 1e-300))
		}
	}

	raw := make([][]float64, k)
	for c := range raw {
		raw[c] = make([]float64, nSamples)
		for i := range raw[c] {
			raw[c][i] = gb.init[c]
		}
	}

	residuals := make([]float64, nSamples)
	probs := make([][]float64, nSamples)
	scores := make([]float64, k)
	gb.stages = make([][]*tree.Tree, 0, gb.NEstimators)
	var all []*tree.Tree
	for s := 0; s < gb.NEstimators; s++ {
		stage := make([]*tree.Tree, k)
		if k == 1 {
			loss := logLoss{}
			for i := range residuals {
				residuals[i] = loss.Residual(codes[i], raw[0][i])
			}
			stage[0] = fitStage(&gb.Params, loss, data, nSamples, nFeatures, residuals, raw[0], rng)
		} else {
			loss := multinomialLoss{k: k}
			for i := 0; i < nSamples; i++ {
				for c := 0; c < k; c++ {
					scores[c] = raw[c][i]
				}
				probs[i] = errors.Softmax(probs[i], scores)
			}
			for c := 0; c < k; c++ {
				for i := range residuals {
					target := 0.0
					if int(codes[i]) == c {
						target = 1
					}
					residuals[i] = loss.Residual(target, probs[i][c])
				}
				stage[c] = fitStage(&gb.Params, loss, data, nSamples, nFeatures, residuals, raw[c], rng)
			}
		}
		gb.stages = append(gb.stages, stage)
		all = append(all, stage...)
	}
	for c := range raw {
		if err := errors.CheckVector("GradientBoostingClassifier.Fit", raw[c], gb.NEstimators); err != nil {
			return err
		}
	}

	gb.importances = meanImportances(all, nFeatures)
	gb.MarkFitted(nFeatures, nSamples)
	return nil
}

// DecisionFunction returns the raw scores: one column for binary models,
// one per class otherwise.
func (gb *GradientBoostingClassifier) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := gb.CheckPredict("GradientBoostingClassifier", "DecisionFunction", X); err != nil {
		return nil, err
	}
	n, nf := X.Dims()
	k := gb.nScores()
	out := mat.NewDense(n, k, nil)
	row := make([]float64, nf)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		for c := 0; c < k; c++ {
			v := gb.init[c]
			for _, stage := range gb.stages {
				v += gb.LearningRate * stage[c].Predict(row)[0]
			}
			out.Set(i, c, v)
		}
	}
	return out, nil
}

// PredictProba converts the raw scores to class probabilities.
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	raw, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, k := raw.Dims()
	out := mat.NewDense(n, len(gb.classes), nil)
	scores := make([]float64, k)
	probs := make([]float64, k)
	for i := 0; i < n; i++ {
		if k == 1 {
			p := sigmoid(raw.At(i, 0))
			out.Set(i, 0, 1-p)
			out.Set(i, 1, p)
			continue
		}
		mat.Row(scores, i, raw)
		out.SetRow(i, errors.Softmax(probs, scores))
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxClasses(proba, gb.classes), nil
}

// Classes returns the sorted class values seen during Fit.
func (gb *GradientBoostingClassifier) Classes() []float64 {
	return append([]float64(nil), gb.classes...)
}

// FeatureImportances returns the mean decrease in impurity over all trees.
func (gb *GradientBoostingClassifier) FeatureImportances() ([]float64, error) {
	if err := gb.RequireFitted("GradientBoostingClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), gb.importances...), nil
}

// GetParams returns the hyperparameters.
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	m := gb.asMap()
	m["learning_rate"] = gb.LearningRate
	m["loss"] = logLoss{}.Name()
	return m
}

type boostingState struct {
	Params      Params
	State       *model.StateManager
	Classes     []float64
	Init        []float64
	Stages      [][]*tree.Tree
	Importances []float64
}

// GobEncode implements gob.GobEncoder.
func (gb *GradientBoostingRegressor) GobEncode() ([]byte, error) {
	stages := make([][]*tree.Tree, len(gb.stages))
	for i, t := range gb.stages {
		stages[i] = []*tree.Tree{t}
	}
	return encodeGob(boostingState{Params: gb.Params, State: gb.StateManager, Init: []float64{gb.init}, Stages: stages, Importances: gb.importances})
}

// GobDecode implements gob.GobDecoder.
func (gb *GradientBoostingRegressor) GobDecode(data []byte) error {
	var s boostingState
	if err := decodeGob(data, &s); err != nil {
		return err
	}
	gb.Params, gb.StateManager, gb.importances = s.Params, stateOrNew(s.State), s.Importances
	if len(s.Init) == 1 {
		gb.init = s.Init[0]
	}
	gb.stages = make([]*tree.Tree, len(s.Stages))
	for i, stage := range s.Stages {
		gb.stages[i] = stage[0]
	}
	return nil
}

// GobEncode implements gob.GobEncoder.
func (gb *GradientBoostingClassifier) GobEncode() ([]byte, error) {
	return encodeGob(boostingState{Params: gb.Params, State: gb.StateManager, Classes: gb.classes, Init: gb.init, Stages: gb.stages, Importances: gb.importances})
}

// GobDecode implements gob.GobDecoder.
func (gb *GradientBoostingClassifier) GobDecode(data []byte) error {
	var s boostingState
	if err := decodeGob(data, &s); err != nil {
		return err
	}
	gb.Params, gb.StateManager, gb.classes, gb.init, gb.stages, gb.importances =
		s.Params, stateOrNew(s.State), s.Classes, s.Init, s.Stages, s.Importances
	return nil
}
