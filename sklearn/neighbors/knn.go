// Package neighbors implements brute force k-nearest-neighbors estimators.
package neighbors

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/core/parallel"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

// Distance metrics.
const (
	MetricEuclidean = "euclidean"
	MetricManhattan = "manhattan"
)

// Vote weighting schemes.
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// Option configures a neighbors estimator.
type Option func(*params)

type params struct {
	nNeighbors int
	metric     string
	weights    string
}

// WithNNeighbors sets k.
func WithNNeighbors(k int) Option {
	return func(p *params) { p.nNeighbors = k }
}

// WithMetric selects MetricEuclidean or MetricManhattan.
func WithMetric(metric string) Option {
	return func(p *params) { p.metric = metric }
}

// WithWeights selects WeightsUniform or WeightsDistance.
func WithWeights(weights string) Option {
	return func(p *params) { p.weights = weights }
}

func newParams(opts []Option) params {
	p := params{nNeighbors: 5, metric: MetricEuclidean, weights: WeightsUniform}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p *params) validate(nSamples int) error {
	if p.nNeighbors < 1 {
		return errors.NewValidationError("n_neighbors", "must be >= 1", p.nNeighbors)
	}
	if p.metric != MetricEuclidean && p.metric != MetricManhattan {
		return errors.NewValidationError("metric", "must be euclidean or manhattan", p.metric)
	}
	if p.weights != WeightsUniform && p.weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be uniform or distance", p.weights)
	}
	if p.nNeighbors > nSamples {
		return errors.NewValueError("neighbors.Fit",
			fmt.Sprintf("n_neighbors=%d exceeds n_samples=%d", p.nNeighbors, nSamples))
	}
	return nil
}

func (p *params) asMap() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": p.nNeighbors,
		"metric":      p.metric,
		"weights":     p.weights,
	}
}

func (p *params) distance(a, b []float64) float64 {
	sum := 0.0
	if p.metric == MetricManhattan {
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	}
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type neighbor struct {
	index    int
	distance float64
}

// kneighbors returns the k closest training rows to x; equal distances
// keep training order.
func (p *params) kneighbors(train *mat.Dense, x []float64, buf []neighbor) []neighbor {
	n, _ := train.Dims()
	buf = buf[:0]
	for i := 0; i < n; i++ {
		buf = append(buf, neighbor{index: i, distance: p.distance(x, train.RawRowView(i))})
	}
	sort.SliceStable(buf, func(i, j int) bool {
		return buf[i].distance < buf[j].distance
	})
	return buf[:p.nNeighbors]
}

// voteWeights returns one weight per neighbor. Under distance weighting an
// exact match takes all the weight.
func (p *params) voteWeights(nb []neighbor) []float64 {
	w := make([]float64, len(nb))
	if p.weights == WeightsUniform {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	exact := false
	for _, n := range nb {
		if n.distance == 0 {
			exact = true
			break
		}
	}
	for i, n := range nb {
		switch {
		case exact && n.distance == 0:
			w[i] = 1
		case !exact:
			w[i] = 1 / n.distance
		}
	}
	return w
}

// eachQuery runs fn on every row of X with that row's neighbors.
func (p *params) eachQuery(X mat.Matrix, train *mat.Dense, fn func(i int, nb []neighbor)) {
	rows, cols := X.Dims()
	nTrain, _ := train.Dims()
	parallel.ParallelizeWithThreshold(rows, 32, func(start, end int) {
		x := make([]float64, cols)
		buf := make([]neighbor, 0, nTrain)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			fn(i, p.kneighbors(train, x, buf))
		}
	})
}

// KNeighborsClassifier votes among the k nearest training rows.
type KNeighborsClassifier struct {
	*model.StateManager
	params

	train   *mat.Dense
	codes   []int
	classes []float64
}

// NewKNeighborsClassifier creates a classifier with k=5, euclidean
// distance and uniform weights.
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	return &KNeighborsClassifier{StateManager: model.NewStateManager(), params: newParams(opts)}
}

// Fit stores the training set.
func (k *KNeighborsClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "KNeighborsClassifier.Fit")

	nSamples, nFeatures, err := model.ValidateFitInput("KNeighborsClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := k.params.validate(nSamples); err != nil {
		return err
	}
	k.classes = model.UniqueSorted(y)
	index := make(map[float64]int, len(k.classes))
	for i, c := range k.classes {
		index[c] = i
	}
	k.codes = make([]int, nSamples)
	for i := range k.codes {
		k.codes[i] = index[y.At(i, 0)]
	}
	k.train = mat.DenseCopyOf(X)

	k.MarkFitted(nFeatures, nSamples)
	return nil
}

// PredictProba returns the weighted vote share of each class; columns
// follow Classes().
func (k *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := k.CheckPredict("KNeighborsClassifier", "PredictProba", X); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	proba := mat.NewDense(rows, len(k.classes), nil)
	k.eachQuery(X, k.train, func(i int, nb []neighbor) {
		w := k.voteWeights(nb)
		total := 0.0
		for j, n := range nb {
			c := k.codes[n.index]
			proba.Set(i, c, proba.At(i, c)+w[j])
			total += w[j]
		}
		for c := range k.classes {
			proba.Set(i, c, proba.At(i, c)/total)
		}
	})
	return proba, nil
}

// Predict returns the class with the largest vote; ties go to the smaller
// class.
func (k *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := k.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxClasses(proba, k.classes), nil
}

// Classes returns the sorted class labels seen during Fit.
func (k *KNeighborsClassifier) Classes() []float64 {
	return append([]float64(nil), k.classes...)
}

// GetParams returns the hyperparameters.
func (k *KNeighborsClassifier) GetParams() map[string]interface{} {
	return k.params.asMap()
}

// KNeighborsRegressor averages the targets of the k nearest training rows.
type KNeighborsRegressor struct {
	*model.StateManager
	params

	train   *mat.Dense
	targets []float64
}

// NewKNeighborsRegressor creates a regressor with k=5, euclidean distance
// and uniform weights.
func NewKNeighborsRegressor(opts ...Option) *KNeighborsRegressor {
	return &KNeighborsRegressor{StateManager: model.NewStateManager(), params: newParams(opts)}
}

// Fit stores the training set.
func (k *KNeighborsRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "KNeighborsRegressor.Fit")

	nSamples, nFeatures, err := model.ValidateFitInput("KNeighborsRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := k.params.validate(nSamples); err != nil {
		return err
	}
	k.targets = mat.Col(nil, 0, y)
	k.train = mat.DenseCopyOf(X)

	k.MarkFitted(nFeatures, nSamples)
	return nil
}

// Predict returns the weighted mean target of each row's neighbors.
func (k *KNeighborsRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := k.CheckPredict("KNeighborsRegressor", "Predict", X); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	k.eachQuery(X, k.train, func(i int, nb []neighbor) {
		w := k.voteWeights(nb)
		sum, total := 0.0, 0.0
		for j, n := range nb {
			sum += w[j] * k.targets[n.index]
			total += w[j]
		}
		out.Set(i, 0, sum/total)
	})
	return out, nil
}

// GetParams returns the hyperparameters.
func (k *KNeighborsRegressor) GetParams() map[string]interface{} {
	return k.params.asMap()
}

type knnState struct {
	NNeighbors int
	Metric     string
	Weights    string
	State      *model.StateManager
	Train      []float64
	Features   int
	Codes      []int
	Classes    []float64
	Targets    []float64
}

func (p *params) encode(st *knnState, state *model.StateManager, train *mat.Dense) ([]byte, error) {
	st.NNeighbors, st.Metric, st.Weights = p.nNeighbors, p.metric, p.weights
	st.State = state
	if train != nil {
		raw := mat.DenseCopyOf(train).RawMatrix()
		st.Train, st.Features = raw.Data, raw.Cols
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(st)
	return buf.Bytes(), err
}

func decodeKNN(data []byte) (*knnState, *mat.Dense, error) {
	var st knnState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return nil, nil, err
	}
	if st.State == nil {
		st.State = model.NewStateManager()
	}
	var train *mat.Dense
	if st.Features > 0 && len(st.Train) > 0 {
		train = mat.NewDense(len(st.Train)/st.Features, st.Features, st.Train)
	}
	return &st, train, nil
}

// GobEncode implements gob.GobEncoder.
func (k *KNeighborsClassifier) GobEncode() ([]byte, error) {
	return k.params.encode(&knnState{Codes: k.codes, Classes: k.classes}, k.StateManager, k.train)
}

// GobDecode implements gob.GobDecoder.
func (k *KNeighborsClassifier) GobDecode(data []byte) error {
	st, train, err := decodeKNN(data)
	if err != nil {
		return err
	}
	k.params = params{nNeighbors: st.NNeighbors, metric: st.Metric, weights: st.Weights}
	k.StateManager, k.train = st.State, train
	k.codes, k.classes = st.Codes, st.Classes
	return nil
}

// GobEncode implements gob.GobEncoder.
func (k *KNeighborsRegressor) GobEncode() ([]byte, error) {
	return k.params.encode(&knnState{Targets: k.targets}, k.StateManager, k.train)
}

// GobDecode implements gob.GobDecoder.
func (k *KNeighborsRegressor) GobDecode(data []byte) error {
	st, train, err := decodeKNN(data)
	if err != nil {
		return err
	}
	k.params = params{nNeighbors: st.NNeighbors, metric: st.Metric, weights: st.Weights}
	k.StateManager, k.train = st.State, train
	k.targets = st.Targets
	return nil
}
