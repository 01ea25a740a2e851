package svm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

// SVC is a kernel support vector classifier. Two classes use one machine;
// more classes use one-vs-rest machines. Probabilities come from Platt
// scaling of each machine's decision values, normalized across classes.
type SVC struct {
	*model.StateManager
	params

	fittedKernel kernelSpec
	support      [][]float64
	dualCoef     [][]float64
	classes      []float64
	plattA       []float64
	plattB       []float64
	nIter        int
	converged    bool
}

// NewSVC creates an RBF classifier with C=1 and gamma derived from the data.
func NewSVC(opts ...Option) *SVC {
	s := &SVC{StateManager: model.NewStateManager(), params: defaultParams()}
	for _, opt := range opts {
		opt(&s.params)
	}
	return s
}

// Fit trains the classifier.
func (s *SVC) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "SVC.Fit")

	nSamples, nFeatures, err := model.ValidateFitInput("SVC.Fit", X, y)
	if err != nil {
		return err
	}
	if err := s.params.validate(); err != nil {
		return err
	}
	classes := model.UniqueSorted(y)
	if len(classes) < 2 {
		return errors.NewValueError("SVC.Fit", fmt.Sprintf("needs at least 2 classes, got %d", len(classes)))
	}

	Xd := mat.DenseCopyOf(X)
	s.fittedKernel = kernelSpec{Name: s.params.kernel, Gamma: resolveGamma(s.params.gamma, Xd)}
	g := newGram(Xd, s.fittedKernel)

	// Binary problems train a single machine for classes[1].
	targets := classes[1:]
	if len(classes) > 2 {
		targets = classes
	}

	coefs := make([][]float64, len(targets))
	signs := make([][]float64, len(targets))
	s.converged, s.nIter = true, 0
	for m, cls := range targets {
		sign := make([]float64, nSamples)
		for i := range sign {
			sign[i] = -1
			if y.At(i, 0) == cls {
				sign[i] = 1
			}
		}
		res := solveHinge(g, sign, s.params.c, s.params.tol, s.params.maxIter)
		coefs[m], signs[m] = res.coef, sign
		s.nIter = max(s.nIter, res.iterations)
		s.converged = s.converged && res.converged
	}

	s.support, s.dualCoef = support(Xd, coefs)
	s.classes = classes

	raw := decision(Xd, s.fittedKernel, s.support, s.dualCoef)
	s.plattA = make([]float64, len(targets))
	s.plattB = make([]float64, len(targets))
	for m := range targets {
		positive := make([]bool, nSamples)
		for i := range positive {
			positive[i] = signs[m][i] > 0
		}
		s.plattA[m], s.plattB[m] = plattFit(mat.Col(nil, m, raw), positive)
	}

	s.MarkFitted(nFeatures, nSamples)
	return nil
}

// DecisionFunction returns the signed distance to each machine's margin:
// one column for two classes, one per class otherwise.
func (s *SVC) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if err := s.CheckPredict("SVC", "DecisionFunction", X); err != nil {
		return nil, err
	}
	return decision(X, s.fittedKernel, s.support, s.dualCoef), nil
}

// PredictProba returns Platt-calibrated class probabilities; columns
// follow Classes().
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	raw, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	rows, _ := raw.Dims()
	k := len(s.classes)
	proba := mat.NewDense(rows, k, nil)
	for i := 0; i < rows; i++ {
		if k == 2 {
			p := plattProb(raw.At(i, 0), s.plattA[0], s.plattB[0])
			proba.Set(i, 0, 1-p)
			proba.Set(i, 1, p)
			continue
		}
		total := 0.0
		for c := 0; c < k; c++ {
			p := plattProb(raw.At(i, c), s.plattA[c], s.plattB[c])
			proba.Set(i, c, p)
			total += p
		}
		for c := 0; c < k; c++ {
			if total > 0 {
				proba.Set(i, c, proba.At(i, c)/total)
			} else {
				proba.Set(i, c, 1/float64(k))
			}
		}
	}
	return proba, nil
}

// Predict returns the class whose machine scores highest; for two classes
// the sign of the decision value.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	raw, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	rows, _ := raw.Dims()
	if len(s.classes) > 2 {
		return tree.ArgmaxClasses(raw, s.classes), nil
	}
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		c := s.classes[0]
		if raw.At(i, 0) > 0 {
			c = s.classes[1]
		}
		out.Set(i, 0, c)
	}
	return out, nil
}

// Classes returns the sorted class labels seen during Fit.
func (s *SVC) Classes() []float64 {
	return append([]float64(nil), s.classes...)
}

// NSupport returns the number of support vectors.
func (s *SVC) NSupport() int {
	return len(s.support)
}

// NIter returns the passes the slowest machine needed.
func (s *SVC) NIter() int {
	return s.nIter
}

// ConvergenceWarning reports a solver that stopped at max_iter.
func (s *SVC) ConvergenceWarning() *errors.ConvergenceWarning {
	if !s.IsFitted() || s.converged {
		return nil
	}
	return errors.NewConvergenceWarning("SVC", s.nIter, "dual coordinate descent reached max_iter")
}

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	p := s.params.asMap()
	p["probability"] = true
	return p
}

// GobEncode implements gob.GobEncoder.
func (s *SVC) GobEncode() ([]byte, error) {
	st := &svmState{
		State:      s.StateManager,
		Fitted:     s.fittedKernel,
		Support:    s.support,
		DualCoef:   s.dualCoef,
		Classes:    s.classes,
		PlattA:     s.plattA,
		PlattB:     s.plattB,
		Iterations: s.nIter,
		Converged:  s.converged,
	}
	s.params.toState(st)
	return encodeState(st)
}

// GobDecode implements gob.GobDecoder.
func (s *SVC) GobDecode(data []byte) error {
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	s.params.fromState(st)
	s.StateManager = st.State
	s.fittedKernel, s.support, s.dualCoef = st.Fitted, st.Support, st.DualCoef
	s.classes, s.plattA, s.plattB = st.Classes, st.PlattA, st.PlattB
	s.nIter, s.converged = st.Iterations, st.Converged
	return nil
}
