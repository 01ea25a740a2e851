package svm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// SVR is epsilon-insensitive kernel support vector regression.
type SVR struct {
	*model.StateManager
	params

	fittedKernel kernelSpec
	support      [][]float64
	dualCoef     []float64
	nIter        int
	converged    bool
}

// NewSVR creates an RBF regressor with C=1, epsilon=0.1 and gamma derived
// from the data.
func NewSVR(opts ...Option) *SVR {
	s := &SVR{StateManager: model.NewStateManager(), params: defaultParams()}
	for _, opt := range opts {
		opt(&s.params)
	}
	return s
}

// Fit trains the regressor.
func (s *SVR) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "SVR.Fit")

	nSamples, nFeatures, err := model.ValidateFitInput("SVR.Fit", X, y)
	if err != nil {
		return err
	}
	if err := s.params.validate(); err != nil {
		return err
	}

	Xd := mat.DenseCopyOf(X)
	s.fittedKernel = kernelSpec{Name: s.params.kernel, Gamma: resolveGamma(s.params.gamma, Xd)}
	g := newGram(Xd, s.fittedKernel)

	res := solveEpsilonInsensitive(g, mat.Col(nil, 0, y), s.params.c, s.params.epsilon, s.params.tol, s.params.maxIter)
	sv, dual := support(Xd, [][]float64{res.coef})
	s.support, s.dualCoef = sv, dual[0]
	s.nIter, s.converged = res.iterations, res.converged

	s.MarkFitted(nFeatures, nSamples)
	return nil
}

// Predict returns the regression estimate for every row of X.
func (s *SVR) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.CheckPredict("SVR", "Predict", X); err != nil {
		return nil, err
	}
	return decision(X, s.fittedKernel, s.support, [][]float64{s.dualCoef}), nil
}

// NSupport returns the number of support vectors.
func (s *SVR) NSupport() int {
	return len(s.support)
}

// ConvergenceWarning reports a solver that stopped at max_iter.
func (s *SVR) ConvergenceWarning() *errors.ConvergenceWarning {
	if !s.IsFitted() || s.converged {
		return nil
	}
	return errors.NewConvergenceWarning("SVR", s.nIter, "dual coordinate descent reached max_iter")
}

// GetParams returns the hyperparameters.
func (s *SVR) GetParams() map[string]interface{} {
	p := s.params.asMap()
	p["epsilon"] = s.params.epsilon
	return p
}

// GobEncode implements gob.GobEncoder.
func (s *SVR) GobEncode() ([]byte, error) {
	st := &svmState{
		State:      s.StateManager,
		Fitted:     s.fittedKernel,
		Support:    s.support,
		DualCoef:   [][]float64{s.dualCoef},
		Iterations: s.nIter,
		Converged:  s.converged,
	}
	s.params.toState(st)
	return encodeState(st)
}

// GobDecode implements gob.GobDecoder.
func (s *SVR) GobDecode(data []byte) error {
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	s.params.fromState(st)
	s.StateManager = st.State
	s.fittedKernel, s.support = st.Fitted, st.Support
	s.dualCoef = nil
	if len(st.DualCoef) == 1 {
		s.dualCoef = st.DualCoef[0]
	}
	s.nIter, s.converged = st.Iterations, st.Converged
	return nil
}
