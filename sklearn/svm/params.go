package svm

import (
	"bytes"
	"encoding/gob"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Option configures an SVC or SVR.
type Option func(*params)

type params struct {
	kernel  string
	c       float64
	gamma   float64
	epsilon float64
	tol     float64
	maxIter int
}

func defaultParams() params {
	return params{
		kernel:  KernelRBF,
		c:       1.0,
		gamma:   GammaScale,
		epsilon: 0.1,
		tol:     1e-3,
		maxIter: 1000,
	}
}

// WithKernel selects the kernel, KernelRBF or KernelLinear.
func WithKernel(name string) Option {
	return func(p *params) { p.kernel = name }
}

// WithC sets the inverse regularization strength.
func WithC(c float64) Option {
	return func(p *params) { p.c = c }
}

// WithGamma sets the RBF width. GammaScale derives it from the data.
func WithGamma(gamma float64) Option {
	return func(p *params) { p.gamma = gamma }
}

// WithEpsilon sets the width of the SVR insensitive tube.
func WithEpsilon(eps float64) Option {
	return func(p *params) { p.epsilon = eps }
}

// WithTol sets the stopping tolerance of the dual solver.
func WithTol(tol float64) Option {
	return func(p *params) { p.tol = tol }
}

// WithMaxIter caps the number of passes over the training set.
func WithMaxIter(n int) Option {
	return func(p *params) { p.maxIter = n }
}

func (p *params) validate() error {
	if err := validateKernel(p.kernel); err != nil {
		return err
	}
	if p.c <= 0 {
		return errors.NewValidationError("C", "must be positive", p.c)
	}
	if p.gamma < 0 {
		return errors.NewValidationError("gamma", "must be non-negative", p.gamma)
	}
	if p.epsilon < 0 {
		return errors.NewValidationError("epsilon", "must be non-negative", p.epsilon)
	}
	if p.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", p.tol)
	}
	if p.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", p.maxIter)
	}
	return nil
}

func (p *params) asMap() map[string]interface{} {
	var gamma interface{} = "scale"
	if p.gamma > 0 {
		gamma = p.gamma
	}
	return map[string]interface{}{
		"kernel":   p.kernel,
		"C":        p.c,
		"gamma":    gamma,
		"tol":      p.tol,
		"max_iter": p.maxIter,
	}
}

// svmState is the gob form shared by SVC and SVR.
type svmState struct {
	Kernel  string
	C       float64
	Gamma   float64
	Epsilon float64
	Tol     float64
	MaxIter int

	State      *model.StateManager
	Fitted     kernelSpec
	Support    [][]float64
	DualCoef   [][]float64
	Classes    []float64
	PlattA     []float64
	PlattB     []float64
	Iterations int
	Converged  bool
}

func (p *params) toState(s *svmState) {
	s.Kernel, s.C, s.Gamma = p.kernel, p.c, p.gamma
	s.Epsilon, s.Tol, s.MaxIter = p.epsilon, p.tol, p.maxIter
}

func (p *params) fromState(s *svmState) {
	p.kernel, p.c, p.gamma = s.Kernel, s.C, s.Gamma
	p.epsilon, p.tol, p.maxIter = s.Epsilon, s.Tol, s.MaxIter
}

func encodeState(s *svmState) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes(), err
}

func decodeState(data []byte) (*svmState, error) {
	var s svmState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}
	return &s, nil
}
