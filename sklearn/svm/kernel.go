// Package svm implements kernel support vector machines for classification
// and regression, trained by dual coordinate descent. The bias is folded
// into the kernel (K(x, z) + 1), so the dual has only box constraints.
package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Kernel names.
const (
	KernelRBF    = "rbf"
	KernelLinear = "linear"
)

// GammaScale selects gamma = 1 / (n_features * Var(X)).
const GammaScale = 0.0

// kernelSpec is a fitted kernel: the name and the resolved gamma.
type kernelSpec struct {
	Name  string
	Gamma float64
}

func resolveGamma(gamma float64, X *mat.Dense) float64 {
	if gamma > 0 {
		return gamma
	}
	r, c := X.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, X.RawRowView(i)...)
	}
	mean := floats.Sum(data) / float64(len(data))
	v := 0.0
	for _, x := range data {
		v += (x - mean) * (x - mean)
	}
	v /= float64(len(data))
	if v == 0 {
		return 1
	}
	return 1 / (float64(c) * v)
}

// eval returns K(a, b) + 1.
func (k kernelSpec) eval(a, b []float64) float64 {
	switch k.Name {
	case KernelLinear:
		return floats.Dot(a, b) + 1
	default:
		d := 0.0
		for i := range a {
			t := a[i] - b[i]
			d += t * t
		}
		return math.Exp(-k.Gamma*d) + 1
	}
}

func validateKernel(name string) error {
	if name != KernelRBF && name != KernelLinear {
		return errors.NewValidationError("kernel", "must be rbf or linear", name)
	}
	return nil
}

// maxCachedRows bounds the number of kernel rows kept in memory during Fit.
const maxCachedRows = 2048

// gram serves rows of the training kernel matrix, caching the first
// maxCachedRows rows it computes.
type gram struct {
	X    *mat.Dense
	k    kernelSpec
	rows [][]float64
	diag []float64
	used int
}

func newGram(X *mat.Dense, k kernelSpec) *gram {
	n, _ := X.Dims()
	g := &gram{X: X, k: k, rows: make([][]float64, n), diag: make([]float64, n)}
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		g.diag[i] = k.eval(xi, xi)
	}
	return g
}

func (g *gram) row(i int) []float64 {
	if g.rows[i] != nil {
		return g.rows[i]
	}
	n, _ := g.X.Dims()
	out := make([]float64, n)
	xi := g.X.RawRowView(i)
	for j := 0; j < n; j++ {
		out[j] = g.k.eval(xi, g.X.RawRowView(j))
	}
	if g.used < maxCachedRows {
		g.rows[i] = out
		g.used++
	}
	return out
}
