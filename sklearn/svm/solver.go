package svm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/parallel"
)

// dualResult is the outcome of one dual coordinate descent run.
type dualResult struct {
	coef       []float64
	iterations int
	converged  bool
}

// solveHinge minimizes 0.5·aᵀQa − Σa subject to 0 ≤ a ≤ c, where
// Q_ij = y_i·y_j·K(x_i, x_j). It returns y_i·a_i as the dual coefficients.
func solveHinge(g *gram, y []float64, c, tol float64, maxIter int) dualResult {
	n := len(y)
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	res := dualResult{}
	for res.iterations = 1; res.iterations <= maxIter; res.iterations++ {
		maxViol := 0.0
		for i := 0; i < n; i++ {
			gi := grad[i]
			pg := gi
			switch {
			case alpha[i] == 0:
				pg = math.Min(gi, 0)
			case alpha[i] == c:
				pg = math.Max(gi, 0)
			}
			maxViol = math.Max(maxViol, math.Abs(pg))
			if pg == 0 {
				continue
			}
			old := alpha[i]
			alpha[i] = math.Min(math.Max(old-gi/g.diag[i], 0), c)
			d := alpha[i] - old
			if d == 0 {
				continue
			}
			row := g.row(i)
			for j := 0; j < n; j++ {
				grad[j] += d * y[i] * y[j] * row[j]
			}
		}
		if maxViol < tol {
			res.converged = true
			break
		}
	}
	res.iterations = min(res.iterations, maxIter)

	res.coef = make([]float64, n)
	for i := range alpha {
		res.coef[i] = alpha[i] * y[i]
	}
	return res
}

// solveEpsilonInsensitive minimizes 0.5·bᵀKb − yᵀb + eps·|b|₁ subject to
// |b_i| ≤ c, the dual of epsilon-insensitive regression.
func solveEpsilonInsensitive(g *gram, y []float64, c, eps, tol float64, maxIter int) dualResult {
	n := len(y)
	beta := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -y[i]
	}

	res := dualResult{}
	for res.iterations = 1; res.iterations <= maxIter; res.iterations++ {
		maxStep := 0.0
		for i := 0; i < n; i++ {
			q := g.diag[i]
			z := beta[i] - grad[i]/q
			shrink := eps / q
			next := 0.0
			switch {
			case z > shrink:
				next = z - shrink
			case z < -shrink:
				next = z + shrink
			}
			next = math.Min(math.Max(next, -c), c)
			d := next - beta[i]
			if d == 0 {
				continue
			}
			beta[i] = next
			maxStep = math.Max(maxStep, math.Abs(d)*q)
			row := g.row(i)
			for j := 0; j < n; j++ {
				grad[j] += d * row[j]
			}
		}
		if maxStep < tol {
			res.converged = true
			break
		}
	}
	res.iterations = min(res.iterations, maxIter)
	res.coef = beta
	return res
}

// support keeps the rows of X with a non-zero coefficient in any machine
// and returns them with the matching coefficient columns.
func support(X *mat.Dense, coefs [][]float64) ([][]float64, [][]float64) {
	n, _ := X.Dims()
	var rows []int
	for i := 0; i < n; i++ {
		for _, c := range coefs {
			if c[i] != 0 {
				rows = append(rows, i)
				break
			}
		}
	}
	sv := make([][]float64, len(rows))
	dual := make([][]float64, len(coefs))
	for m := range dual {
		dual[m] = make([]float64, len(rows))
	}
	for s, i := range rows {
		sv[s] = append([]float64(nil), X.RawRowView(i)...)
		for m, c := range coefs {
			dual[m][s] = c[i]
		}
	}
	return sv, dual
}

// decision evaluates every machine on every row of X.
func decision(X mat.Matrix, k kernelSpec, sv [][]float64, dual [][]float64) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, len(dual), nil)
	parallel.ParallelizeWithThreshold(rows, 64, func(start, end int) {
		x := make([]float64, cols)
		kv := make([]float64, len(sv))
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			for s, v := range sv {
				kv[s] = k.eval(v, x)
			}
			for m, coef := range dual {
				f := 0.0
				for s, a := range coef {
					f += a * kv[s]
				}
				out.Set(i, m, f)
			}
		}
	})
	return out
}

// plattFit fits P(y=1|f) = 1/(1+exp(A·f+B)) by Newton's method with a
// backtracking line search on the regularized targets of Platt (2000).
func plattFit(f []float64, positive []bool) (a, b float64) {
	var prior1, prior0 float64
	for _, p := range positive {
		if p {
			prior1++
		} else {
			prior0++
		}
	}
	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	t := make([]float64, len(f))
	for i, p := range positive {
		t[i] = lo
		if p {
			t[i] = hi
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
	)
	objective := func(a, b float64) float64 {
		v := 0.0
		for i := range f {
			z := f[i]*a + b
			if z >= 0 {
				v += t[i]*z + math.Log1p(math.Exp(-z))
			} else {
				v += (t[i]-1)*z + math.Log1p(math.Exp(z))
			}
		}
		return v
	}

	a, b = 0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i := range f {
			z := f[i]*a + b
			var p, q float64
			if z >= 0 {
				e := math.Exp(-z)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(z)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += f[i] * f[i] * d2
			h22 += d2
			h21 += f[i] * d2
			d1 := t[i] - p
			g1 += f[i] * d1
			g2 += d1
		}
		if math.Abs(g1) < 1e-5 && math.Abs(g2) < 1e-5 {
			break
		}
		det := h11*h22 - h21*h21
		da := -(h22*g1 - h21*g2) / det
		db := -(-h21*g1 + h11*g2) / det
		gd := g1*da + g2*db

		step := 1.0
		for step >= minStep {
			na, nb := a+step*da, b+step*db
			nf := objective(na, nb)
			if nf < fval+1e-4*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func plattProb(f, a, b float64) float64 {
	z := f*a + b
	if z >= 0 {
		e := math.Exp(-z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(z))
}
