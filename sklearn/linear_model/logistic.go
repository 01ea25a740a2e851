package linear_model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// LogisticRegression is an L2 regularized logistic regression classifier
// fitted with L-BFGS. Two classes use a single binomial score; more classes
// use the multinomial (softmax) loss.
type LogisticRegression struct {
	state *model.StateManager

	penalty      string  // "l2" or "none"
	C            float64 // inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64

	coef_      [][]float64 // one row per score; a single row for binary problems
	intercept_ []float64
	classes_   []float64
	nClasses_  int
	nIter_     int
	warning    *errors.ConvergenceWarning
}

// LogisticRegressionOption is a functional option for LogisticRegression.
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a classifier with C=1, an intercept, and at
// most 100 L-BFGS iterations.
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type: "l2" or "none".
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength.
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercepts.
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of L-BFGS iterations.
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the gradient norm at which optimization stops.
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

func (lr *LogisticRegression) validate() error {
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewValidationError("penalty", "must be l2 or none", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	}
	return nil
}

// objective evaluates the mean log loss plus the L2 penalty and its
// gradient. Parameters are laid out score by score, each block holding the
// feature weights followed by the intercept.
type objective struct {
	X       *mat.Dense
	codes   []int
	nScores int
	alpha   float64 // penalty weight 1/(C*n); 0 without penalty
	fitInt  bool
}

func (o *objective) eval(grad, x []float64) float64 {
	n, p := o.X.Dims()
	width := p + 1
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	scores := make([]float64, o.nScores)
	probs := make([]float64, o.nScores)
	loss := 0.0
	for i := 0; i < n; i++ {
		row := o.X.RawRowView(i)
		for k := 0; k < o.nScores; k++ {
			w := x[k*width : k*width+p]
			scores[k] = floats.Dot(w, row) + x[k*width+p]
		}

		if o.nScores == 1 {
			z := scores[0]
			yi := float64(o.codes[i])
			// log(1+exp(z)) - y*z
			loss += softplus(z) - yi*z
			probs[0] = sigmoid(z) - yi
		} else {
			lse := errors.LogSumExp(scores)
			loss += lse - scores[o.codes[i]]
			for k := range probs {
				probs[k] = math.Exp(scores[k] - lse)
			}
			probs[o.codes[i]] -= 1
		}

		if grad != nil {
			for k := 0; k < o.nScores; k++ {
				floats.AddScaled(grad[k*width:k*width+p], probs[k], row)
				grad[k*width+p] += probs[k]
			}
		}
	}

	inv := 1 / float64(n)
	loss *= inv
	if grad != nil {
		floats.Scale(inv, grad)
	}
	for k := 0; k < o.nScores; k++ {
		w := x[k*width : k*width+p]
		if o.alpha > 0 {
			loss += 0.5 * o.alpha * floats.Dot(w, w)
			if grad != nil {
				floats.AddScaled(grad[k*width:k*width+p], o.alpha, w)
			}
		}
		if !o.fitInt && grad != nil {
			grad[k*width+p] = 0
		}
	}
	return loss
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Fit trains the model. Reaching max_iter is not an error; it is reported
// by ConvergenceWarning.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.ValidateFitInput("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}

	classes := model.UniqueSorted(y)
	if len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("needs samples of at least 2 classes in the data, got %d", len(classes)))
	}
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	codes := make([]int, nSamples)
	for i := range codes {
		codes[i] = index[y.At(i, 0)]
	}

	nScores := len(classes)
	if nScores == 2 {
		nScores = 1
	}
	obj := &objective{
		X:       mat.DenseCopyOf(X),
		codes:   codes,
		nScores: nScores,
		fitInt:  lr.fitIntercept,
	}
	if lr.penalty == "l2" {
		obj.alpha = 1 / (lr.C * float64(nSamples))
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return obj.eval(nil, x) },
		Grad: func(grad, x []float64) { obj.eval(grad, x) },
	}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 20,
		},
	}
	x0 := make([]float64, nScores*(nFeatures+1))
	result, optErr := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		return errors.NewModelError("LogisticRegression.Fit", "optimization failed", optErr)
	}
	if err := errors.CheckVector("LogisticRegression.Fit", result.X, result.Stats.MajorIterations); err != nil {
		return err
	}

	lr.warning = nil
	switch {
	case result.Status == optimize.IterationLimit:
		lr.warning = errors.NewConvergenceWarning("LogisticRegression", result.Stats.MajorIterations,
			"lbfgs reached max_iter; increase max_iter or scale the data")
	case optErr != nil:
		lr.warning = errors.NewConvergenceWarning("LogisticRegression", result.Stats.MajorIterations, optErr.Error())
	}

	width := nFeatures + 1
	lr.coef_ = make([][]float64, nScores)
	lr.intercept_ = make([]float64, nScores)
	for k := 0; k < nScores; k++ {
		lr.coef_[k] = append([]float64(nil), result.X[k*width:k*width+nFeatures]...)
		lr.intercept_[k] = result.X[k*width+nFeatures]
	}
	lr.classes_ = classes
	lr.nClasses_ = len(classes)
	lr.nIter_ = result.Stats.MajorIterations

	lr.state.MarkFitted(nFeatures, nSamples)
	return nil
}

// ConvergenceWarning returns the warning raised by the last Fit, or nil if
// the optimizer converged.
func (lr *LogisticRegression) ConvergenceWarning() *errors.ConvergenceWarning {
	return lr.warning
}

// DecisionFunction returns the linear scores, one column for binary
// problems and one per class otherwise.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.CheckPredict("LogisticRegression", "DecisionFunction", X); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	nScores := len(lr.coef_)
	W := mat.NewDense(nScores, nFeatures, nil)
	for k, row := range lr.coef_ {
		W.SetRow(k, row)
	}
	out := mat.NewDense(nSamples, nScores, nil)
	out.Mul(X, W.T())
	for i := 0; i < nSamples; i++ {
		for k := 0; k < nScores; k++ {
			out.Set(i, k, out.At(i, k)+lr.intercept_[k])
		}
	}
	return out, nil
}

// PredictProba returns class probabilities with columns following Classes().
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	nSamples, nScores := scores.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	row := make([]float64, nScores)
	for i := 0; i < nSamples; i++ {
		if nScores == 1 {
			p := sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p)
			probas.Set(i, 1, p)
			continue
		}
		mat.Row(row, i, scores)
		probas.SetRow(i, errors.Softmax(nil, row))
	}
	return probas, nil
}

// Predict returns the most probable class for each row.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, k := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best := 0
		for c := 1; c < k; c++ {
			if probas.At(i, c) > probas.At(i, best) {
				best = c
			}
		}
		predictions.Set(i, 0, lr.classes_[best])
	}
	return predictions, nil
}

// Score returns the mean accuracy on X and y, or 0 when prediction fails.
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the sorted class values seen during Fit.
func (lr *LogisticRegression) Classes() []float64 {
	return append([]float64(nil), lr.classes_...)
}

// Coef returns a copy of the coefficients, one row per score.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for i, row := range lr.coef_ {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Intercept returns a copy of the intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// NIter returns the number of L-BFGS iterations of the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model hyperparameters.
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"solver":        "lbfgs",
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return lr.validate()
}

type logisticState struct {
	Penalty      string
	C            float64
	FitIntercept bool
	MaxIter      int
	Tol          float64
	State        *model.StateManager
	Coef         [][]float64
	Intercept    []float64
	Classes      []float64
	NIter        int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(logisticState{
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		MaxIter:      lr.maxIter,
		Tol:          lr.tol,
		State:        lr.state,
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Classes:      lr.classes_,
		NIter:        lr.nIter_,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var s logisticState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	lr.penalty, lr.C, lr.fitIntercept, lr.maxIter, lr.tol = s.Penalty, s.C, s.FitIntercept, s.MaxIter, s.Tol
	lr.state = s.State
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	lr.coef_, lr.intercept_, lr.classes_, lr.nIter_ = s.Coef, s.Intercept, s.Classes, s.NIter
	lr.nClasses_ = len(s.Classes)
	return nil
}
