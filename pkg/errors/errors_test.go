package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPipelineErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "config error with value",
			err:     NewConfigError("target_column", "target column not found", "price"),
			wantMsg: "tabtrain: config: target_column: target column not found (got: price)",
			check: func(t *testing.T, err error) {
				var target *ConfigError
				require.True(t, As(err, &target))
				assert.Equal(t, "target_column", target.Field)
			},
		},
		{
			name:    "config error without value",
			err:     NewConfigError("task_type", "no model registered", nil),
			wantMsg: "tabtrain: config: task_type: no model registered",
			check: func(t *testing.T, err error) {
				var target *ConfigError
				require.True(t, As(err, &target))
			},
		},
		{
			name:    "empty dataset",
			err:     NewEmptyDatasetError("clean"),
			wantMsg: "tabtrain: clean: dataset is empty",
			check: func(t *testing.T, err error) {
				var target *EmptyDatasetError
				require.True(t, As(err, &target))
				assert.Equal(t, "clean", target.Stage)
			},
		},
		{
			name:    "parse error with line",
			err:     NewParseError("data.csv", 3, fmt.Errorf("wrong number of fields")),
			wantMsg: "tabtrain: parse data.csv: line 3: wrong number of fields",
			check: func(t *testing.T, err error) {
				var target *ParseError
				require.True(t, As(err, &target))
				assert.Equal(t, 3, target.Line)
			},
		},
		{
			name:    "parse error without line",
			err:     NewParseError("frame", 0, fmt.Errorf("duplicate column %q", "a")),
			wantMsg: `tabtrain: parse frame: duplicate column "a"`,
			check: func(t *testing.T, err error) {
				var target *ParseError
				require.True(t, As(err, &target))
			},
		},
		{
			name:    "fit error",
			err:     NewFitError("SVC", ErrSingularMatrix),
			wantMsg: "tabtrain: fit SVC: singular matrix",
			check: func(t *testing.T, err error) {
				var target *FitError
				require.True(t, As(err, &target))
				assert.True(t, Is(err, ErrSingularMatrix))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Contains(t, fmt.Sprintf("%+v", tt.err), "errors_test.go")
			tt.check(t, tt.err)
		})
	}
}

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "tabtrain: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "tabtrain: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			formatted := fmt.Sprintf("%+v", err)
			assert.Contains(t, formatted, "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 4, 3, 1)
	assert.Equal(t, "tabtrain: Predict: dimension mismatch on axis 1 (features). Expected 4, got 3", err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("LinearRegression", "Predict")
	want := "tabtrain: LinearRegression: this model is not fitted yet. Call Fit() before using Predict()"
	assert.Equal(t, want, err.Error())

	var notFittedErr *NotFittedError
	assert.True(t, As(err, &notFittedErr))
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("lbfgs", 1000, "gradient norm above tolerance")
	assert.Equal(t, "lbfgs failed to converge after 1000 iterations: gradient norm above tolerance", warn.Error())
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.True(t, strings.Contains(wrapped.Error(), "in Predict: expected 10, got 5"))
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewFitError("RandomForestClassifier", err2)

	assert.Contains(t, err3.Error(), "base error")
	assert.True(t, Is(err3, err1))
}

func TestCheckMatrix(t *testing.T) {
	tests := []struct {
		name    string
		data    []float64
		wantErr bool
	}{
		{name: "finite", data: []float64{1, 2, 3, 4}},
		{name: "nan", data: []float64{1, math.NaN(), 3, 4}, wantErr: true},
		{name: "inf", data: []float64{1, 2, math.Inf(1), 4}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMatrix("fit", mat.NewDense(2, 2, tt.data))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var instab *NumericalInstabilityError
			assert.True(t, As(err, &instab))
		})
	}
}

func TestNumericalHelpers(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 2.0, SafeDivide(4, 2))
	assert.Equal(t, 1.0, ClipValue(5, -1, 1))
	assert.False(t, math.IsInf(StabilizeExp(1000), 0))
	assert.InDelta(t, math.Log(3), LogSumExp([]float64{0, 0, 0}), 1e-12)

	p := Softmax(nil, []float64{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)

	assert.Error(t, CheckVector("grad", []float64{0, math.NaN()}, 7))
	assert.NoError(t, CheckScalar("loss", 1.5, 0))
}
