package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fitThatPanics(v interface{}) (err error) {
	defer Recover(&err, "Model.Fit")
	panic(v)
}

func TestRecover(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantValue string
	}{
		{"string", "index out of range", "index out of range"},
		{"error", fmt.Errorf("singular matrix"), "singular matrix"},
		{"int", 42, "42"},
		{"struct", struct{ Row int }{7}, "{7}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fitThatPanics(tt.value)
			var pe *PanicError
			require.True(t, As(err, &pe))
			assert.Equal(t, "Model.Fit", pe.Operation)
			assert.Equal(t, tt.value, pe.PanicValue)
			assert.Equal(t, "panic in Model.Fit: "+tt.wantValue, err.Error())
			assert.Contains(t, pe.StackTrace, "fitThatPanics")
			assert.Contains(t, pe.String(), "Stack trace:")
		})
	}
}

func TestRecover_NoPanicLeavesResult(t *testing.T) {
	run := func(ret error) (err error) {
		defer Recover(&err, "Model.Predict")
		return ret
	}
	assert.NoError(t, run(nil))

	cause := New("bad input")
	assert.Same(t, cause, run(cause))
}

func TestRecover_KeepsExistingError(t *testing.T) {
	cause := NewValueError("Model.Fit", "negative weights")
	run := func() (err error) {
		defer Recover(&err, "Model.Fit")
		defer func() { err = cause }()
		panic("late failure")
	}

	err := run()
	require.Error(t, err)
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "panic in Model.Fit: late failure")
	var pe *PanicError
	assert.False(t, As(err, &pe))
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("noop", func() error { return nil }))

	cause := NewEmptyDatasetError("split")
	err := SafeExecute("split", func() error { return cause })
	assert.Same(t, cause, err)

	err = SafeExecute("fit", func() error {
		var rows []int
		_ = rows[3]
		return nil
	})
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "fit", pe.Operation)
	assert.Contains(t, err.Error(), "index out of range")
}
