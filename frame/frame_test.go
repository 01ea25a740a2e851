package frame

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

func TestNewRejectsInvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		cols []Column
	}{
		{
			name: "duplicate names",
			cols: []Column{NewNumeric("a", []float64{1}), NewNumeric("a", []float64{2})},
		},
		{
			name: "ragged columns",
			cols: []Column{NewNumeric("a", []float64{1, 2}), NewNumeric("b", []float64{2})},
		},
		{
			name: "empty name",
			cols: []Column{NewNumeric("", []float64{1})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cols...)
			var pe *errors.ParseError
			assert.True(t, errors.As(err, &pe), "got %v", err)
		})
	}
}

func TestFrameOperations(t *testing.T) {
	f := MustNew(
		NewNumeric("x", []float64{1, math.NaN(), 3}),
		NewCategorical("c", []string{"a", "", "b"}, []bool{false, true, false}),
	)

	assert.Equal(t, 3, f.NRows())
	assert.Equal(t, []string{"x", "c"}, f.Names())
	assert.Equal(t, 2, f.MissingCount())

	sub := f.Take([]int{2, 0})
	x, _ := sub.Column("x")
	assert.Equal(t, []float64{3, 1}, x.Floats())
	assert.Equal(t, 3, f.NRows(), "source frame untouched")

	kept := f.Filter(func(i int) bool { return i != 1 })
	assert.Equal(t, 0, kept.MissingCount())

	dropped := f.Drop("x")
	assert.Equal(t, []string{"c"}, dropped.Names())

	replaced, err := f.WithColumn(NewNumeric("x", []float64{7, 8, 9}))
	require.NoError(t, err)
	rx, _ := replaced.Column("x")
	assert.Equal(t, 7.0, rx.Float(0))
	assert.True(t, math.IsNaN(f.ColumnAt(0).Float(1)))

	row := f.Row(1)
	assert.Nil(t, row["x"])
	assert.Nil(t, row["c"])

	_, err = f.NumericMatrix([]string{"c"})
	assert.Error(t, err)
	m, err := f.NumericMatrix([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.At(2, 0))
}

func TestReadCSVInfersKinds(t *testing.T) {
	input := "age, city ,income\n30,Tokyo,100.5\n,Osaka,NA\n45,,200\n"
	f, err := ReadCSV(strings.NewReader(input), "people.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "city", "income"}, f.Names())
	age, _ := f.Column("age")
	assert.Equal(t, Numeric, age.Kind())
	assert.True(t, age.IsMissing(1))

	city, _ := f.Column("city")
	assert.Equal(t, Categorical, city.Kind())
	assert.True(t, city.IsMissing(2))
	assert.Equal(t, "Osaka", city.Str(1))

	income, _ := f.Column("income")
	assert.Equal(t, 1, income.MissingCount())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), "empty.csv")
	var pe *errors.ParseError
	require.True(t, errors.As(err, &pe))

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n3\n"), "ragged.csv")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"), "dup.csv")
	require.True(t, errors.As(err, &pe))
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f := MustNew(
		NewNumeric("x", []float64{1.5, math.NaN()}),
		NewCategorical("c", []string{"a", "b"}, nil),
	)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, "x,c\n1.5,a\n,b\n", buf.String())

	back, err := ReadCSV(&buf, "roundtrip")
	require.NoError(t, err)
	assert.True(t, f.Equal(back))
}
