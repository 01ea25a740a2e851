// Package frame holds tabular data in memory: an ordered set of named
// numeric or categorical columns of equal length.
//
// Numeric missing values are NaN. Categorical missing values are flagged per
// row. Frames are treated as immutable; every operation that changes data
// returns a new Frame.
package frame

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Kind is the declared kind of a column.
type Kind int

const (
	// Numeric columns hold float64 values.
	Numeric Kind = iota
	// Categorical columns hold string values.
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Column is one named column of a Frame.
type Column struct {
	name    string
	kind    Kind
	nums    []float64
	strs    []string
	missing []bool
}

// NewNumeric creates a numeric column. NaN marks a missing value. The slice
// is copied.
func NewNumeric(name string, values []float64) Column {
	nums := make([]float64, len(values))
	copy(nums, values)
	return Column{name: name, kind: Numeric, nums: nums}
}

// NewCategorical creates a categorical column. missing may be nil; when set
// it must have the same length as values and true marks a missing value.
// Both slices are copied.
func NewCategorical(name string, values []string, missing []bool) Column {
	strs := make([]string, len(values))
	copy(strs, values)
	flags := make([]bool, len(values))
	copy(flags, missing)
	return Column{name: name, kind: Categorical, strs: strs, missing: flags}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// Kind returns the column kind.
func (c Column) Kind() Kind { return c.kind }

// Len returns the number of rows.
func (c Column) Len() int {
	if c.kind == Numeric {
		return len(c.nums)
	}
	return len(c.strs)
}

// IsMissing reports whether row i is missing.
func (c Column) IsMissing(i int) bool {
	if c.kind == Numeric {
		return math.IsNaN(c.nums[i])
	}
	return c.missing[i]
}

// MissingCount returns the number of missing rows.
func (c Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Float returns row i of a numeric column.
func (c Column) Float(i int) float64 { return c.nums[i] }

// Str returns row i of a categorical column.
func (c Column) Str(i int) string { return c.strs[i] }

// Floats returns a copy of the values of a numeric column.
func (c Column) Floats() []float64 {
	out := make([]float64, len(c.nums))
	copy(out, c.nums)
	return out
}

// Strings returns a copy of the values of a categorical column.
func (c Column) Strings() []string {
	out := make([]string, len(c.strs))
	copy(out, c.strs)
	return out
}

// MissingMask returns a copy of the per-row missing flags.
func (c Column) MissingMask() []bool {
	out := make([]bool, c.Len())
	for i := range out {
		out[i] = c.IsMissing(i)
	}
	return out
}

// FormatValue renders row i as a string. Whole numbers print without a
// fractional part; missing values render as "".
func (c Column) FormatValue(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	if c.kind == Numeric {
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	}
	return c.strs[i]
}

// Value returns row i as float64, string, or nil when missing.
func (c Column) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	if c.kind == Numeric {
		return c.nums[i]
	}
	return c.strs[i]
}

// Rename returns a copy of c under a new name.
func (c Column) Rename(name string) Column {
	c.name = name
	return c
}

func (c Column) take(rows []int) Column {
	out := Column{name: c.name, kind: c.kind}
	if c.kind == Numeric {
		out.nums = make([]float64, len(rows))
		for k, i := range rows {
			out.nums[k] = c.nums[i]
		}
		return out
	}
	out.strs = make([]string, len(rows))
	out.missing = make([]bool, len(rows))
	for k, i := range rows {
		out.strs[k] = c.strs[i]
		out.missing[k] = c.missing[i]
	}
	return out
}

// Frame is an ordered collection of equally long, uniquely named columns.
type Frame struct {
	cols  []Column
	index map[string]int
	nrows int
}

// New builds a Frame. It returns a ParseError if two columns share a name
// or the columns differ in length.
func New(cols ...Column) (*Frame, error) {
	f := &Frame{
		cols:  make([]Column, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.name == "" {
			return nil, errors.NewParseError("frame", 0, fmt.Errorf("column %d has an empty name", i))
		}
		if _, dup := f.index[c.name]; dup {
			return nil, errors.NewParseError("frame", 0, fmt.Errorf("duplicate column %q", c.name))
		}
		if i == 0 {
			f.nrows = c.Len()
		} else if c.Len() != f.nrows {
			return nil, errors.NewParseError("frame", 0,
				fmt.Errorf("column %q has %d rows, expected %d", c.name, c.Len(), f.nrows))
		}
		if c.kind == Categorical && len(c.missing) != len(c.strs) {
			return nil, errors.NewParseError("frame", 0,
				fmt.Errorf("column %q has %d missing flags for %d rows", c.name, len(c.missing), len(c.strs)))
		}
		f.cols[i] = c
		f.index[c.name] = i
	}
	return f, nil
}

// MustNew is like New but panics on error. It is intended for tests and
// literals.
func MustNew(cols ...Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// NRows returns the number of rows.
func (f *Frame) NRows() int { return f.nrows }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Has reports whether a column named name exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the column named name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// ColumnAt returns the i-th column.
func (f *Frame) ColumnAt(i int) Column { return f.cols[i] }

// Columns returns the columns in order.
func (f *Frame) Columns() []Column {
	out := make([]Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// MissingCount returns the number of missing cells across all columns.
func (f *Frame) MissingCount() int {
	n := 0
	for _, c := range f.cols {
		n += c.MissingCount()
	}
	return n
}

// Take returns a new Frame holding the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(rows)
	}
	return &Frame{cols: cols, index: f.cloneIndex(), nrows: len(rows)}
}

// Filter returns a new Frame holding the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	rows := make([]int, 0, f.nrows)
	for i := 0; i < f.nrows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// Drop returns a new Frame without the named column. Unknown names are
// ignored.
func (f *Frame) Drop(name string) *Frame {
	cols := make([]Column, 0, len(f.cols))
	for _, c := range f.cols {
		if c.name != name {
			cols = append(cols, c)
		}
	}
	out, _ := New(cols...)
	if len(cols) == 0 {
		out.nrows = f.nrows
	}
	return out
}

// WithColumn returns a new Frame where c replaces the column of the same
// name, or is appended if there is none.
func (f *Frame) WithColumn(c Column) (*Frame, error) {
	cols := f.Columns()
	if i, ok := f.index[c.name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Select returns a new Frame with only the named columns, in the given
// order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, errors.NewValueError("frame.Select", fmt.Sprintf("unknown column %q", n))
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// Row returns row i as a map from column name to value (nil when missing).
func (f *Frame) Row(i int) map[string]any {
	out := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		out[c.name] = c.Value(i)
	}
	return out
}

// NumericMatrix stacks the named numeric columns into a dense
// n_rows x len(names) matrix.
func (f *Frame) NumericMatrix(names []string) (*mat.Dense, error) {
	if f.nrows == 0 || len(names) == 0 {
		return nil, errors.NewModelError("frame.NumericMatrix", "empty data", errors.ErrEmptyData)
	}
	m := mat.NewDense(f.nrows, len(names), nil)
	for j, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, errors.NewValueError("frame.NumericMatrix", fmt.Sprintf("unknown column %q", n))
		}
		if c.kind != Numeric {
			return nil, errors.NewValueError("frame.NumericMatrix", fmt.Sprintf("column %q is not numeric", n))
		}
		m.SetCol(j, c.nums)
	}
	return m, nil
}

// Equal reports whether two frames have the same columns, kinds and values.
// NaN equals NaN.
func (f *Frame) Equal(other *Frame) bool {
	if f.nrows != other.nrows || len(f.cols) != len(other.cols) {
		return false
	}
	for j, a := range f.cols {
		b := other.cols[j]
		if a.name != b.name || a.kind != b.kind {
			return false
		}
		for i := 0; i < f.nrows; i++ {
			if a.IsMissing(i) != b.IsMissing(i) {
				return false
			}
			if a.IsMissing(i) {
				continue
			}
			if a.kind == Numeric && a.nums[i] != b.nums[i] {
				return false
			}
			if a.kind == Categorical && a.strs[i] != b.strs[i] {
				return false
			}
		}
	}
	return true
}

func (f *Frame) cloneIndex() map[string]int {
	idx := make(map[string]int, len(f.index))
	for k, v := range f.index {
		idx[k] = v
	}
	return idx
}
