package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// ColumnTransformer turns a frame into a model matrix: numeric columns are
// standardized, categorical columns are one-hot encoded, and the output holds
// the numeric block followed by the categorical block.
type ColumnTransformer struct {
	*model.StateManager

	NumericColumns     []string
	CategoricalColumns []string

	// Scaler is nil when there are no numeric columns.
	Scaler *StandardScaler

	// Encoder is nil when there are no categorical columns.
	Encoder *OneHotEncoder

	// OutputNames and OutputSources describe each output column: its
	// expanded name and the input column it was derived from.
	OutputNames   []string
	OutputSources []string
}

// NewColumnTransformer partitions the columns of f by kind. Columns in
// exclude are left out.
func NewColumnTransformer(f *frame.Frame, exclude ...string) *ColumnTransformer {
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		skip[n] = struct{}{}
	}
	ct := &ColumnTransformer{StateManager: model.NewStateManager()}
	for _, c := range f.Columns() {
		if _, ok := skip[c.Name()]; ok {
			continue
		}
		if c.Kind() == frame.Numeric {
			ct.NumericColumns = append(ct.NumericColumns, c.Name())
		} else {
			ct.CategoricalColumns = append(ct.CategoricalColumns, c.Name())
		}
	}
	return ct
}

// InputColumns returns the input column names in output block order.
func (ct *ColumnTransformer) InputColumns() []string {
	out := make([]string, 0, len(ct.NumericColumns)+len(ct.CategoricalColumns))
	out = append(out, ct.NumericColumns...)
	return append(out, ct.CategoricalColumns...)
}

// Fit learns the scaler and encoder parameters from f.
func (ct *ColumnTransformer) Fit(f *frame.Frame) error {
	if f.NRows() == 0 {
		return errors.NewModelError("ColumnTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(ct.NumericColumns)+len(ct.CategoricalColumns) == 0 {
		return errors.NewValueError("ColumnTransformer.Fit", "no predictor columns")
	}

	ct.Scaler, ct.Encoder = nil, nil
	ct.OutputNames, ct.OutputSources = nil, nil

	if len(ct.NumericColumns) > 0 {
		X, err := f.NumericMatrix(ct.NumericColumns)
		if err != nil {
			return err
		}
		ct.Scaler = NewStandardScalerDefault()
		if err := ct.Scaler.Fit(X); err != nil {
			return err
		}
		ct.OutputNames = append(ct.OutputNames, ct.NumericColumns...)
		ct.OutputSources = append(ct.OutputSources, ct.NumericColumns...)
	}

	if len(ct.CategoricalColumns) > 0 {
		cols, missing, err := categoricalBlock(f, ct.CategoricalColumns)
		if err != nil {
			return err
		}
		ct.Encoder = NewOneHotEncoder()
		if err := ct.Encoder.Fit(cols, missing); err != nil {
			return err
		}
		ct.OutputNames = append(ct.OutputNames, ct.Encoder.FeatureNames(ct.CategoricalColumns)...)
		for j, cats := range ct.Encoder.Categories {
			for range cats {
				ct.OutputSources = append(ct.OutputSources, ct.CategoricalColumns[j])
			}
		}
	}

	ct.MarkFitted(len(ct.OutputNames), f.NRows())
	return nil
}

// Transform produces the model matrix for f, which must contain every input
// column with the kind seen in Fit.
func (ct *ColumnTransformer) Transform(f *frame.Frame) (*mat.Dense, error) {
	if err := ct.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	rows := f.NRows()
	if rows == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Transform", "empty data", errors.ErrEmptyData)
	}
	out := mat.NewDense(rows, len(ct.OutputNames), nil)

	offset := 0
	if ct.Scaler != nil {
		X, err := f.NumericMatrix(ct.NumericColumns)
		if err != nil {
			return nil, err
		}
		scaled, err := ct.Scaler.Transform(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < len(ct.NumericColumns); j++ {
				out.Set(i, j, scaled.At(i, j))
			}
		}
		offset = len(ct.NumericColumns)
	}

	if ct.Encoder != nil {
		cols, missing, err := categoricalBlock(f, ct.CategoricalColumns)
		if err != nil {
			return nil, err
		}
		encoded, err := ct.Encoder.Transform(cols, missing)
		if err != nil {
			return nil, err
		}
		width := ct.Encoder.NOutputs()
		for i := 0; i < rows; i++ {
			for k := 0; k < width; k++ {
				out.Set(i, offset+k, encoded[i*width+k])
			}
		}
	}
	return out, nil
}

// FitTransform fits on f and transforms it.
func (ct *ColumnTransformer) FitTransform(f *frame.Frame) (*mat.Dense, error) {
	if err := ct.Fit(f); err != nil {
		return nil, err
	}
	return ct.Transform(f)
}

func categoricalBlock(f *frame.Frame, names []string) ([][]string, [][]bool, error) {
	cols := make([][]string, len(names))
	missing := make([][]bool, len(names))
	for j, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, nil, errors.NewValueError("ColumnTransformer", fmt.Sprintf("missing column %q", n))
		}
		if c.Kind() != frame.Categorical {
			return nil, nil, errors.NewValueError("ColumnTransformer", fmt.Sprintf("column %q is not categorical", n))
		}
		cols[j] = c.Strings()
		missing[j] = c.MissingMask()
	}
	return cols, missing, nil
}
