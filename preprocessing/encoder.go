package preprocessing

import (
	"fmt"
	"sort"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// MissingCategory is the category a missing categorical value is encoded as.
const MissingCategory = "nan"

// LabelEncoder maps string labels to contiguous integer codes. Codes are
// assigned in order of first appearance during Fit.
type LabelEncoder struct {
	*model.StateManager

	// Classes holds the labels; the code of Classes[i] is i.
	Classes []string

	index map[string]int
}

// NewLabelEncoder creates an unfitted LabelEncoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{StateManager: model.NewStateManager()}
}

// Fit learns the label set from values.
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	e.Classes = e.Classes[:0]
	e.index = make(map[string]int)
	for _, v := range values {
		if _, ok := e.index[v]; ok {
			continue
		}
		e.index[v] = len(e.Classes)
		e.Classes = append(e.Classes, v)
	}
	e.MarkFitted(1, len(values))
	return nil
}

// Transform returns the code of every value. Unseen labels are an error.
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	if err := e.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	if e.index == nil {
		e.rebuildIndex()
	}
	codes := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", fmt.Sprintf("unseen label %q", v))
		}
		codes[i] = float64(code)
	}
	return codes, nil
}

// FitTransform fits on values and encodes them.
func (e *LabelEncoder) FitTransform(values []string) ([]float64, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform maps codes back to labels.
func (e *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if err := e.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		k := int(c)
		if k < 0 || k >= len(e.Classes) || float64(k) != c {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", fmt.Sprintf("invalid code %v", c))
		}
		out[i] = e.Classes[k]
	}
	return out, nil
}

func (e *LabelEncoder) rebuildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// OneHotEncoder expands each categorical feature into one indicator column
// per category seen during Fit. Categories are sorted; a missing value is
// its own category, placed last. Unknown categories at transform time
// encode as all zeros.
type OneHotEncoder struct {
	*model.StateManager

	// Categories holds the sorted categories of each input feature.
	Categories [][]string

	NFeatures int
}

// NewOneHotEncoder creates an unfitted OneHotEncoder that ignores unknown
// categories.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{StateManager: model.NewStateManager()}
}

// Fit learns the categories of each column. columns[j][i] is row i of
// feature j; missing[j] flags its missing rows and may be nil.
func (e *OneHotEncoder) Fit(columns [][]string, missing [][]bool) error {
	if len(columns) == 0 || len(columns[0]) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	e.NFeatures = len(columns)
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		seen := make(map[string]struct{})
		hasMissing := false
		for i, v := range col {
			if isMissingAt(missing, j, i) {
				hasMissing = true
				continue
			}
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen)+1)
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		if hasMissing {
			cats = append(cats, MissingCategory)
		}
		e.Categories[j] = cats
	}
	e.MarkFitted(len(columns), len(columns[0]))
	return nil
}

// NOutputs returns the number of indicator columns Transform produces.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats)
	}
	return n
}

// Transform writes the indicators of each row into a row-major slice of
// n_rows x NOutputs values.
func (e *OneHotEncoder) Transform(columns [][]string, missing [][]bool) ([]float64, error) {
	if err := e.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(columns) != e.NFeatures {
		return nil, errors.NewDimensionError("OneHotEncoder.Transform", e.NFeatures, len(columns), 1)
	}
	rows := len(columns[0])
	width := e.NOutputs()
	out := make([]float64, rows*width)

	offset := 0
	for j, col := range columns {
		lookup := make(map[string]int, len(e.Categories[j]))
		for k, c := range e.Categories[j] {
			lookup[c] = k
		}
		for i, v := range col {
			key := v
			if isMissingAt(missing, j, i) {
				key = MissingCategory
			}
			if k, ok := lookup[key]; ok {
				out[i*width+offset+k] = 1
			}
		}
		offset += len(e.Categories[j])
	}
	return out, nil
}

// FeatureNames returns "<input>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames(inputNames []string) []string {
	names := make([]string, 0, e.NOutputs())
	for j, cats := range e.Categories {
		for _, c := range cats {
			names = append(names, inputNames[j]+"_"+c)
		}
	}
	return names
}

func isMissingAt(missing [][]bool, j, i int) bool {
	return missing != nil && missing[j] != nil && missing[j][i]
}
