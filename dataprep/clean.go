package dataprep

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/preprocessing"
)

// CleaningStats summarizes what Clean changed.
type CleaningStats struct {
	RowsBefore          int `json:"rows_before" yaml:"rows_before"`
	RowsAfter           int `json:"rows_after" yaml:"rows_after"`
	ColumnsBefore       int `json:"columns_before" yaml:"columns_before"`
	ColumnsAfter        int `json:"columns_after" yaml:"columns_after"`
	MissingValuesBefore int `json:"missing_values_before" yaml:"missing_values_before"`
	MissingValuesAfter  int `json:"missing_values_after" yaml:"missing_values_after"`
	DroppedRows         int `json:"dropped_rows" yaml:"dropped_rows"`
}

// NewCleaningStats compares a frame before and after cleaning.
func NewCleaningStats(before, after *frame.Frame) CleaningStats {
	return CleaningStats{
		RowsBefore:          before.NRows(),
		RowsAfter:           after.NRows(),
		ColumnsBefore:       before.NCols(),
		ColumnsAfter:        after.NCols(),
		MissingValuesBefore: before.MissingCount(),
		MissingValuesAfter:  after.MissingCount(),
		DroppedRows:         before.NRows() - after.NRows(),
	}
}

// Clean imputes or drops missing values column by column and then, when
// enabled, handles outliers in numeric columns. The input frame is not
// modified.
//
// IQR handling clips values to [Q1 - t*IQR, Q3 + t*IQR]. Z-score handling
// replaces values with |z| > t by the column mean.
func Clean(f *frame.Frame, cfg DataCleaningConfig) (*frame.Frame, CleaningStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, CleaningStats{}, err
	}

	out := f
	for _, name := range f.Names() {
		col, _ := out.Column(name)
		if col.MissingCount() == 0 {
			continue
		}
		var err error
		if cfg.MissingValueStrategy == MissingDrop {
			out = out.Filter(func(i int) bool { return !col.IsMissing(i) })
			continue
		}
		if col.Kind() == frame.Numeric {
			out, err = out.WithColumn(imputeNumeric(col, cfg.MissingValueStrategy))
		} else {
			out, err = out.WithColumn(imputeCategorical(col, cfg.MissingValueStrategy))
		}
		if err != nil {
			return nil, CleaningStats{}, err
		}
	}

	if cfg.HandleOutliers {
		for _, col := range out.Columns() {
			if col.Kind() != frame.Numeric {
				continue
			}
			var replaced frame.Column
			if cfg.OutlierMethod == OutlierIQR {
				replaced = clipIQR(col, cfg.OutlierThreshold)
			} else {
				replaced = replaceZScore(col, cfg.OutlierThreshold)
			}
			var err error
			if out, err = out.WithColumn(replaced); err != nil {
				return nil, CleaningStats{}, err
			}
		}
	}

	if out.NRows() == 0 {
		return nil, CleaningStats{}, errors.NewEmptyDatasetError("cleaning")
	}
	return out, NewCleaningStats(f, out), nil
}

func observed(col frame.Column) []float64 {
	vals := make([]float64, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		if !col.IsMissing(i) {
			vals = append(vals, col.Float(i))
		}
	}
	return vals
}

// imputeNumeric fills NaN with the strategy's statistic. A column with no
// observed values keeps its gaps under mean and median.
func imputeNumeric(col frame.Column, strategy string) frame.Column {
	vals := observed(col)
	fill := math.NaN()
	switch strategy {
	case MissingMean:
		if m, err := stats.Mean(vals); err == nil {
			fill = m
		}
	case MissingMedian:
		if m, err := stats.Median(vals); err == nil {
			fill = m
		}
	case MissingMode:
		fill = 0
		if len(vals) > 0 {
			fill = mostFrequent(vals, func(a, b float64) bool { return a < b })
		}
	case MissingFillZero:
		fill = 0
	}

	values := col.Floats()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = fill
		}
	}
	return frame.NewNumeric(col.Name(), values)
}

// imputeCategorical fills gaps under mode and fill_zero. Mean and median do
// not apply to categories and leave the column as it is.
func imputeCategorical(col frame.Column, strategy string) frame.Column {
	var fill string
	switch strategy {
	case MissingMode:
		fill = UnknownCategory
		present := make([]string, 0, col.Len())
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) {
				present = append(present, col.Str(i))
			}
		}
		if len(present) > 0 {
			fill = mostFrequent(present, func(a, b string) bool { return a < b })
		}
	case MissingFillZero:
		fill = UnknownCategory
	default:
		return col
	}

	values := col.Strings()
	for i := range values {
		if col.IsMissing(i) {
			values[i] = fill
		}
	}
	return frame.NewCategorical(col.Name(), values, nil)
}

// mostFrequent returns the value with the highest count; ties go to the
// smallest value under less.
func mostFrequent[T comparable](values []T, less func(a, b T) bool) T {
	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	keys := make([]T, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return less(keys[i], keys[j])
	})
	return keys[0]
}

// IQRBounds returns [Q1 - t*IQR, Q3 + t*IQR] over the observed values of
// a numeric column. ok is false when the column has no observed value.
func IQRBounds(col frame.Column, t float64) (lo, hi float64, ok bool) {
	vals := observed(col)
	if len(vals) == 0 {
		return 0, 0, false
	}
	sort.Float64s(vals)
	q1 := preprocessing.Quantile(vals, 0.25)
	q3 := preprocessing.Quantile(vals, 0.75)
	iqr := q3 - q1
	return q1 - t*iqr, q3 + t*iqr, true
}

func clipIQR(col frame.Column, t float64) frame.Column {
	lo, hi, ok := IQRBounds(col, t)
	if !ok {
		return col
	}
	values := col.Floats()
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		values[i] = math.Min(math.Max(v, lo), hi)
	}
	return frame.NewNumeric(col.Name(), values)
}

// replaceZScore uses the sample standard deviation. Columns with fewer
// than two observed values or zero spread are returned unchanged.
func replaceZScore(col frame.Column, t float64) frame.Column {
	vals := observed(col)
	if len(vals) < 2 {
		return col
	}
	mean, err := stats.Mean(vals)
	if err != nil {
		return col
	}
	std, err := stats.StandardDeviationSample(vals)
	if err != nil || std == 0 || math.IsNaN(std) {
		return col
	}
	values := col.Floats()
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.Abs((v-mean)/std) > t {
			values[i] = mean
		}
	}
	return frame.NewNumeric(col.Name(), values)
}
