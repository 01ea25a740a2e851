package dataprep

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

const (
	// uniqueLimit is the distinct-value count below which numeric columns
	// also report unique counts.
	uniqueLimit = 20
	// topValuesLimit is the largest distinct-value count for which the top
	// values are listed.
	topValuesLimit = 10
)

// ValueCount is one entry of a column's value frequency table.
type ValueCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// FeatureStat describes one column. Numeric summaries are nil for
// categorical columns and for columns without observed values.
type FeatureStat struct {
	Feature      string       `json:"feature" yaml:"feature"`
	Dtype        string       `json:"dtype" yaml:"dtype"`
	MissingCount int          `json:"missing_count" yaml:"missing_count"`
	MissingRate  float64      `json:"missing_rate" yaml:"missing_rate"`
	Mean         *float64     `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std          *float64     `json:"std,omitempty" yaml:"std,omitempty"`
	Min          *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64     `json:"max,omitempty" yaml:"max,omitempty"`
	Median       *float64     `json:"median,omitempty" yaml:"median,omitempty"`
	UniqueCount  *int         `json:"unique_count,omitempty" yaml:"unique_count,omitempty"`
	TopValues    []ValueCount `json:"top_values,omitempty" yaml:"top_values,omitempty"`
}

// Analysis is the per-column profile of a frame plus the Pearson
// correlation matrix of its numeric columns.
type Analysis struct {
	NFeatures           int           `json:"n_features" yaml:"n_features"`
	NSamples            int           `json:"n_samples" yaml:"n_samples"`
	Features            []FeatureStat `json:"features" yaml:"features"`
	CorrelationMatrix   [][]float64   `json:"correlation_matrix,omitempty" yaml:"correlation_matrix,omitempty"`
	CorrelationFeatures []string      `json:"correlation_features,omitempty" yaml:"correlation_features,omitempty"`
}

// Analyze profiles every column of f. Correlations are computed when there
// are at least two numeric columns, over rows where both values are
// present; undefined correlations are reported as 0.
func Analyze(f *frame.Frame) (*Analysis, error) {
	if f.NRows() == 0 {
		return nil, errors.NewEmptyDatasetError("analysis")
	}

	a := &Analysis{NFeatures: f.NCols(), NSamples: f.NRows()}
	var numeric []frame.Column
	for _, col := range f.Columns() {
		a.Features = append(a.Features, describeColumn(col, f.NRows()))
		if col.Kind() == frame.Numeric {
			numeric = append(numeric, col)
		}
	}

	if len(numeric) > 1 {
		a.CorrelationMatrix = correlation(numeric)
		for _, col := range numeric {
			a.CorrelationFeatures = append(a.CorrelationFeatures, col.Name())
		}
	}
	return a, nil
}

func describeColumn(col frame.Column, nRows int) FeatureStat {
	missing := col.MissingCount()
	fs := FeatureStat{
		Feature:      col.Name(),
		Dtype:        col.Kind().String(),
		MissingCount: missing,
		MissingRate:  float64(missing) / float64(nRows),
	}

	var labels []string
	if col.Kind() == frame.Numeric {
		vals := observed(col)
		if len(vals) > 0 {
			fs.Mean = finite(stats.Mean(vals))
			fs.Std = finite(stats.StandardDeviationSample(vals))
			fs.Min = finite(stats.Min(vals))
			fs.Max = finite(stats.Max(vals))
			fs.Median = finite(stats.Median(vals))
		}
	}
	for i := 0; i < col.Len(); i++ {
		if !col.IsMissing(i) {
			labels = append(labels, col.FormatValue(i))
		}
	}

	counts := valueCounts(labels)
	if col.Kind() == frame.Categorical || len(counts) < uniqueLimit {
		n := len(counts)
		fs.UniqueCount = &n
		if n <= topValuesLimit {
			fs.TopValues = counts
		}
	}
	return fs
}

// finite keeps a statistic only when it was computed and is a number.
func finite(v float64, err error) *float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// valueCounts orders values by descending count, then by first appearance.
func valueCounts(values []string) []ValueCount {
	index := make(map[string]int)
	var out []ValueCount
	for _, v := range values {
		if i, ok := index[v]; ok {
			out[i].Count++
			continue
		}
		index[v] = len(out)
		out = append(out, ValueCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func correlation(cols []frame.Column) [][]float64 {
	n := len(cols)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			x, y := pairwise(cols[i], cols[j])
			r := 0.0
			if len(x) > 1 {
				r = stat.Correlation(x, y, nil)
			}
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			m[i][j], m[j][i] = r, r
		}
	}
	return m
}

// pairwise returns the rows where both columns are observed.
func pairwise(a, b frame.Column) ([]float64, []float64) {
	var x, y []float64
	for i := 0; i < a.Len(); i++ {
		if a.IsMissing(i) || b.IsMissing(i) {
			continue
		}
		x = append(x, a.Float(i))
		y = append(y, b.Float(i))
	}
	return x, y
}
