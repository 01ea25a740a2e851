// Package preprocessing provides column-wise feature scalers and encoders
// and the ColumnTransformer that combines them for a frame.
package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Scales below these are treated as a constant feature and replaced by 1.
const (
	minStd   = 1e-8
	minRange = 1e-8
	minIQR   = 1e-12
)

// fitColumns checks X and calls fit with the observed (non-NaN) values of
// every column.
func fitColumns(op string, X mat.Matrix, fit func(j int, col []float64)) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	for j := 0; j < cols; j++ {
		fit(j, observed(X, j))
	}
	return rows, cols, nil
}

// mapColumns applies f to every cell of X after checking that sm is fitted
// on X's width. NaN cells stay NaN.
func mapColumns(sm *model.StateManager, name, method string, X mat.Matrix, f func(j int, v float64) float64) (mat.Matrix, error) {
	if err := sm.RequireFitted(name, method); err != nil {
		return nil, err
	}
	nFeatures, _ := sm.GetDimensions()
	r, c := X.Dims()
	if c != nFeatures {
		return nil, errors.NewDimensionError(name+"."+method, nFeatures, c, 1)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, _ float64) float64 { return f(j, X.At(i, j)) }, out)
	return out, nil
}

// StandardScaler centers each feature to mean 0 and scales it to unit
// population variance. Constant features keep a scale of 1.
type StandardScaler struct {
	*model.StateManager

	// Mean is the per-feature mean, zero unless WithMean.
	Mean []float64

	// Scale is the per-feature standard deviation, one unless WithStd.
	Scale []float64

	WithMean bool
	WithStd  bool
}

// NewStandardScaler creates a StandardScaler.
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		StateManager: model.NewStateManager(),
		WithMean:     withMean,
		WithStd:      withStd,
	}
}

// NewStandardScalerDefault creates a StandardScaler that centers and scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

func (s *StandardScaler) Fit(X mat.Matrix) error {
	_, c := X.Dims()
	mean, scale := make([]float64, c), make([]float64, c)
	r, c, err := fitColumns("StandardScaler.Fit", X, func(j int, col []float64) {
		scale[j] = 1
		if len(col) == 0 {
			return
		}
		m, v := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			mean[j] = m
		}
		if sd := math.Sqrt(v); s.WithStd && sd >= minStd {
			scale[j] = sd
		}
	})
	if err != nil {
		return err
	}
	s.Mean, s.Scale = mean, scale
	s.MarkFitted(c, r)
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return mapColumns(s.StateManager, "StandardScaler", "Transform", X, func(j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized data back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return mapColumns(s.StateManager, "StandardScaler", "InverseTransform", X, func(j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{"with_mean": s.WithMean, "with_std": s.WithStd}
}

func (s *StandardScaler) String() string {
	nFeatures, _ := s.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, fitted=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.IsFitted(), nFeatures)
}

// MinMaxScaler maps each feature linearly onto FeatureRange (default
// [0, 1]). Constant features map to the lower bound.
type MinMaxScaler struct {
	*model.StateManager

	// DataMin and DataMax are the per-feature extremes seen in Fit.
	DataMin []float64
	DataMax []float64

	// Scale is the per-feature data range, or 1 for constant features.
	Scale []float64

	FeatureRange [2]float64
}

// NewMinMaxScaler creates a MinMaxScaler for the given output range.
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{StateManager: model.NewStateManager(), FeatureRange: featureRange}
}

// NewMinMaxScalerDefault creates a MinMaxScaler over [0, 1].
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}
	_, c := X.Dims()
	lo, hi, scale := make([]float64, c), make([]float64, c), make([]float64, c)
	r, c, err := fitColumns("MinMaxScaler.Fit", X, func(j int, col []float64) {
		if len(col) > 0 {
			lo[j], hi[j] = floats.Min(col), floats.Max(col)
		}
		scale[j] = hi[j] - lo[j]
		if math.Abs(scale[j]) < minRange {
			scale[j] = 1
		}
	})
	if err != nil {
		return err
	}
	m.DataMin, m.DataMax, m.Scale = lo, hi, scale
	m.MarkFitted(c, r)
	return nil
}

func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	lo, width := m.FeatureRange[0], m.FeatureRange[1]-m.FeatureRange[0]
	return mapColumns(m.StateManager, "MinMaxScaler", "Transform", X, func(j int, v float64) float64 {
		return lo + (v-m.DataMin[j])/m.Scale[j]*width
	})
}

func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{"feature_range": m.FeatureRange}
}

// RobustScaler centers each feature on its median and divides by its
// interquartile range. Features with a zero IQR keep a scale of 1.
type RobustScaler struct {
	*model.StateManager

	Center []float64
	Scale  []float64

	// QuantileRange is the percentile pair used for the scale, default
	// [25, 75].
	QuantileRange [2]float64
}

// NewRobustScaler creates a RobustScaler using the interquartile range.
func NewRobustScaler() *RobustScaler {
	return &RobustScaler{StateManager: model.NewStateManager(), QuantileRange: [2]float64{25, 75}}
}

func (s *RobustScaler) Fit(X mat.Matrix) error {
	_, c := X.Dims()
	center, scale := make([]float64, c), make([]float64, c)
	r, c, err := fitColumns("RobustScaler.Fit", X, func(j int, col []float64) {
		scale[j] = 1
		if len(col) == 0 {
			return
		}
		sort.Float64s(col)
		center[j] = Quantile(col, 0.5)
		if iqr := Quantile(col, s.QuantileRange[1]/100) - Quantile(col, s.QuantileRange[0]/100); math.Abs(iqr) >= minIQR {
			scale[j] = iqr
		}
	})
	if err != nil {
		return err
	}
	s.Center, s.Scale = center, scale
	s.MarkFitted(c, r)
	return nil
}

func (s *RobustScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return mapColumns(s.StateManager, "RobustScaler", "Transform", X, func(j int, v float64) float64 {
		return (v - s.Center[j]) / s.Scale[j]
	})
}

func (s *RobustScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *RobustScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{"quantile_range": s.QuantileRange}
}

// observed returns the non-NaN values of column j. Scalers fit on observed
// values only and carry missing values through Transform.
func observed(X mat.Matrix, j int) []float64 {
	r, _ := X.Dims()
	out := make([]float64, 0, r)
	for i := 0; i < r; i++ {
		if v := X.At(i, j); !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Quantile returns the q-th quantile (0 <= q <= 1) of sorted using linear
// interpolation between the closest ranks, as numpy and pandas do by
// default. sorted must be ascending and non-empty.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
