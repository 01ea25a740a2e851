package dataprep

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/preprocessing"
)

// TransformReport lists the columns Transform rewrote.
type TransformReport struct {
	TransformType string   `json:"transform_type" yaml:"transform_type"`
	Columns       []string `json:"columns" yaml:"columns"`
}

// Transform scales or label encodes columns of f and returns a new frame.
//
// Without an explicit column list the scalers apply to every numeric column
// and label_encode to every categorical column. Scalers are fit once over
// all selected numeric columns. label_encode fits one encoder per column
// and codes labels in order of first appearance; the column becomes
// numeric. When nothing applies the input frame is returned as is.
func Transform(f *frame.Frame, cfg FeatureTransformConfig) (*frame.Frame, TransformReport, error) {
	report := TransformReport{TransformType: cfg.TransformType, Columns: []string{}}
	if err := cfg.Validate(); err != nil {
		return nil, report, err
	}

	want := frame.Numeric
	if cfg.TransformType == TransformLabelEncode {
		want = frame.Categorical
	}
	targets := resolveColumns(f, cfg.Columns, want)
	if len(targets) == 0 {
		return f, report, nil
	}

	var (
		out *frame.Frame
		err error
	)
	if cfg.TransformType == TransformLabelEncode {
		out, err = labelEncode(f, targets)
	} else {
		out, err = scale(f, targets, newScaler(cfg.TransformType))
	}
	if err != nil {
		return nil, report, err
	}
	report.Columns = targets
	return out, report, nil
}

// resolveColumns keeps the requested columns that exist and have the wanted
// kind, in request order, or every column of that kind when none are named.
func resolveColumns(f *frame.Frame, requested []string, want frame.Kind) []string {
	var out []string
	if len(requested) == 0 {
		for _, c := range f.Columns() {
			if c.Kind() == want {
				out = append(out, c.Name())
			}
		}
		return out
	}
	for _, name := range requested {
		if c, ok := f.Column(name); ok && c.Kind() == want {
			out = append(out, name)
		}
	}
	return out
}

func newScaler(transformType string) model.Transformer {
	switch transformType {
	case TransformNormalize:
		return preprocessing.NewMinMaxScalerDefault()
	case TransformRobust:
		return preprocessing.NewRobustScaler()
	default:
		return preprocessing.NewStandardScalerDefault()
	}
}

func scale(f *frame.Frame, names []string, scaler model.Transformer) (*frame.Frame, error) {
	X, err := f.NumericMatrix(names)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return nil, err
	}
	out := f
	for j, name := range names {
		if out, err = out.WithColumn(frame.NewNumeric(name, mat.Col(nil, j, scaled))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func labelEncode(f *frame.Frame, names []string) (*frame.Frame, error) {
	out := f
	for _, name := range names {
		col, _ := f.Column(name)
		labels := col.Strings()
		for i := range labels {
			if col.IsMissing(i) {
				labels[i] = preprocessing.MissingCategory
			}
		}
		codes, err := preprocessing.NewLabelEncoder().FitTransform(labels)
		if err != nil {
			return nil, err
		}
		if out, err = out.WithColumn(frame.NewNumeric(name, codes)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
