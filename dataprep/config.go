// Package dataprep cleans and transforms frames before training: missing
// value imputation, outlier handling, scaling, label encoding and per-column
// analysis.
package dataprep

import (
	"github.com/tabtrain/tabtrain/pkg/validate"
)

// Missing value strategies.
const (
	MissingMean     = "mean"
	MissingMedian   = "median"
	MissingMode     = "mode"
	MissingDrop     = "drop"
	MissingFillZero = "fill_zero"
)

// Outlier methods.
const (
	OutlierIQR    = "iqr"
	OutlierZScore = "zscore"
)

// Transform types.
const (
	TransformStandardize = "standardize"
	TransformNormalize   = "normalize"
	TransformRobust      = "robust"
	TransformLabelEncode = "label_encode"
)

// UnknownCategory fills categorical gaps when no category can be inferred.
const UnknownCategory = "unknown"

var checker = validate.New()

// DataCleaningConfig selects how Clean treats missing values and outliers.
type DataCleaningConfig struct {
	MissingValueStrategy string  `json:"missing_value_strategy" yaml:"missing_value_strategy" mapstructure:"missing_value_strategy" validate:"oneof=mean median mode drop fill_zero"`
	HandleOutliers       bool    `json:"handle_outliers" yaml:"handle_outliers" mapstructure:"handle_outliers"`
	OutlierMethod        string  `json:"outlier_method" yaml:"outlier_method" mapstructure:"outlier_method" validate:"oneof=iqr zscore"`
	OutlierThreshold     float64 `json:"outlier_threshold" yaml:"outlier_threshold" mapstructure:"outlier_threshold" validate:"gt=0"`
}

// DefaultCleaningConfig imputes means and leaves outliers alone.
func DefaultCleaningConfig() DataCleaningConfig {
	return DataCleaningConfig{
		MissingValueStrategy: MissingMean,
		OutlierMethod:        OutlierIQR,
		OutlierThreshold:     3.0,
	}
}

// Validate returns a ConfigError for the first invalid field.
func (c DataCleaningConfig) Validate() error {
	return validate.Struct(checker, c)
}

// FeatureTransformConfig selects the transformation Transform applies and,
// optionally, the columns it applies to.
type FeatureTransformConfig struct {
	TransformType string   `json:"transform_type" yaml:"transform_type" mapstructure:"transform_type" validate:"oneof=standardize normalize robust label_encode"`
	Columns       []string `json:"columns,omitempty" yaml:"columns,omitempty" mapstructure:"columns"`
}

// DefaultTransformConfig standardizes every numeric column.
func DefaultTransformConfig() FeatureTransformConfig {
	return FeatureTransformConfig{TransformType: TransformStandardize}
}

// Validate returns a ConfigError for the first invalid field.
func (c FeatureTransformConfig) Validate() error {
	return validate.Struct(checker, c)
}
