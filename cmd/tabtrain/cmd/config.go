package cmd

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tabtrain/tabtrain/dataprep"
	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
	"github.com/tabtrain/tabtrain/pkg/validate"
)

// EnvPrefix is the prefix of environment variables read as config, e.g.
// TABTRAIN_TRAIN_ALGORITHM.
const EnvPrefix = "tabtrain"

// Output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Config is everything a command can be configured with. Each value comes
// from a flag, a TABTRAIN_ environment variable, the --config YAML file or
// its default, in that order of precedence.
type Config struct {
	Name       string                          `json:"name" yaml:"name" mapstructure:"name"`
	Train      pipeline.TrainConfig            `json:"train" yaml:"train" mapstructure:"train" validate:"-"`
	Evaluation pipeline.EvaluationConfig       `json:"evaluation" yaml:"evaluation" mapstructure:"evaluation" validate:"-"`
	Cleaning   dataprep.DataCleaningConfig     `json:"cleaning" yaml:"cleaning" mapstructure:"cleaning" validate:"-"`
	Transform  dataprep.FeatureTransformConfig `json:"transform" yaml:"transform" mapstructure:"transform" validate:"-"`
	Output     string                          `json:"output" yaml:"output" mapstructure:"output" validate:"oneof=json yaml"`
	DB         string                          `json:"db" yaml:"db" mapstructure:"db"`
	LogLevel   string                          `json:"log_level" yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat  string                          `json:"log_format" yaml:"log_format" mapstructure:"log_format" validate:"oneof=json console"`
}

var checker = validate.New()

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"name":              "name",
	"target":            "train.target_column",
	"task":              "train.task_type",
	"algorithm":         "train.algorithm",
	"test-size":         "train.test_size",
	"seed":              "train.random_state",
	"importance-fold":   "train.importance_fold",
	"confusion-matrix":  "evaluation.include_confusion_matrix",
	"class-report":      "evaluation.include_classification_report",
	"residuals":         "evaluation.include_residuals",
	"top-k":             "evaluation.top_k_features",
	"strategy":          "cleaning.missing_value_strategy",
	"handle-outliers":   "cleaning.handle_outliers",
	"outlier-method":    "cleaning.outlier_method",
	"outlier-threshold": "cleaning.outlier_threshold",
	"transform":         "transform.transform_type",
	"columns":           "transform.columns",
	"output":            "output",
	"db":                "db",
	"log-level":         "log_level",
	"log-format":        "log_format",
}

func setDefaults(v *viper.Viper) {
	train := pipeline.DefaultTrainConfig("", pipeline.Classification)
	v.SetDefault("name", "")
	v.SetDefault("train.target_column", train.TargetColumn)
	v.SetDefault("train.task_type", string(train.TaskType))
	v.SetDefault("train.algorithm", string(train.Algorithm))
	v.SetDefault("train.test_size", train.TestSize)
	v.SetDefault("train.random_state", train.RandomState)
	v.SetDefault("train.importance_fold", train.ImportanceFold)

	eval := pipeline.DefaultEvaluationConfig()
	v.SetDefault("evaluation.include_confusion_matrix", eval.IncludeConfusionMatrix)
	v.SetDefault("evaluation.include_classification_report", eval.IncludeClassificationReport)
	v.SetDefault("evaluation.include_residuals", eval.IncludeResiduals)
	v.SetDefault("evaluation.top_k_features", eval.TopKFeatures)

	clean := dataprep.DefaultCleaningConfig()
	v.SetDefault("cleaning.missing_value_strategy", clean.MissingValueStrategy)
	v.SetDefault("cleaning.handle_outliers", clean.HandleOutliers)
	v.SetDefault("cleaning.outlier_method", clean.OutlierMethod)
	v.SetDefault("cleaning.outlier_threshold", clean.OutlierThreshold)

	transform := dataprep.DefaultTransformConfig()
	v.SetDefault("transform.transform_type", transform.TransformType)
	v.SetDefault("transform.columns", []string{})

	v.SetDefault("output", OutputJSON)
	v.SetDefault("db", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// loadConfig resolves the configuration of cmd from its flags, the
// environment and the file named by --config.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if f := lookupFlag(cmd, name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if f := lookupFlag(cmd, "config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", f.Value.String())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}
	if err := validate.Struct(checker, cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

// datasetName is the configured name, or the base name of path without
// its extension.
func (c *Config) datasetName(path string) string {
	if c.Name != "" {
		return c.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// logger builds the command logger writing to w.
func (c *Config) logger(w io.Writer) log.Logger {
	level := log.ToLogLevel(c.LogLevel)
	if c.LogFormat == "console" {
		return log.NewConsoleProvider(w, level).GetLoggerWithName("tabtrain")
	}
	return log.NewZerologProvider(w, level).GetLoggerWithName("tabtrain")
}
