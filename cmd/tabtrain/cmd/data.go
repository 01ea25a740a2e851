package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabtrain/tabtrain/dataprep"
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
)

// cleanOutput is printed by clean.
type cleanOutput struct {
	Stats  dataprep.CleaningStats `json:"stats" yaml:"stats"`
	Output string                 `json:"output,omitempty" yaml:"output,omitempty"`
}

// transformOutput is printed by transform.
type transformOutput struct {
	Report dataprep.TransformReport `json:"report" yaml:"report"`
	Output string                   `json:"output,omitempty" yaml:"output,omitempty"`
}

func newCleanCmd() *cobra.Command {
	def := dataprep.DefaultCleaningConfig()
	cmd := &cobra.Command{
		Use:               "clean <dataset.csv>",
		Short:             "impute missing values and handle outliers",
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.logger(cmd.ErrOrStderr())

			f, err := readDataset(args[0])
			if err != nil {
				return err
			}
			cleaned, stats, err := dataprep.Clean(f, cfg.Cleaning)
			if err != nil {
				return err
			}
			logger.Info("Cleaned dataset",
				log.DatasetKey, cfg.datasetName(args[0]),
				"rows.before", stats.RowsBefore,
				"rows.after", stats.RowsAfter,
				"missing.after", stats.MissingValuesAfter,
			)

			out := cleanOutput{Stats: stats}
			if out.Output, err = writeOptional(cmd, cleaned); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output, out)
		},
	}
	flags := cmd.Flags()
	flags.String("name", "", "dataset name, defaults to the file name")
	flags.String("strategy", def.MissingValueStrategy, "missing value strategy: mean, median, mode, drop or fill_zero")
	flags.Bool("handle-outliers", def.HandleOutliers, "clip or replace numeric outliers")
	flags.String("outlier-method", def.OutlierMethod, "outlier method: iqr or zscore")
	flags.Float64("outlier-threshold", def.OutlierThreshold, "IQR multiplier or z-score bound")
	flags.String("out", "", "write the cleaned dataset to this CSV file")
	return cmd
}

func newTransformCmd() *cobra.Command {
	def := dataprep.DefaultTransformConfig()
	cmd := &cobra.Command{
		Use:               "transform <dataset.csv>",
		Short:             "scale numeric columns or label encode categorical ones",
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f, err := readDataset(args[0])
			if err != nil {
				return err
			}
			transformed, rep, err := dataprep.Transform(f, cfg.Transform)
			if err != nil {
				return err
			}
			cfg.logger(cmd.ErrOrStderr()).Info("Transformed dataset",
				log.DatasetKey, cfg.datasetName(args[0]),
				"transform.type", rep.TransformType,
				"transform.columns", len(rep.Columns),
			)

			out := transformOutput{Report: rep}
			if out.Output, err = writeOptional(cmd, transformed); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output, out)
		},
	}
	flags := cmd.Flags()
	flags.String("name", "", "dataset name, defaults to the file name")
	flags.String("transform", def.TransformType, "standardize, normalize, robust or label_encode")
	flags.StringSlice("columns", nil, "columns to transform, defaults to every applicable column")
	flags.String("out", "", "write the transformed dataset to this CSV file")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "analyze <dataset.csv>",
		Short:             "profile every column and correlate the numeric ones",
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f, err := readDataset(args[0])
			if err != nil {
				return err
			}
			analysis, err := dataprep.Analyze(f)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output, analysis)
		},
	}
}

// writeOptional writes f to the --out file when one is set and returns its
// path.
func writeOptional(cmd *cobra.Command, f *frame.Frame) (string, error) {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		return "", nil
	}
	if err := writeDataset(path, f); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
