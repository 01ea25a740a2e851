package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/log"
	"github.com/tabtrain/tabtrain/report"
	"github.com/tabtrain/tabtrain/store"
)

func addTrainFlags(flags *pflag.FlagSet) {
	def := pipeline.DefaultTrainConfig("", pipeline.Classification)
	flags.String("name", "", "dataset name, defaults to the file name")
	flags.StringP("target", "t", "", "name of the target column")
	flags.String("task", string(def.TaskType), "classification or regression")
	flags.StringP("algorithm", "a", string(def.Algorithm), "model family, e.g. random_forest, svm, knn")
	flags.Float64("test-size", def.TestSize, "fraction of rows held out for evaluation")
	flags.Uint64("seed", def.RandomState, "random seed for the split and the model")
	flags.String("importance-fold", def.ImportanceFold, "how expanded importances map to columns: cyclic or source")
	flags.String("artifact", "", "write the fitted pipeline to this file")
	flags.String("db", "", "SQLite experiment store to file the result in")
	flags.Int64("parent", 0, "id of the parent experiment in the store")
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "train <dataset.csv>",
		Short:             "fit a model and report its test metrics",
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
			res, pipe, err := pipeline.RunExperiment(pipeline.Env{Logger: logger}, f, cfg.Train, cfg.datasetName(args[0]))
			if err != nil {
				return err
			}

			artifact, _ := cmd.Flags().GetString("artifact")
			if artifact != "" {
				if err := pipeline.SaveArtifactFile(artifact, pipe); err != nil {
					return err
				}
				logger.Info("Wrote pipeline artifact", "artifact.path", artifact)
			}

			if chart, _ := cmd.Flags().GetString("importance-chart"); chart != "" {
				if err := writeImportanceChart(logger, res, chart); err != nil {
					return err
				}
			}

			if cfg.DB != "" {
				parent, _ := cmd.Flags().GetInt64("parent")
				if res, err = saveResult(cmd, cfg, logger, res, parent, artifact); err != nil {
					return err
				}
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output, res)
		},
	}
	addTrainFlags(cmd.Flags())
	cmd.Flags().String("importance-chart", "", "render the feature importances to this image file (png, svg, pdf)")
	return cmd
}

func writeImportanceChart(logger log.Logger, res *pipeline.ExperimentResult, filename string) error {
	if len(res.FeatureImportance) == 0 {
		logger.Warn("Model has no feature importances, skipping chart", log.ModelNameKey, res.ModelName)
		return nil
	}
	p, err := report.ImportanceChart(res.FeatureImportance, res.DatasetName+" / "+res.ModelName)
	if err != nil {
		return err
	}
	return report.Save(p, filename)
}

func saveResult(cmd *cobra.Command, cfg *Config, logger log.Logger, res *pipeline.ExperimentResult, parent int64, artifact string) (*pipeline.ExperimentResult, error) {
	st, err := store.Open(cfg.DB, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	opts := store.SaveOptions{ArtifactPath: artifact}
	if parent > 0 {
		opts.ParentID = &parent
	}
	return st.Save(cmd.Context(), res, opts)
}
