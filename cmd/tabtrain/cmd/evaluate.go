package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/report"
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <dataset.csv>",
		Short: "train a model and report a detailed evaluation",
		Long: `evaluate runs the same experiment as train and adds a confusion matrix and
per-class report for classification, or residual statistics for regression,
plus the most important features.`,
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
			eval, pipe, err := pipeline.Evaluate(pipeline.Env{Logger: logger}, f, cfg.Train, cfg.Evaluation, cfg.datasetName(args[0]))
			if err != nil {
				return err
			}

			artifact, _ := cmd.Flags().GetString("artifact")
			if artifact != "" {
				if err := pipeline.SaveArtifactFile(artifact, pipe); err != nil {
					return err
				}
			}

			if plotFile, _ := cmd.Flags().GetString("residual-plot"); plotFile != "" && eval.Residuals != nil {
				p, err := report.ResidualPlot(eval.Residuals, eval.Experiment.DatasetName+" residuals")
				if err != nil {
					return err
				}
				if err := report.Save(p, plotFile); err != nil {
					return err
				}
			}

			if cfg.DB != "" {
				parent, _ := cmd.Flags().GetInt64("parent")
				if eval.Experiment, err = saveResult(cmd, cfg, logger, eval.Experiment, parent, artifact); err != nil {
					return err
				}
			}
			return writeOutput(cmd.OutOrStdout(), cfg.Output, eval)
		},
	}

	def := pipeline.DefaultEvaluationConfig()
	flags := cmd.Flags()
	addTrainFlags(flags)
	flags.Bool("confusion-matrix", def.IncludeConfusionMatrix, "include the confusion matrix")
	flags.Bool("class-report", def.IncludeClassificationReport, "include per-class precision, recall and F1")
	flags.Bool("residuals", def.IncludeResiduals, "include residual statistics for regression")
	flags.Int("top-k", def.TopKFeatures, "number of most important features to report")
	flags.String("residual-plot", "", "render predicted vs residual to this image file (png, svg, pdf)")
	return cmd
}
