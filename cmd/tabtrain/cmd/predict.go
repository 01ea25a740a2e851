package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/log"
)

func newPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <artifact> <dataset.csv>",
		Short: "predict every row of a dataset with a saved pipeline",
		Long: `predict loads a pipeline written by train --artifact and prints one
prediction per row. Columns the pipeline was not trained on are ignored.`,
		Args:              cobra.ExactArgs(2),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pipe, err := pipeline.LoadArtifactFile(args[0])
			if err != nil {
				return err
			}
			f, err := readDataset(args[1])
			if err != nil {
				return err
			}

			preds := make([]*pipeline.Prediction, 0, f.NRows())
			for i := 0; i < f.NRows(); i++ {
				p, err := pipe.PredictRecord(f.Row(i))
				if err != nil {
					return err
				}
				preds = append(preds, p)
			}
			cfg.logger(cmd.ErrOrStderr()).Debug("Predicted dataset",
				log.ModelNameKey, pipe.ModelName,
				log.SamplesKey, len(preds),
			)
			return writeOutput(cmd.OutOrStdout(), cfg.Output, preds)
		},
	}
}
