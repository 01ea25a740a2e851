package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/store"
)

// experimentSummary is one line of experiments list.
type experimentSummary struct {
	ID        int64                 `json:"id" yaml:"id"`
	Name      string                `json:"name" yaml:"name"`
	Dataset   string                `json:"dataset_name" yaml:"dataset_name"`
	Task      string                `json:"task_type" yaml:"task_type"`
	Model     string                `json:"model_name" yaml:"model_name"`
	Version   int                   `json:"version" yaml:"version"`
	ParentID  *int64                `json:"parent_experiment_id,omitempty" yaml:"parent_experiment_id,omitempty"`
	Artifact  string                `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`
	CreatedAt time.Time             `json:"created_at" yaml:"created_at"`
	Metrics   []pipeline.MetricItem `json:"metrics" yaml:"metrics"`
}

// experimentDetail is printed by experiments show.
type experimentDetail struct {
	experimentSummary `yaml:",inline"`
	Result            *pipeline.ExperimentResult `json:"result" yaml:"result"`
	Lineage           []int64                    `json:"lineage,omitempty" yaml:"lineage,omitempty"`
}

func summarize(rec *store.Record) (experimentSummary, *pipeline.ExperimentResult, error) {
	res, err := rec.Result()
	if err != nil {
		return experimentSummary{}, nil, err
	}
	return experimentSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		Dataset:   rec.DatasetName,
		Task:      rec.TaskType,
		Model:     rec.ModelName,
		Version:   rec.Version,
		ParentID:  rec.ParentID,
		Artifact:  rec.ArtifactPath,
		CreatedAt: rec.CreatedAt,
		Metrics:   res.Metrics,
	}, res, nil
}

func newExperimentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "experiments <command>",
		Short:             "inspect the experiment store",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.PersistentFlags().String("db", "", "SQLite experiment store")

	list := &cobra.Command{
		Use:   "list",
		Short: "list stored experiments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(cfg *Config, st *store.Store) error {
				dataset, _ := cmd.Flags().GetString("dataset")
				records, err := st.List(cmd.Context(), dataset)
				if err != nil {
					return err
				}
				out := make([]experimentSummary, 0, len(records))
				for _, rec := range records {
					s, _, err := summarize(rec)
					if err != nil {
						return err
					}
					out = append(out, s)
				}
				return writeOutput(cmd.OutOrStdout(), cfg.Output, out)
			})
		},
	}
	list.Flags().String("dataset", "", "only list experiments on this dataset")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "show one experiment and its ancestors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(cfg *Config, st *store.Store) error {
				lineage, err := st.Lineage(cmd.Context(), id)
				if err != nil {
					return err
				}
				s, res, err := summarize(lineage[0])
				if err != nil {
					return err
				}
				detail := experimentDetail{experimentSummary: s, Result: res}
				for _, rec := range lineage[1:] {
					detail.Lineage = append(detail.Lineage, rec.ID)
				}
				return writeOutput(cmd.OutOrStdout(), cfg.Output, detail)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "delete an experiment that no other experiment descends from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(cfg *Config, st *store.Store) error {
				return st.Delete(cmd.Context(), id)
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(cmd *cobra.Command, fn func(*Config, *store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DB == "" {
		return errors.NewConfigError("db", "is required", cfg.DB)
	}
	st, err := store.Open(cfg.DB, store.WithLogger(cfg.logger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewConfigError("id", "must be a positive integer", s)
	}
	return id, nil
}
