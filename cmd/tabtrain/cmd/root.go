// Package cmd implements the tabtrain command line tool.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
)

var rootDescription = `
tabtrain cleans, profiles and transforms tabular CSV data and trains
classification or regression models on it.

Every command prints its result as JSON or YAML. Training results can be
filed in a SQLite experiment store with --db and the fitted pipeline
written to disk with --artifact for later predictions.
`

// NewRootCmd returns the tabtrain command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tabtrain <command> [flags]",
		Short:             "train and evaluate models on tabular data",
		Long:              rootDescription,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path of a YAML configuration file")
	flags.StringP("output", "o", OutputJSON, "output format, json or yaml")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "json", "log format: json or console")

	rootCmd.AddCommand(
		newTrainCmd(),
		newEvaluateCmd(),
		newPredictCmd(),
		newCleanCmd(),
		newTransformCmd(),
		newAnalyzeCmd(),
		newExperimentsCmd(),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args. It is called by main.main.
func Execute() {
	log.SetupLogger(os.Stderr, slog.LevelError)
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", log.ErrAttr(err))
		os.Exit(1)
	}
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml output")
		}
		return errors.Wrap(enc.Close(), "encode yaml output")
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json output")
	}
}

func readDataset(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer file.Close()
	return frame.ReadCSV(file, path)
}

func writeDataset(path string, f *frame.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}
	if err := frame.WriteCSV(file, f); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "close output file")
}
