package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadeval",
		Short: "loadeval - score CSV loading results against clean references",
		Long: `loadeval scores the CSV files a system under test produced against the
clean reference files of a dataset.

Every reference file in the input directory is paired with
<results-dir>/<file>_converted.csv and scored for header, record and cell F1
on a bounded worker pool. Collection stops at a single deadline; whatever
finished by then is aggregated and reported.`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runEvaluationE,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	addEvaluationFlags(cmd)

	cmd.AddCommand(newCacheCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
