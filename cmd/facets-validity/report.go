package main

import (
	"fmt"
	"path/filepath"

	"github.com/charlie42/facets-validity/pipeline/stats"
	"github.com/spf13/cobra"
)

func newReportCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultReportConfig()
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write description, correlation, regression and reliability reports from run outputs",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}
			sum, err := stats.BuildReport(stats.ReportConfig{
				DataDir:        filepath.Clean(cfg.DataDir),
				OutDir:         filepath.Clean(cfg.OutDir),
				ParticipantKey: cfg.ParticipantKey,
				RaterKey:       cfg.RaterKey,
				Raters:         cfg.Raters,
				Logger:         opts.logger(cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files_written=%d irr_items=%d skipped=%d out_dir=%s\n",
				len(sum.Files), sum.IRRItems, len(sum.Skipped), cfg.OutDir)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory holding the outputs of run")
	f.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory to write reports into")
	f.StringVar(&cfg.ParticipantKey, "participant-key", cfg.ParticipantKey, "Identifier column naming the participant")
	f.StringVar(&cfg.RaterKey, "rater-key", cfg.RaterKey, "Identifier column naming the rater")
	f.StringSliceVar(&cfg.Raters, "raters", nil, "Two rater ids to use for reliability (default: the two with most doubly rated participants)")
	return cmd
}
