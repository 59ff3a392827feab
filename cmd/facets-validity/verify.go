package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/spf13/cobra"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultVerifyConfig()
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Report how assessments are spread over raters",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}
			facets, err := pipeline.LoadOutputTable(cfg.DataDir, pipeline.TableFacets)
			if err != nil {
				return err
			}
			cov, err := pipeline.ComputeRaterCoverage(facets, cfg.ParticipantKey, cfg.RaterKey)
			if err != nil {
				return err
			}
			opts.logger(cmd.ErrOrStderr()).Debug("coverage computed", "table", facets.Name, "rows", facets.Len())

			if cfg.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cov)
			}
			printCoverage(cmd.OutOrStdout(), cov)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory holding the outputs of run")
	f.StringVar(&cfg.ParticipantKey, "participant-key", cfg.ParticipantKey, "Identifier column naming the participant")
	f.StringVar(&cfg.RaterKey, "rater-key", cfg.RaterKey, "Identifier column naming the rater")
	f.BoolVar(&cfg.JSON, "json", false, "Output as JSON")
	return cmd
}

func printCoverage(w io.Writer, cov pipeline.RaterCoverage) {
	fmt.Fprintf(w, "entries=%d participants=%d raters=%d\n", cov.Entries, cov.Participants, cov.Raters)
	fmt.Fprintf(w, "rated_once=%d rated_twice=%d rated_more=%d\n", cov.RatedOnce, cov.RatedTwice, cov.RatedMore)
	for _, p := range cov.SharedPairs {
		fmt.Fprintf(w, "shared participants=%d raters=%s,%s\n", p.Participants, p.A, p.B)
	}
}
