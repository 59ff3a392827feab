package main

import (
	"fmt"
	"path/filepath"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultInspectConfig()
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump the first parsed assessment entries",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}
			schema, err := opts.schema(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			entries, err := pipeline.ReadAssessmentsFile(cmd.Context(), filepath.Clean(cfg.FacetsPath), schema.Facets.ArrayField)
			if err != nil {
				return err
			}

			n := min(cfg.Limit, len(entries))
			dump := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
			for _, e := range entries[:n] {
				dump.Fdump(cmd.OutOrStdout(), e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries=%d shown=%d\n", len(entries), n)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.FacetsPath, "facets", cfg.FacetsPath, "Path to the FACETS JSON export")
	f.IntVar(&cfg.Limit, "limit", cfg.Limit, "Number of entries to dump")
	return cmd
}
