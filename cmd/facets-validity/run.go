package main

import (
	"fmt"
	"path/filepath"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultRunConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean, score, flatten, aggregate, merge and anchor-split the inputs",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}
			log := opts.logger(cmd.ErrOrStderr())
			schema, err := opts.schema(log)
			if err != nil {
				return err
			}

			report, err := pipeline.Run(cmd.Context(), pipeline.RunConfig{
				FacetsPath:         filepath.Clean(cfg.FacetsPath),
				ChecklistPath:      filepath.Clean(cfg.ChecklistPath),
				TranslationsPath:   filepath.Clean(cfg.TranslationsPath),
				FacetsIDMapPath:    filepath.Clean(cfg.FacetsIDMapPath),
				DiagnosisPath:      cleanOptional(cfg.DiagnosisPath),
				ChecklistIDMapPath: cleanOptional(cfg.ChecklistIDMapPath),
				OutDir:             filepath.Clean(cfg.OutDir),
				Overwrite:          cfg.Overwrite,
				Pretty:             cfg.Pretty,
				Schema:             schema,
				Logger:             log,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "participants=%d facet_rows=%d checklist_rows=%d tables_written=%d out_dir=%s\n",
				report.Merge.ResultIDs, report.Facets.WideRows, report.Checklist.RowsKept, len(report.Outputs), cfg.OutDir)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.FacetsPath, "facets", cfg.FacetsPath, "Path to the FACETS JSON export")
	f.StringVar(&cfg.ChecklistPath, "checklist", cfg.ChecklistPath, "Path to the semicolon separated SDQ export")
	f.StringVar(&cfg.DiagnosisPath, "diagnosis", "", "Optional semicolon separated diagnosis export")
	f.StringVar(&cfg.TranslationsPath, "translations", cfg.TranslationsPath, "Item translation table (assessment_item_id, locale_code, slug)")
	f.StringVar(&cfg.FacetsIDMapPath, "facets-id-map", cfg.FacetsIDMapPath, "Subject id to study id mapping for FACETS")
	f.StringVar(&cfg.ChecklistIDMapPath, "checklist-id-map", "", "Optional anonymised id to study id mapping for the SDQ (default: the anonymised id is the study id)")
	f.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory to write output tables into")
	f.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the run report")
	f.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite the outputs of a previous run")
	return cmd
}

func cleanOptional(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}
