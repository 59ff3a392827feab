package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/charlie42/facets-validity/pipeline/fileutils"
	"golang.org/x/sync/errgroup"
)

// ReportFile is the name of the run report written next to the tables.
const ReportFile = "run_report.json"

// Output table names. Each table is written to <name>.csv in the output
// directory.
const (
	TableChecklist        = "sdq_scored_cleaned"
	TableFacets           = "facets_transformed"
	TableDiagnosis        = "diagnosis"
	TableChecklistGrouped = TableChecklist + "_grouped"
	TableFacetsGrouped    = TableFacets + "_grouped"
	TableDiagnosisGrouped = TableDiagnosis + "_grouped"
	TableMerged           = "merged"
	TableAnchorSplit      = TableMerged + "_split_by_anchor"
)

// RunConfig names the inputs and output directory of one pipeline run.
type RunConfig struct {
	FacetsPath       string
	ChecklistPath    string
	TranslationsPath string
	FacetsIDMapPath  string
	// Optional inputs.
	DiagnosisPath      string
	ChecklistIDMapPath string

	OutDir    string
	Overwrite bool
	Pretty    bool

	// Schema defaults to DefaultSchema.
	Schema *Schema
	// Logger defaults to discarding everything.
	Logger *slog.Logger
}

// OutputFile describes one committed output table.
type OutputFile struct {
	Table   string `json:"table"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// RunReport collects the counts of every stage so coverage losses can be
// audited after the run.
type RunReport struct {
	SchemaVersion string                    `json:"schema_version"`
	GroupID       string                    `json:"group_id"`
	Checklist     CleanStats                `json:"checklist"`
	Scoring       ScoreStats                `json:"scoring"`
	Diagnosis     *DiagnosisStats           `json:"diagnosis,omitempty"`
	Facets        FlattenStats              `json:"facets"`
	Aggregation   map[string]AggregateStats `json:"aggregation"`
	Merge         MergeReport               `json:"merge"`
	AnchorColumns []string                  `json:"anchor_columns"`
	Outputs       []OutputFile              `json:"outputs"`
	Tables        map[string]TableSpec      `json:"tables"`
}

type runInputs struct {
	entries      []AssessmentEntry
	translations *TranslationTable
	facetIDs     *IdentityMap
	checklist    *Table
	cleanStats   CleanStats
	diagnosis    *Table
	diagStats    DiagnosisStats
}

// Run executes the whole pipeline: independent inputs are loaded
// concurrently, then every stage runs in order and each output table is
// committed atomically.
func Run(ctx context.Context, cfg RunConfig) (RunReport, error) {
	var report RunReport
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	schema := cfg.Schema
	if schema == nil {
		schema = DefaultSchema()
	}
	if err := schema.Validate().Err(); err != nil {
		return report, fmt.Errorf("Run: invalid schema: %w", err)
	}
	groupID, err := schema.GroupID()
	if err != nil {
		return report, fmt.Errorf("Run: %w", err)
	}
	reportPath := filepath.Join(cfg.OutDir, ReportFile)
	if !cfg.Overwrite && fileutils.FileExists(reportPath) {
		return report, fmt.Errorf("Run: %s already exists (use overwrite)", reportPath)
	}
	report.SchemaVersion = schema.Version
	report.GroupID = groupID.String()

	in, err := loadInputs(ctx, cfg, schema)
	if err != nil {
		return report, err
	}
	report.Checklist = in.cleanStats
	log.Info("checklist cleaned",
		"rows_read", in.cleanStats.RowsRead,
		"rows_kept", in.cleanStats.RowsKept,
		"incomplete_rows", in.cleanStats.IncompleteRows,
		"sentinel_values", in.cleanStats.SentinelValues,
		"unresolved_ids", len(in.cleanStats.UnresolvedIDs))
	if in.diagnosis != nil {
		report.Diagnosis = &in.diagStats
		log.Info("diagnoses cleaned", "rows_read", in.diagStats.RowsRead, "rows_kept", in.diagStats.RowsKept)
	}

	scored, scoreStats, err := Score(in.checklist, schema.Checklist)
	if err != nil {
		return report, fmt.Errorf("Run: score checklist: %w", err)
	}
	scored.Name = TableChecklist
	report.Scoring = scoreStats
	for name, n := range scoreStats.NulledScores {
		log.Info("scores nulled by missing items", "subscale", name, "rows", n)
	}

	flat, err := Flatten(in.entries, FlattenOptions{GroupID: groupID, Translations: in.translations, Identity: in.facetIDs})
	if err != nil {
		return report, fmt.Errorf("Run: flatten assessments: %w", err)
	}
	flat.Wide.Name = TableFacets
	report.Facets = flat.Stats
	for group, n := range flat.Stats.DroppedByGroup {
		log.Info("entries dropped by group id", "group_id", group, "entries", n)
	}
	log.Info("assessments flattened",
		"entries_kept", flat.Stats.EntriesKept,
		"wide_rows", flat.Stats.WideRows,
		"fallback_items", len(flat.Stats.FallbackItemIDs),
		"symbolic_values", flat.Stats.SymbolicValues,
		"duplicate_items", flat.Stats.DuplicateItems,
		"unresolved_subjects", len(flat.Stats.UnresolvedSubjects))

	report.Aggregation = map[string]AggregateStats{}
	group := func(t *Table, strategy string) (*Table, error) {
		s, err := StrategyByName(strategy)
		if err != nil {
			return nil, err
		}
		g, stats, err := Aggregate(t, ColStudyID, s)
		if err != nil {
			return nil, fmt.Errorf("Run: aggregate %s: %w", t.Name, err)
		}
		report.Aggregation[t.Name] = stats
		log.Info("aggregated", "table", t.Name, "strategy", s.Name(),
			"participants", stats.Participants, "rows_without_study_id", stats.RowsWithoutKey)
		return g, nil
	}

	checklistGrouped, err := group(scored, schema.Aggregation.Checklist)
	if err != nil {
		return report, err
	}
	facetsGrouped, err := group(flat.Wide, schema.Aggregation.Facets)
	if err != nil {
		return report, err
	}
	toMerge := []*Table{checklistGrouped, facetsGrouped}
	var diagnosisGrouped *Table
	if in.diagnosis != nil {
		if diagnosisGrouped, err = group(in.diagnosis, schema.Aggregation.Diagnosis); err != nil {
			return report, err
		}
		toMerge = append(toMerge, diagnosisGrouped)
	}

	merged, mergeReport, err := Merge(ColStudyID, toMerge...)
	if err != nil {
		return report, fmt.Errorf("Run: merge: %w", err)
	}
	report.Merge = mergeReport
	for _, cov := range mergeReport.Inputs {
		log.Info("merge coverage", "table", cov.Name, "unique_ids", cov.UniqueIDs, "dropped", len(cov.Dropped))
	}

	anchorCols := FacetColumns(merged, schema.Facets.BoundedItems)
	split, err := SplitByAnchor(merged, anchorCols)
	if err != nil {
		return report, fmt.Errorf("Run: anchor split: %w", err)
	}
	report.AnchorColumns = anchorCols

	outputs := []*Table{scored, flat.Wide, checklistGrouped, facetsGrouped}
	if diagnosisGrouped != nil {
		outputs = append(outputs, diagnosisGrouped)
	}
	outputs = append(outputs, merged, split)

	report.Tables = map[string]TableSpec{}
	for _, t := range outputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(cfg.OutDir, t.Name+".csv")
		if err := fileutils.WriteCSVFileAtomic(path, t.Header(), t.Records()); err != nil {
			return report, fmt.Errorf("Run: write %s: %w", t.Name, err)
		}
		report.Tables[t.Name] = t.Spec()
		report.Outputs = append(report.Outputs, OutputFile{Table: t.Name, Path: path, Rows: t.Len(), Columns: len(t.Columns)})
		log.Debug("table written", "path", path, "rows", t.Len())
	}
	if err := fileutils.WriteJSONFileAtomic(reportPath, report, cfg.Pretty); err != nil {
		return report, fmt.Errorf("Run: write report: %w", err)
	}
	log.Info("run complete", "participants", mergeReport.ResultIDs, "tables", len(outputs))
	return report, nil
}

func loadInputs(ctx context.Context, cfg RunConfig, schema *Schema) (runInputs, error) {
	var in runInputs
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := ReadAssessmentsFile(ctx, cfg.FacetsPath, schema.Facets.ArrayField)
		if err != nil {
			return err
		}
		in.entries = entries
		return nil
	})
	g.Go(func() error {
		return withFile(cfg.TranslationsPath, func(r io.Reader) error {
			t, err := LoadTranslations(r, schema.Facets.Locale)
			in.translations = t
			return err
		})
	})
	g.Go(func() error {
		return withFile(cfg.FacetsIDMapPath, func(r io.Reader) error {
			m, err := LoadIdentityMap(r, schema.Identity.RawColumn, schema.Identity.CanonicalColumn)
			in.facetIDs = m
			return err
		})
	})
	g.Go(func() error {
		opts := ChecklistOptions{Schema: schema.Checklist}
		if cfg.ChecklistIDMapPath != "" {
			err := withFile(cfg.ChecklistIDMapPath, func(r io.Reader) error {
				m, err := LoadIdentityMap(r, schema.Identity.RawColumn, schema.Identity.CanonicalColumn)
				if err == nil {
					opts.Identity = m
				}
				return err
			})
			if err != nil {
				return err
			}
		}
		return withFile(cfg.ChecklistPath, func(r io.Reader) error {
			t, stats, err := CleanChecklist(r, opts)
			in.checklist, in.cleanStats = t, stats
			return err
		})
	})
	if cfg.DiagnosisPath != "" {
		g.Go(func() error {
			return withFile(cfg.DiagnosisPath, func(r io.Reader) error {
				t, stats, err := CleanDiagnoses(r, schema.Diagnosis)
				in.diagnosis, in.diagStats = t, stats
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		return in, fmt.Errorf("Run: load inputs: %w", err)
	}
	return in, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadRunReport reads the report written by Run from dir.
func LoadRunReport(dir string) (RunReport, error) {
	var report RunReport
	b, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return report, fmt.Errorf("LoadRunReport: %w", err)
	}
	if err := json.Unmarshal(b, &report); err != nil {
		return report, fmt.Errorf("LoadRunReport: decode: %w", err)
	}
	return report, nil
}

// LoadOutputTable reads back a table written by Run, recovering column roles
// from the run report.
func LoadOutputTable(dir, name string) (*Table, error) {
	report, err := LoadRunReport(dir)
	if err != nil {
		return nil, err
	}
	spec, ok := report.Tables[name]
	if !ok {
		return nil, fmt.Errorf("LoadOutputTable: table %q not in run report", name)
	}
	return ReadTableFile(filepath.Join(dir, name+".csv"), name, spec)
}

// ReadTableFile reads a comma separated table whose header must match spec.
func ReadTableFile(path, name string, spec TableSpec) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadTableFile: %w", err)
	}
	defer f.Close()

	header, records, err := fileutils.ReadDelimited(f, ',')
	if err != nil {
		return nil, fmt.Errorf("ReadTableFile: %s: %w", path, err)
	}
	t := NewTable(name, spec.Keys, spec.Columns)
	if want := t.Header(); !slices.Equal(header, want) {
		return nil, &SchemaError{Source: path, Field: "header", Row: -1, Reason: fmt.Sprintf("got %d columns, want %v", len(header), want)}
	}
	nk := len(spec.Keys)
	for i, rec := range records {
		r := Row{Index: i, IDs: map[string]string{}, Values: map[string]*float64{}}
		for j, k := range spec.Keys {
			if rec[j] != "" {
				r.IDs[k] = rec[j]
			}
		}
		for j, c := range spec.Columns {
			s := rec[nk+j]
			if s == "" {
				continue
			}
			v, ok := parseFinite(s)
			if !ok {
				return nil, &SchemaError{Source: path, Field: c.Name, Row: i, Reason: fmt.Sprintf("not numeric: %q", s)}
			}
			r.Values[c.Name] = &v
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}
