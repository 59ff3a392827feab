package stats

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/charlie42/facets-validity/pipeline/fileutils"
)

// Report file names, relative to the report directory.
const (
	DescriptionFile = "description.csv"
	CorrelationFile = "corr_mat.csv"
	OLSDir          = "ols"
	OLSSummaryFile  = "ols_summary.csv"
	IRRFile         = "irr.csv"
)

// ReportConfig configures BuildReport.
type ReportConfig struct {
	// DataDir holds the tables and run report written by pipeline.Run.
	DataDir string
	OutDir  string

	ParticipantKey string
	RaterKey       string
	// Raters fixes the two raters used for reliability. When empty the two
	// raters with the most doubly rated participants are used.
	Raters []string

	Logger *slog.Logger
}

// Skipped records an analysis that could not be computed.
type Skipped struct {
	Analysis string `json:"analysis"`
	Column   string `json:"column"`
	Reason   string `json:"reason"`
}

// ReportSummary lists what BuildReport wrote.
type ReportSummary struct {
	Files    []string  `json:"files"`
	Raters   []string  `json:"raters,omitempty"`
	IRRItems int       `json:"irr_items"`
	Skipped  []Skipped `json:"skipped,omitempty"`
}

// BuildReport reads the pipeline outputs in cfg.DataDir and writes the
// description, correlation, regression and reliability reports.
func BuildReport(cfg ReportConfig) (ReportSummary, error) {
	var sum ReportSummary
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	skip := func(analysis, column string, err error) {
		log.Warn("analysis skipped", "analysis", analysis, "column", column, "err", err)
		sum.Skipped = append(sum.Skipped, Skipped{Analysis: analysis, Column: column, Reason: err.Error()})
	}

	merged, err := pipeline.LoadOutputTable(cfg.DataDir, pipeline.TableMerged)
	if err != nil {
		return sum, fmt.Errorf("BuildReport: %w", err)
	}
	path := filepath.Join(cfg.OutDir, DescriptionFile)
	if err := WriteDescription(path, Describe(merged, nil)); err != nil {
		return sum, err
	}
	sum.Files = append(sum.Files, path)
	path = filepath.Join(cfg.OutDir, CorrelationFile)
	if err := WriteCorrelation(path, Correlate(merged, nil)); err != nil {
		return sum, err
	}
	sum.Files = append(sum.Files, path)

	split, err := pipeline.LoadOutputTable(cfg.DataDir, pipeline.TableAnchorSplit)
	if err != nil {
		return sum, fmt.Errorf("BuildReport: %w", err)
	}
	predictors := split.ColumnsWithRole(pipeline.RoleAnchorLeft, pipeline.RoleAnchorRight)
	var fits []OLSResult
	for _, outcome := range split.ColumnsWithRole(pipeline.RoleSubscale, pipeline.RoleTotal) {
		res, err := OLS(split, outcome, predictors)
		if err != nil {
			skip("ols", outcome, err)
			continue
		}
		path := filepath.Join(cfg.OutDir, OLSDir, outcome+"_full.csv")
		if err := WriteOLS(path, res); err != nil {
			return sum, err
		}
		fits = append(fits, res)
		sum.Files = append(sum.Files, path)
	}
	path = filepath.Join(cfg.OutDir, OLSSummaryFile)
	if err := WriteOLSSummary(path, fits); err != nil {
		return sum, err
	}
	sum.Files = append(sum.Files, path)

	facets, err := pipeline.LoadOutputTable(cfg.DataDir, pipeline.TableFacets)
	if err != nil {
		return sum, fmt.Errorf("BuildReport: %w", err)
	}
	doubly, err := pipeline.DoublyRated(facets, cfg.ParticipantKey, cfg.RaterKey)
	if err != nil {
		return sum, fmt.Errorf("BuildReport: %w", err)
	}
	raters := cfg.Raters
	if len(raters) == 0 {
		if raters, err = pipeline.TopRaters(doubly, cfg.ParticipantKey, cfg.RaterKey, 2); err != nil {
			return sum, fmt.Errorf("BuildReport: %w", err)
		}
	}
	sum.Raters = raters
	pair := pipeline.FilterByRaters(doubly, cfg.RaterKey, raters)

	var iccs []ICCResult
	for _, item := range pair.ColumnsWithRole(pipeline.RoleFacet) {
		_, m, err := pipeline.RatingMatrix(pair, cfg.ParticipantKey, cfg.RaterKey, raters, item)
		if err != nil {
			skip("irr", item, err)
			continue
		}
		res, err := ICC1(m)
		if err != nil {
			skip("irr", item, err)
			continue
		}
		res.Item = item
		iccs = append(iccs, res)
	}
	sort.SliceStable(iccs, func(i, j int) bool { return iccs[i].P < iccs[j].P })
	path = filepath.Join(cfg.OutDir, IRRFile)
	if err := WriteIRR(path, iccs); err != nil {
		return sum, err
	}
	sum.IRRItems = len(iccs)
	sum.Files = append(sum.Files, path)
	return sum, nil
}

// F3 formats v with three decimals; NaN is empty.
func F3(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// WriteDescription writes one row per statistic and one column per variable.
func WriteDescription(path string, summaries []Summary) error {
	header := []string{""}
	for _, s := range summaries {
		header = append(header, s.Column)
	}
	stats := []struct {
		name string
		get  func(Summary) string
	}{
		{"count", func(s Summary) string { return strconv.Itoa(s.Count) }},
		{"mean", func(s Summary) string { return F3(s.Mean) }},
		{"std", func(s Summary) string { return F3(s.Std) }},
		{"min", func(s Summary) string { return F3(s.Min) }},
		{"25%", func(s Summary) string { return F3(s.Q25) }},
		{"50%", func(s Summary) string { return F3(s.Q50) }},
		{"75%", func(s Summary) string { return F3(s.Q75) }},
		{"max", func(s Summary) string { return F3(s.Max) }},
	}
	records := make([][]string, 0, len(stats))
	for _, st := range stats {
		rec := []string{st.name}
		for _, s := range summaries {
			rec = append(rec, st.get(s))
		}
		records = append(records, rec)
	}
	if err := fileutils.WriteCSVFileAtomic(path, header, records); err != nil {
		return fmt.Errorf("WriteDescription: %w", err)
	}
	return nil
}

func WriteCorrelation(path string, m Matrix) error {
	header := append([]string{""}, m.Columns...)
	records := make([][]string, len(m.Columns))
	for i, c := range m.Columns {
		rec := []string{c}
		for _, v := range m.Values[i] {
			rec = append(rec, F3(v))
		}
		records[i] = rec
	}
	if err := fileutils.WriteCSVFileAtomic(path, header, records); err != nil {
		return fmt.Errorf("WriteCorrelation: %w", err)
	}
	return nil
}

func WriteOLS(path string, res OLSResult) error {
	header := []string{"", "coef", "std err", "t", "P>|t|"}
	records := make([][]string, 0, len(res.Coefficients))
	for _, c := range res.Coefficients {
		records = append(records, []string{c.Name, F3(c.Coef), F3(c.StdErr), F3(c.T), F3(c.P)})
	}
	if err := fileutils.WriteCSVFileAtomic(path, header, records); err != nil {
		return fmt.Errorf("WriteOLS: %w", err)
	}
	return nil
}

func WriteOLSSummary(path string, fits []OLSResult) error {
	header := []string{"outcome", "n", "df", "r_squared_uncentered", "ssr"}
	records := make([][]string, 0, len(fits))
	for _, f := range fits {
		records = append(records, []string{f.Outcome, strconv.Itoa(f.N), strconv.Itoa(f.DF), F3(f.RSquared), F3(f.SSR)})
	}
	if err := fileutils.WriteCSVFileAtomic(path, header, records); err != nil {
		return fmt.Errorf("WriteOLSSummary: %w", err)
	}
	return nil
}

func WriteIRR(path string, iccs []ICCResult) error {
	header := []string{"Item", "ICC", "PVal", "CI95 lower", "CI95 upper", "F", "df1", "df2", "targets"}
	records := make([][]string, 0, len(iccs))
	for _, r := range iccs {
		records = append(records, []string{
			r.Item, F3(r.ICC), F3(r.P), F3(r.CILower), F3(r.CIUpper), F3(r.F),
			strconv.Itoa(r.DF1), strconv.Itoa(r.DF2), strconv.Itoa(r.Targets),
		})
	}
	if err := fileutils.WriteCSVFileAtomic(path, header, records); err != nil {
		return fmt.Errorf("WriteIRR: %w", err)
	}
	return nil
}
