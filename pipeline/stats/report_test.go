package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/charlie42/facets-validity/pipeline/fileutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeOutputs commits tables and a matching run report into dir, the way
// pipeline.Run leaves them.
func writeOutputs(t *testing.T, dir string, tables ...*pipeline.Table) {
	t.Helper()
	report := pipeline.RunReport{Tables: map[string]pipeline.TableSpec{}}
	for _, tbl := range tables {
		require.NoError(t, fileutils.WriteCSVFileAtomic(filepath.Join(dir, tbl.Name+".csv"), tbl.Header(), tbl.Records()))
		report.Tables[tbl.Name] = tbl.Spec()
	}
	require.NoError(t, fileutils.WriteJSONFileAtomic(filepath.Join(dir, pipeline.ReportFile), report, false))
}

func reportFixture(t *testing.T) string {
	t.Helper()

	merged := pipeline.NewTable(pipeline.TableMerged, []string{pipeline.ColStudyID}, []pipeline.Column{
		{Name: "emotion", Role: pipeline.RoleSubscale},
		{Name: "tot", Role: pipeline.RoleTotal},
		{Name: "mood", Role: pipeline.RoleFacet},
	})
	moods := []float64{0.1, 0.3, 0.6, 0.9, 0.0, 1.0, 0.45}
	emotions := []float64{4, 3, 1, 2, 5, 3, 1}
	for i := range moods {
		merged.Rows = append(merged.Rows, pipeline.Row{
			Index:  i,
			IDs:    map[string]string{pipeline.ColStudyID: "P" + string(rune('1'+i))},
			Values: map[string]*float64{"emotion": pipeline.Float(emotions[i]), "mood": pipeline.Float(moods[i])},
		})
	}
	split, err := pipeline.SplitByAnchor(merged, []string{"mood"})
	require.NoError(t, err)
	require.Equal(t, pipeline.TableAnchorSplit, split.Name)

	facets := pipeline.NewTable(pipeline.TableFacets, pipeline.FacetKeys, []pipeline.Column{
		{Name: "mood", Role: pipeline.RoleFacet},
		{Name: "sleep", Role: pipeline.RoleFacet},
	})
	add := func(study, rater string, mood float64, sleep *float64) {
		facets.Rows = append(facets.Rows, pipeline.Row{
			Index:  len(facets.Rows),
			IDs:    map[string]string{pipeline.ColEntryID: study + rater, pipeline.ColStudyID: study, pipeline.ColPairID: rater},
			Values: map[string]*float64{"mood": pipeline.Float(mood), "sleep": sleep},
		})
	}
	add("P1", "r1", 0.2, nil)
	add("P1", "r2", 0.3, nil)
	add("P2", "r1", 0.6, pipeline.Float(0.5))
	add("P2", "r2", 0.5, pipeline.Float(0.5))
	add("P3", "r1", 0.9, nil)
	add("P3", "r2", 0.8, nil)
	add("P4", "r3", 0.1, nil)

	dir := t.TempDir()
	writeOutputs(t, dir, merged, split, facets)
	return dir
}

func TestBuildReport(t *testing.T) {
	t.Parallel()

	data := reportFixture(t)
	out := t.TempDir()
	sum, err := BuildReport(ReportConfig{
		DataDir:        data,
		OutDir:         out,
		ParticipantKey: pipeline.ColStudyID,
		RaterKey:       pipeline.ColPairID,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, sum.Raters)
	assert.Equal(t, 1, sum.IRRItems)
	require.Len(t, sum.Skipped, 2)
	assert.Equal(t, Skipped{Analysis: "ols", Column: "tot", Reason: sum.Skipped[0].Reason}, sum.Skipped[0])
	assert.Equal(t, "irr", sum.Skipped[1].Analysis)
	assert.Equal(t, "sleep", sum.Skipped[1].Column)

	for _, name := range []string{DescriptionFile, CorrelationFile, OLSSummaryFile, IRRFile, filepath.Join(OLSDir, "emotion_full.csv")} {
		assert.Contains(t, sum.Files, filepath.Join(out, name))
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	b, err := os.ReadFile(filepath.Join(out, IRRFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "mood,"), lines[1])

	b, err = os.ReadFile(filepath.Join(out, OLSDir, "emotion_full.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "mood_LEFT")
	assert.Contains(t, string(b), "mood_RIGHT")
}

func TestBuildReport_FixedRaters(t *testing.T) {
	t.Parallel()

	data := reportFixture(t)
	sum, err := BuildReport(ReportConfig{
		DataDir:        data,
		OutDir:         t.TempDir(),
		ParticipantKey: pipeline.ColStudyID,
		RaterKey:       pipeline.ColPairID,
		Raters:         []string{"r2", "r1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, sum.Raters)
	assert.Equal(t, 1, sum.IRRItems)
}

func TestBuildReport_MissingRunOutputs(t *testing.T) {
	t.Parallel()

	_, err := BuildReport(ReportConfig{DataDir: t.TempDir(), OutDir: t.TempDir()})
	require.Error(t, err)
}
