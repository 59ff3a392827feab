package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facetRows() *Table {
	tbl := NewTable("facets", FacetKeys, []Column{
		{Name: "mood_low", Role: RoleFacet},
		{Name: "mood_high", Role: RoleFacet},
	})
	add := func(entry, study, rater string, low, high *float64) {
		ids := map[string]string{ColEntryID: entry, ColSubjectID: "sub-" + study, ColPairID: rater}
		if study != "" {
			ids[ColStudyID] = study
		}
		tbl.Rows = append(tbl.Rows, Row{Index: len(tbl.Rows), IDs: ids, Values: map[string]*float64{"mood_low": low, "mood_high": high}})
	}
	add("e1", "P002", "r1", Float(0.2), nil)
	add("e2", "P001", "r1", Float(0.4), Float(0.6))
	add("e3", "P002", "r2", Float(0.6), nil)
	add("e4", "", "r2", Float(1), Float(1))
	return tbl
}

func TestAggregate_Mean(t *testing.T) {
	t.Parallel()

	out, stats, err := Aggregate(facetRows(), ColStudyID, MeanStrategy{})
	require.NoError(t, err)

	assert.Equal(t, []string{ColStudyID}, out.Keys)
	assert.Equal(t, []string{"P001", "P002"}, out.UniqueIDs(ColStudyID))
	assert.Equal(t, 0.4, val(t, out.Rows[0], "mood_low"))
	assert.InDelta(t, 0.4, val(t, out.Rows[1], "mood_low"), 1e-12)
	assert.Nil(t, out.Rows[1].Values["mood_high"], "all-null group stays null")
	assert.Equal(t, []Column{{Name: "mood_low", Role: RoleFacet}, {Name: "mood_high", Role: RoleFacet}}, out.Columns)

	assert.Equal(t, AggregateStats{Strategy: "mean", RowsIn: 4, RowsWithoutKey: 1, Participants: 2}, stats)
}

func TestAggregate_First(t *testing.T) {
	t.Parallel()

	tbl := facetRows()
	tbl.Rows[0].Values["mood_low"] = nil
	out, _, err := Aggregate(tbl, ColStudyID, FirstStrategy{})
	require.NoError(t, err)
	// first non-null in original order
	assert.Equal(t, 0.6, val(t, out.Rows[1], "mood_low"))
}

func TestAggregate_UnknownKey(t *testing.T) {
	t.Parallel()

	_, _, err := Aggregate(facetRows(), "mood_low", MeanStrategy{})
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestStrategyByName(t *testing.T) {
	t.Parallel()

	s, err := StrategyByName("first")
	require.NoError(t, err)
	assert.Equal(t, "first", s.Name())

	_, err = StrategyByName("senior")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first, mean")

	assert.Nil(t, MeanStrategy{}.Reduce([]*float64{nil, nil}))
	assert.Nil(t, FirstStrategy{}.Reduce(nil))
}

func grouped(name string, col string, ids ...string) *Table {
	tbl := NewTable(name, []string{ColStudyID}, []Column{{Name: col, Role: RoleOther}})
	for i, id := range ids {
		r := Row{Index: i, IDs: map[string]string{}, Values: map[string]*float64{col: Float(float64(i))}}
		if id != "" {
			r.IDs[ColStudyID] = id
		}
		tbl.Rows = append(tbl.Rows, r)
	}
	return tbl
}

func TestMerge_InnerJoin(t *testing.T) {
	t.Parallel()

	a := grouped("sdq", "emotion", "P003", "P001", "P002", "")
	b := grouped("facets", "mood_low", "P001", "P002", "P004")
	c := grouped("diagnosis", "Diag. ADHD", "P002", "P001", "P003")

	out, report, err := Merge(ColStudyID, a, b, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"P001", "P002"}, out.UniqueIDs(ColStudyID), "first table order")
	assert.Equal(t, []string{"emotion", "mood_low", "Diag. ADHD"}, out.ColumnNames())
	assert.Equal(t, 1.0, val(t, out.Rows[0], "emotion"))
	assert.Equal(t, 0.0, val(t, out.Rows[0], "mood_low"))
	assert.Equal(t, 1.0, val(t, out.Rows[0], "Diag. ADHD"))

	assert.Equal(t, 2, report.ResultIDs)
	require.Len(t, report.Inputs, 3)
	assert.Equal(t, SourceCoverage{Name: "sdq", UniqueIDs: 3, Dropped: []string{"P003"}}, report.Inputs[0])
	assert.Equal(t, SourceCoverage{Name: "facets", UniqueIDs: 3, Dropped: []string{"P004"}}, report.Inputs[1])
	assert.Equal(t, SourceCoverage{Name: "diagnosis", UniqueIDs: 3, Dropped: []string{"P003"}}, report.Inputs[2])
}

func TestMerge_ResultIsSubsetOfEveryInput(t *testing.T) {
	t.Parallel()

	inputs := []*Table{
		grouped("a", "x", "1", "2", "3", "4", "5"),
		grouped("b", "y", "5", "3", "1", "9"),
		grouped("c", "z", "3", "5", "7", "1", "2"),
	}
	out, _, err := Merge(ColStudyID, inputs...)
	require.NoError(t, err)

	for _, in := range inputs {
		assert.LessOrEqual(t, out.Len(), in.Len())
		ids := map[string]bool{}
		for _, id := range in.UniqueIDs(ColStudyID) {
			ids[id] = true
		}
		for _, id := range out.UniqueIDs(ColStudyID) {
			assert.True(t, ids[id], "%s missing from %s", id, in.Name)
		}
	}
	assert.Equal(t, []string{"1", "3", "5"}, out.UniqueIDs(ColStudyID))
}

func TestMerge_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Merge(ColStudyID, grouped("a", "x", "1"))
	require.Error(t, err)

	_, _, err = Merge(ColStudyID, grouped("a", "x", "1", "1"), grouped("b", "y", "1"))
	var dk *DuplicateKeyError
	require.True(t, errors.As(err, &dk), "got %v", err)
	assert.Equal(t, "a", dk.Table)

	_, _, err = Merge(ColStudyID, grouped("a", "x", "1"), grouped("b", "x", "1"))
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "x", se.Field)
}

func TestSplitByAnchor(t *testing.T) {
	t.Parallel()

	tbl := NewTable("merged", []string{ColStudyID}, []Column{
		{Name: "emotion", Role: RoleSubscale},
		{Name: "mood_low", Role: RoleFacet},
		{Name: "mood_high", Role: RoleFacet},
	})
	for i, v := range []*float64{Float(0), Float(0.25), Float(0.5), Float(1), nil} {
		tbl.Rows = append(tbl.Rows, Row{Index: i, IDs: map[string]string{ColStudyID: "P"}, Values: map[string]*float64{
			"emotion": Float(3), "mood_low": v, "mood_high": Float(0.5),
		}})
	}

	out, err := SplitByAnchor(tbl, []string{"mood_low", "mood_high"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emotion", "mood_low_LEFT", "mood_low_RIGHT", "mood_high_LEFT", "mood_high_RIGHT"}, out.ColumnNames())
	assert.Equal(t, []string{"mood_low_LEFT", "mood_high_LEFT"}, out.ColumnsWithRole(RoleAnchorLeft))

	want := [][2]float64{{0.5, 0}, {0.25, 0}, {0, 0}, {0, 0.5}}
	for i, w := range want {
		r := out.Rows[i]
		assert.Equal(t, w[0], val(t, r, "mood_low_LEFT"), "row %d", i)
		assert.Equal(t, w[1], val(t, r, "mood_low_RIGHT"), "row %d", i)
		_, stillThere := r.Values["mood_low"]
		assert.False(t, stillThere)
	}
	assert.Nil(t, out.Rows[4].Values["mood_low_LEFT"])
	assert.Nil(t, out.Rows[4].Values["mood_low_RIGHT"])
	assert.Equal(t, 3.0, val(t, out.Rows[0], "emotion"))
	// input untouched
	assert.Equal(t, 0.25, *tbl.Rows[1].Values["mood_low"])
}

func TestAnchorSplit_Properties(t *testing.T) {
	t.Parallel()

	for i := 0; i <= 1000; i++ {
		v := float64(i) / 1000
		left, right := AnchorSplit(v)
		assert.InDelta(t, 0.5-v, left-right, 1e-12, "v=%v", v)
		assert.Equal(t, 0.0, min(left, right), "v=%v", v)
		assert.GreaterOrEqual(t, left, 0.0)
		assert.GreaterOrEqual(t, right, 0.0)
	}
}

func TestSplitByAnchor_Errors(t *testing.T) {
	t.Parallel()

	tbl := NewTable("merged", []string{ColStudyID}, []Column{{Name: "mood_low", Role: RoleFacet}})
	tbl.Rows = []Row{{IDs: map[string]string{ColStudyID: "P"}, Values: map[string]*float64{"mood_low": Float(1.5)}}}

	_, err := SplitByAnchor(tbl, []string{"mood_low"})
	var re *RangeError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, 1.5, re.Value)

	_, err = SplitByAnchor(tbl, []string{"nope"})
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestSplitByAnchor_RejectsNaN(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		tbl := NewTable("merged", []string{ColStudyID}, []Column{{Name: "mood_low", Role: RoleFacet}})
		tbl.Rows = []Row{{IDs: map[string]string{ColStudyID: "P"}, Values: map[string]*float64{"mood_low": Float(v)}}}

		_, err := SplitByAnchor(tbl, []string{"mood_low"})
		var re *RangeError
		assert.True(t, errors.As(err, &re), "value %v: got %v", v, err)
	}
}

func TestMerge_RowMissingFromLaterInput(t *testing.T) {
	t.Parallel()

	a := grouped("a", "x", "1", "2", "3")
	b := grouped("b", "y", "1", "2", "3")
	c := grouped("c", "z", "3", "1")

	out, report, err := Merge(ColStudyID, a, b, c)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, out.UniqueIDs(ColStudyID))
	for i, r := range out.Rows {
		assert.Equal(t, i, r.Index)
		assert.Len(t, r.Values, 3)
	}
	assert.Equal(t, 2.0, val(t, out.Rows[1], "x"))
	assert.Equal(t, 0.0, val(t, out.Rows[1], "z"))
	assert.Equal(t, []string{"2"}, report.Inputs[0].Dropped)
}
