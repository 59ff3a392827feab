package pipeline

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_SubscalesAndTotal(t *testing.T) {
	t.Parallel()

	in := checklistTable(t, fullResponses(1))
	out, stats, err := Score(in, DefaultSchema().Checklist)
	require.NoError(t, err)

	r := out.Rows[0]
	for _, name := range []string{"emotion", "conduct", "hyper", "peer", "prosoc"} {
		assert.Equal(t, 5.0, val(t, r, name), name)
		assert.Equal(t, 0.0, val(t, r, MissingColumn(name)), name)
	}
	// prosocial is not part of the total
	assert.Equal(t, 20.0, val(t, r, "tot"))
	assert.Empty(t, stats.NulledScores)
	assert.Equal(t, []string{"emotion", "conduct", "hyper", "peer", "prosoc"}, out.ColumnsWithRole(RoleSubscale))
	assert.Equal(t, []string{"tot"}, out.ColumnsWithRole(RoleTotal))
}

func TestScore_ReverseCodedItems(t *testing.T) {
	t.Parallel()

	resp := fullResponses(0)
	in := checklistTable(t, resp)
	out, _, err := Score(in, DefaultSchema().Checklist)
	require.NoError(t, err)

	r := out.Rows[0]
	for _, item := range []string{"obeys", "reflect", "attends", "friend", "popular"} {
		assert.Equal(t, 2.0, val(t, r, item), item)
	}
	// one reversed item per problem subscale: mean 0.4, score 2
	assert.Equal(t, 2.0, val(t, r, "conduct"))
	assert.Equal(t, 4.0, val(t, r, "hyper"))
	assert.Equal(t, 4.0, val(t, r, "peer"))
	assert.Equal(t, 0.0, val(t, r, "emotion"))

	// the input keeps the raw responses
	assert.Equal(t, 0.0, *in.Rows[0].Values["obeys"])
}

func TestRecodeReverse_TwiceIsNotOnce(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{0, 2} {
		once := RecodeReverse(v)
		twice := RecodeReverse(once)
		assert.NotEqual(t, once, twice, "value %v", v)
		assert.Equal(t, v, twice, "value %v", v)
	}
	assert.Equal(t, 1.0, RecodeReverse(1))
	assert.Equal(t, 1.0, RecodeReverse(RecodeReverse(1)))
}

func TestScore_RejectsAlreadyRecodedTable(t *testing.T) {
	t.Parallel()

	out, _, err := Score(checklistTable(t, fullResponses(2)), DefaultSchema().Checklist)
	require.NoError(t, err)

	_, _, err = Score(out, DefaultSchema().Checklist)
	require.ErrorIs(t, err, ErrAlreadyRecoded)
}

func TestScore_MissingThreshold(t *testing.T) {
	t.Parallel()

	resp := fullResponses(1)
	// four of five emotion items missing, one present
	for _, item := range []string{"worries", "unhappy", "clingy", "afraid"} {
		delete(resp, item)
	}
	// exactly three of five conduct items missing
	for _, item := range []string{"fights", "lies", "steals"} {
		delete(resp, item)
	}
	out, stats, err := Score(checklistTable(t, resp), DefaultSchema().Checklist)
	require.NoError(t, err)

	r := out.Rows[0]
	assert.Nil(t, r.Values["emotion"])
	assert.Equal(t, 4.0, val(t, r, MissingColumn("emotion")))
	assert.Equal(t, 5.0, val(t, r, "conduct"))
	assert.Equal(t, 3.0, val(t, r, MissingColumn("conduct")))
	assert.Nil(t, r.Values["tot"], "total needs every addend")
	assert.Equal(t, map[string]int{"emotion": 1}, stats.NulledScores)
	assert.Equal(t, 1, stats.NullTotals)
}

func TestScore_RoundsHalfToEven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		present []float64
		want    float64
	}{
		{name: "mean 0.5", present: []float64{1, 0}, want: 2},
		{name: "mean 1.5", present: []float64{2, 1}, want: 8},
		{name: "mean 0.8", present: []float64{1, 1, 1, 1, 0}, want: 4},
		{name: "mean 1.75", present: []float64{2, 2, 2, 1}, want: 9},
	}
	items := []string{"somatic", "worries", "unhappy", "clingy", "afraid"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := fullResponses(0)
			for _, item := range items {
				delete(resp, item)
			}
			for i, v := range tc.present {
				resp[items[i]] = v
			}
			out, _, err := Score(checklistTable(t, resp), DefaultSchema().Checklist)
			require.NoError(t, err)
			assert.Equal(t, tc.want, val(t, out.Rows[0], "emotion"))
		})
	}
}

func TestScore_EveryResponsePattern(t *testing.T) {
	t.Parallel()

	items := []string{"somatic", "worries", "unhappy", "clingy", "afraid"}
	// each item is null (-1) or one of 0, 1, 2
	choices := []float64{-1, 0, 1, 2}
	var rows []map[string]float64
	var patterns [][]float64
	var walk func(prefix []float64)
	walk = func(prefix []float64) {
		if len(prefix) == len(items) {
			resp := fullResponses(0)
			for i, v := range prefix {
				if v < 0 {
					delete(resp, items[i])
				} else {
					resp[items[i]] = v
				}
			}
			rows = append(rows, resp)
			patterns = append(patterns, append([]float64(nil), prefix...))
			return
		}
		for _, c := range choices {
			walk(append(prefix, c))
		}
	}
	walk(nil)

	sc := DefaultSchema().Checklist
	tbl := NewTable("checklist", []string{ColStudyID}, nil)
	for _, item := range sc.Items() {
		tbl.Columns = append(tbl.Columns, Column{Name: item, Role: RoleItem})
	}
	for i, resp := range rows {
		r := Row{Index: i, IDs: map[string]string{ColStudyID: "S"}, Values: map[string]*float64{}}
		for k, v := range resp {
			r.Values[k] = Float(v)
		}
		tbl.Rows = append(tbl.Rows, r)
	}

	out, _, err := Score(tbl, sc)
	require.NoError(t, err)
	require.Len(t, out.Rows, len(patterns))

	for i, p := range patterns {
		var sum float64
		present := 0
		for _, v := range p {
			if v >= 0 {
				sum += v
				present++
			}
		}
		got := out.Rows[i].Values["emotion"]
		if len(items)-present > 3 {
			assert.Nil(t, got, "pattern %v", p)
			continue
		}
		require.NotNil(t, got, "pattern %v", p)
		assert.Equal(t, math.RoundToEven(sum/float64(present)*5), *got, "pattern %v", p)
		assert.GreaterOrEqual(t, *got, 0.0)
		assert.LessOrEqual(t, *got, 10.0)
		assert.Equal(t, i, out.Rows[i].Index)
	}
}

func TestScore_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing item column", func(t *testing.T) {
		t.Parallel()
		tbl := checklistTable(t, fullResponses(1))
		tbl.Columns = tbl.Columns[1:]
		_, _, err := Score(tbl, DefaultSchema().Checklist)
		var se *SchemaError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, "somatic", se.Field)
	})

	t.Run("response out of range", func(t *testing.T) {
		t.Parallel()
		resp := fullResponses(1)
		resp["lies"] = 3
		_, _, err := Score(checklistTable(t, resp), DefaultSchema().Checklist)
		var re *RangeError
		require.True(t, errors.As(err, &re), "got %v", err)
		assert.Equal(t, "lies", re.Column)
		assert.Equal(t, 3.0, re.Value)
	})
}

func TestScore_RejectsExistingOutputColumns(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"tot", "emotion", MissingColumn("peer")} {
		tbl := checklistTable(t, fullResponses(1))
		tbl.Columns = append(tbl.Columns, Column{Name: name, Role: RoleOther})
		tbl.Rows[0].Values[name] = Float(7)

		_, _, err := Score(tbl, DefaultSchema().Checklist)
		var se *SchemaError
		require.True(t, errors.As(err, &se), "%s: got %v", name, err)
		assert.Equal(t, name, se.Field)
	}
}

func TestCleanChecklist_ExportWithTotalColumnFailsScoring(t *testing.T) {
	t.Parallel()

	in := "anonymised ID;SDQ completion;" + sdqHeader + ";tot\n" +
		"A1;1;" + strings.TrimSuffix(strings.Repeat("1;", 25), ";") + ";12\n"
	tbl, _, err := CleanChecklist(strings.NewReader(in), ChecklistOptions{Schema: DefaultSchema().Checklist})
	require.NoError(t, err)
	require.True(t, tbl.HasColumn("tot"))

	_, _, err = Score(tbl, DefaultSchema().Checklist)
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "tot", se.Field)
}
