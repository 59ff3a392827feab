package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// checklistTable builds a cleaned checklist table holding every default item
// column. Each row maps item name to value; absent items are null.
func checklistTable(t *testing.T, rows ...map[string]float64) *Table {
	t.Helper()
	sc := DefaultSchema().Checklist
	var cols []Column
	for _, item := range sc.Items() {
		cols = append(cols, Column{Name: item, Role: RoleItem})
	}
	tbl := NewTable("checklist", []string{ColStudyID}, cols)
	for i, vals := range rows {
		r := Row{Index: i, IDs: map[string]string{ColStudyID: "S" + string(rune('1'+i))}, Values: map[string]*float64{}}
		for k, v := range vals {
			r.Values[k] = Float(v)
		}
		tbl.Rows = append(tbl.Rows, r)
	}
	return tbl
}

// fullResponses returns every default item set to v.
func fullResponses(v float64) map[string]float64 {
	out := map[string]float64{}
	for _, item := range DefaultSchema().Checklist.Items() {
		out[item] = v
	}
	return out
}

func val(t *testing.T, r Row, col string) float64 {
	t.Helper()
	v := r.Values[col]
	require.NotNil(t, v, "column %q is null", col)
	return *v
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
