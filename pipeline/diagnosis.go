package pipeline

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charlie42/facets-validity/pipeline/fileutils"
)

// DiagnosisStats counts rows filtered out of the diagnosis export.
type DiagnosisStats struct {
	RowsRead       int `json:"rows_read"`
	IncompleteRows int `json:"incomplete_rows"`
	RowsWithoutID  int `json:"rows_without_id"`
	RowsKept       int `json:"rows_kept"`
}

// CleanDiagnoses reads the semicolon separated diagnosis export. Y, N and N/A
// become 1, 0 and null; every column except the id is prefixed and tagged as
// a diagnosis.
func CleanDiagnoses(r io.Reader, sc DiagnosisSchema) (*Table, DiagnosisStats, error) {
	const source = "diagnosis"
	var stats DiagnosisStats

	header, records, err := fileutils.ReadDelimited(r, ';')
	if err != nil {
		return nil, stats, fmt.Errorf("CleanDiagnoses: %w", err)
	}
	stats.RowsRead = len(records)

	idIdx := slices.Index(header, sc.IDColumn)
	if idIdx < 0 {
		return nil, stats, missingField(source, sc.IDColumn)
	}
	doneIdx := -1
	if sc.CompletionColumn != "" {
		if doneIdx = slices.Index(header, sc.CompletionColumn); doneIdx < 0 {
			return nil, stats, missingField(source, sc.CompletionColumn)
		}
	}

	var cols []Column
	names := make([]string, len(header))
	for j, col := range header {
		if j == idIdx || j == doneIdx {
			continue
		}
		names[j] = sc.Prefix + col
		cols = append(cols, Column{Name: names[j], Role: RoleDiagnosis})
	}
	t := NewTable(source, []string{ColStudyID}, cols)

	for i, rec := range records {
		if doneIdx >= 0 {
			done, err := parseCell(rec[doneIdx])
			if err != nil {
				return nil, stats, &SchemaError{Source: source, Field: sc.CompletionColumn, Row: i, Reason: err.Error()}
			}
			if done == nil || *done != 1 {
				stats.IncompleteRows++
				continue
			}
		}
		row := Row{Index: i, IDs: map[string]string{}, Values: map[string]*float64{}}
		if id := rec[idIdx]; id != "" {
			row.IDs[ColStudyID] = id
		} else {
			stats.RowsWithoutID++
		}
		for j, col := range header {
			if names[j] == "" {
				continue
			}
			v, err := parseFlag(rec[j])
			if err != nil {
				return nil, stats, &SchemaError{Source: source, Field: col, Row: i, Reason: err.Error()}
			}
			if v != nil {
				row.Values[names[j]] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	stats.RowsKept = t.Len()
	return t, stats, nil
}

func parseFlag(s string) (*float64, error) {
	switch strings.ToUpper(s) {
	case "Y":
		return Float(1), nil
	case "N":
		return Float(0), nil
	case "", "N/A":
		return nil, nil
	default:
		return nil, fmt.Errorf("want Y, N or N/A, got %q", s)
	}
}
