package pipeline

import (
	"fmt"
	"io"
	"slices"

	"github.com/charlie42/facets-validity/pipeline/fileutils"
)

// ChecklistOptions configures CleanChecklist.
type ChecklistOptions struct {
	Schema ChecklistSchema
	// Identity, when set, resolves the anonymised id to a study id and both
	// are kept as keys. When nil the anonymised id is the study id.
	Identity IdentityResolver
}

// CleanStats counts what cleaning dropped or blanked.
type CleanStats struct {
	RowsRead            int      `json:"rows_read"`
	EmptyRowsDropped    int      `json:"empty_rows_dropped"`
	EmptyColumnsDropped []string `json:"empty_columns_dropped,omitempty"`
	SentinelValues      int      `json:"sentinel_values"`
	IncompleteRows      int      `json:"incomplete_rows"`
	RowsKept            int      `json:"rows_kept"`
	UnresolvedIDs       []string `json:"unresolved_ids,omitempty"`
}

// CleanChecklist reads the semicolon separated checklist export and returns
// a numeric table of completed questionnaires.
func CleanChecklist(r io.Reader, opts ChecklistOptions) (*Table, CleanStats, error) {
	const source = "checklist"
	sc := opts.Schema
	var stats CleanStats

	header, records, err := fileutils.ReadDelimited(r, ';')
	if err != nil {
		return nil, stats, fmt.Errorf("CleanChecklist: %w", err)
	}
	stats.RowsRead = len(records)

	required := append([]string{sc.IDColumn}, sc.Items()...)
	if sc.CompletionColumn != "" {
		required = append(required, sc.CompletionColumn)
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, stats, missingField(source, col)
		}
	}

	keep := make([]bool, len(header))
	for j, col := range header {
		if slices.Contains(required, col) {
			keep[j] = true
			continue
		}
		for _, rec := range records {
			if rec[j] != "" {
				keep[j] = true
				break
			}
		}
		if !keep[j] {
			stats.EmptyColumnsDropped = append(stats.EmptyColumnsDropped, col)
		}
	}

	idIdx := slices.Index(header, sc.IDColumn)
	doneIdx := slices.Index(header, sc.CompletionColumn)

	keys := []string{ColStudyID}
	if opts.Identity != nil {
		keys = []string{sc.IDColumn, ColStudyID}
	}
	var cols []Column
	items := sc.Items()
	for j, col := range header {
		if !keep[j] || j == idIdx || j == doneIdx {
			continue
		}
		role := RoleOther
		if slices.Contains(items, col) {
			role = RoleItem
		}
		cols = append(cols, Column{Name: col, Role: role})
	}
	t := NewTable(source, keys, cols)
	resolver := NewResolver(opts.Identity)

	for i, rec := range records {
		if isBlankRecord(rec, keep) {
			stats.EmptyRowsDropped++
			continue
		}
		for j := range rec {
			if keep[j] && slices.Contains(sc.Sentinels, rec[j]) {
				rec[j] = ""
				stats.SentinelValues++
			}
		}
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

		row := Row{Index: i, IDs: map[string]string{}, Values: make(map[string]*float64, len(cols))}
		if raw := rec[idIdx]; raw != "" {
			if opts.Identity == nil {
				row.IDs[ColStudyID] = raw
			} else {
				row.IDs[sc.IDColumn] = raw
				if id, ok := resolver.Resolve(raw); ok {
					row.IDs[ColStudyID] = id
				}
			}
		}
		for j, col := range header {
			if !keep[j] || j == idIdx || j == doneIdx {
				continue
			}
			v, err := parseCell(rec[j])
			if err != nil {
				return nil, stats, &SchemaError{Source: source, Field: col, Row: i, Reason: err.Error()}
			}
			if v != nil {
				row.Values[col] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	stats.RowsKept = t.Len()
	stats.UnresolvedIDs = resolver.Unresolved()
	return t, stats, nil
}

func isBlankRecord(rec []string, keep []bool) bool {
	for j, v := range rec {
		if keep[j] && v != "" {
			return false
		}
	}
	return true
}

// parseCell reads an empty cell as null and anything else as a number.
func parseCell(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, ok := parseFinite(s)
	if !ok {
		return nil, fmt.Errorf("not numeric: %q", s)
	}
	return &f, nil
}
