package pipeline

import (
	"errors"
	"fmt"
)

// SourceCoverage is the identifier coverage of one merge input.
type SourceCoverage struct {
	Name      string `json:"name"`
	UniqueIDs int    `json:"unique_ids"`
	// Dropped lists the ids of this input that are absent from the result.
	Dropped []string `json:"dropped,omitempty"`
}

// MergeReport makes inner-join losses auditable.
type MergeReport struct {
	Key       string           `json:"key"`
	Inputs    []SourceCoverage `json:"inputs"`
	ResultIDs int              `json:"result_ids"`
}

// Merge inner-joins tables on key, in order. Each input must have at most one
// row per key; rows with a null key never match. The result keeps the row
// order of the first table and the columns of every table in input order.
func Merge(key string, tables ...*Table) (*Table, MergeReport, error) {
	report := MergeReport{Key: key}
	if len(tables) < 2 {
		return nil, report, errors.New("Merge: need at least two tables")
	}

	index := make([]map[string]Row, len(tables))
	owner := map[string]string{}
	var cols []Column
	for i, t := range tables {
		if !t.HasKey(key) {
			return nil, report, &SchemaError{Source: t.Name, Field: key, Row: -1, Reason: "join key missing"}
		}
		index[i] = make(map[string]Row, t.Len())
		for _, r := range t.Rows {
			id, ok := r.ID(key)
			if !ok {
				continue
			}
			if _, dup := index[i][id]; dup {
				return nil, report, &DuplicateKeyError{Table: t.Name, Key: id}
			}
			index[i][id] = r
		}
		for _, c := range t.Columns {
			if prev, clash := owner[c.Name]; clash {
				return nil, report, &SchemaError{Source: t.Name, Field: c.Name, Row: -1, Reason: fmt.Sprintf("column also present in %s", prev)}
			}
			owner[c.Name] = t.Name
			cols = append(cols, c)
		}
	}

	out := NewTable("merged", []string{key}, cols)
	kept := map[string]struct{}{}
	for _, r := range tables[0].Rows {
		id, ok := r.ID(key)
		if !ok {
			continue
		}
		if !inAll(index, id) {
			continue
		}
		row := Row{Index: out.Len(), IDs: map[string]string{key: id}, Values: map[string]*float64{}}
		for i, t := range tables {
			src := index[i][id]
			for _, c := range t.Columns {
				if v := src.Values[c.Name]; v != nil {
					row.Values[c.Name] = Float(*v)
				}
			}
		}
		kept[id] = struct{}{}
		out.Rows = append(out.Rows, row)
	}

	for _, t := range tables {
		cov := SourceCoverage{Name: t.Name}
		for _, id := range t.UniqueIDs(key) {
			cov.UniqueIDs++
			if _, ok := kept[id]; !ok {
				cov.Dropped = append(cov.Dropped, id)
			}
		}
		report.Inputs = append(report.Inputs, cov)
	}
	report.ResultIDs = len(kept)
	return out, report, nil
}

func inAll(index []map[string]Row, id string) bool {
	for _, m := range index {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}
