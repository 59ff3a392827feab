package pipeline

import (
	"slices"
	"sort"

	"github.com/google/uuid"
)

// EntryKey is the composite identity of one wide assessment row.
type EntryKey struct {
	EntryID   string
	ActorType string
	SubjectID string
	// StudyID is empty when the subject id did not resolve.
	StudyID string
	GroupID string
	Time    string
	PairID  string
}

func (k EntryKey) ids() map[string]string {
	ids := map[string]string{
		ColEntryID:   k.EntryID,
		ColActorType: k.ActorType,
		ColSubjectID: k.SubjectID,
		ColGroupID:   k.GroupID,
		ColTime:      k.Time,
		ColPairID:    k.PairID,
	}
	if k.StudyID != "" {
		ids[ColStudyID] = k.StudyID
	}
	return ids
}

func entryKeyFromRow(r Row) EntryKey {
	return EntryKey{
		EntryID:   r.IDs[ColEntryID],
		ActorType: r.IDs[ColActorType],
		SubjectID: r.IDs[ColSubjectID],
		StudyID:   r.IDs[ColStudyID],
		GroupID:   r.IDs[ColGroupID],
		Time:      r.IDs[ColTime],
		PairID:    r.IDs[ColPairID],
	}
}

// FlatResponseRow is one (entry, section, item) response in long form.
type FlatResponseRow struct {
	Key       EntryKey
	SectionID string
	ItemID    string
	Item      Translation
	Value     ItemValue
}

// FlattenOptions configures Flatten.
type FlattenOptions struct {
	// GroupID is the canonical assessment version; entries of any other
	// group are discarded.
	GroupID uuid.UUID
	// Translations may be nil, in which case every item keeps its raw id.
	Translations *TranslationTable
	// Identity may be nil, in which case no entry gets a study id.
	Identity IdentityResolver
}

// FlattenStats counts what flattening kept, renamed and dropped.
type FlattenStats struct {
	EntriesRead        int            `json:"entries_read"`
	EntriesKept        int            `json:"entries_kept"`
	DroppedByGroup     map[string]int `json:"dropped_by_group,omitempty"`
	Items              int            `json:"items"`
	TranslatedItems    int            `json:"translated_items"`
	FallbackItemIDs    []string       `json:"fallback_item_ids,omitempty"`
	SymbolicValues     int            `json:"symbolic_values"`
	NullValues         int            `json:"null_values"`
	DuplicateItems     int            `json:"duplicate_items"`
	UnresolvedSubjects []string       `json:"unresolved_subjects,omitempty"`
	RowsWithoutStudyID int            `json:"rows_without_study_id"`
	WideRows           int            `json:"wide_rows"`
}

// FlattenResult holds both forms of the flattened assessment data.
type FlattenResult struct {
	Long  []FlatResponseRow
	Wide  *Table
	Stats FlattenStats
}

// Flatten filters entries to the canonical group, expands them into long
// form, renames items, attaches study ids and pivots to one row per entry.
func Flatten(entries []AssessmentEntry, opts FlattenOptions) (FlattenResult, error) {
	stats := FlattenStats{EntriesRead: len(entries), DroppedByGroup: map[string]int{}}
	resolver := NewResolver(opts.Identity)
	if opts.Identity == nil {
		resolver = NewResolver(&IdentityMap{})
	}

	fallback := map[string]struct{}{}
	var long []FlatResponseRow
	for _, e := range entries {
		if !sameGroup(e.SubjectGroupID, opts.GroupID) {
			stats.DroppedByGroup[e.SubjectGroupID]++
			continue
		}
		stats.EntriesKept++

		studyID, _ := resolver.Resolve(e.SubjectID)
		key := EntryKey{
			EntryID:   e.EntryID(),
			ActorType: e.RespondentActorID,
			SubjectID: e.SubjectID,
			StudyID:   studyID,
			GroupID:   e.SubjectGroupID,
			Time:      e.LastUpdatedAt,
			PairID:    e.RespondentHash,
		}
		for _, sec := range e.Sections {
			for _, item := range sec.Items {
				itemID := string(item.ItemID)
				tr := opts.Translations.Translate(itemID)
				if tr.Provenance == ProvenanceFallback {
					fallback[itemID] = struct{}{}
				} else {
					stats.TranslatedItems++
				}
				switch {
				case item.Value.Null:
					stats.NullValues++
				case item.Value.Num == nil:
					stats.SymbolicValues++
				}
				long = append(long, FlatResponseRow{
					Key:       key,
					SectionID: string(sec.SectionID),
					ItemID:    itemID,
					Item:      tr,
					Value:     item.Value,
				})
			}
		}
	}
	stats.Items = len(long)
	for id := range fallback {
		stats.FallbackItemIDs = append(stats.FallbackItemIDs, id)
	}
	sort.Strings(stats.FallbackItemIDs)
	stats.UnresolvedSubjects = resolver.Unresolved()

	wide, dups, err := Pivot(long)
	if err != nil {
		return FlattenResult{}, err
	}
	stats.DuplicateItems = dups
	stats.WideRows = wide.Len()
	for _, r := range wide.Rows {
		if _, ok := r.ID(ColStudyID); !ok {
			stats.RowsWithoutStudyID++
		}
	}
	if len(stats.DroppedByGroup) == 0 {
		stats.DroppedByGroup = nil
	}
	return FlattenResult{Long: long, Wide: wide, Stats: stats}, nil
}

func sameGroup(raw string, want uuid.UUID) bool {
	id, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	return id == want
}

// Pivot turns long-form rows into one row per EntryKey with one column per
// item name. An item repeated within an entry with an equal value is counted
// and collapsed; with a different value it is a PivotConflictError.
//
// Columns are sorted by name and tagged RoleFacet. Symbolic values become
// null cells.
func Pivot(long []FlatResponseRow) (*Table, int, error) {
	rowIdx := map[EntryKey]int{}
	var keys []EntryKey
	cells := []map[string]ItemValue{}
	columns := map[string]struct{}{}
	dups := 0

	for _, fr := range long {
		i, ok := rowIdx[fr.Key]
		if !ok {
			i = len(keys)
			rowIdx[fr.Key] = i
			keys = append(keys, fr.Key)
			cells = append(cells, map[string]ItemValue{})
		}
		name := fr.Item.Name
		if name == "" {
			name = fr.ItemID
		}
		if prev, seen := cells[i][name]; seen {
			if !prev.Equal(fr.Value) {
				return nil, 0, &PivotConflictError{EntryID: fr.Key.EntryID, Item: name, First: prev.String(), Second: fr.Value.String()}
			}
			dups++
			continue
		}
		cells[i][name] = fr.Value
		columns[name] = struct{}{}
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Role: RoleFacet}
	}

	t := NewTable("facets", FacetKeys, cols)
	t.Rows = make([]Row, len(keys))
	for i, k := range keys {
		r := Row{Index: i, IDs: k.ids(), Values: make(map[string]*float64, len(cells[i]))}
		for name, v := range cells[i] {
			if v.Num != nil {
				r.Values[name] = Float(*v.Num)
			}
		}
		t.Rows[i] = r
	}
	return t, dups, nil
}

// Unpivot returns the non-null cells of facet columns as long-form rows, in
// row order then column order. Section ids are not part of the wide form and
// are left empty.
func Unpivot(t *Table) []FlatResponseRow {
	cols := t.ColumnsWithRole(RoleFacet)
	var out []FlatResponseRow
	for _, r := range t.Rows {
		key := entryKeyFromRow(r)
		for _, c := range cols {
			v := r.Values[c]
			if v == nil {
				continue
			}
			out = append(out, FlatResponseRow{
				Key:    key,
				ItemID: c,
				Item:   Translation{Name: c, Provenance: ProvenanceTranslated},
				Value:  NumericValue(*v),
			})
		}
	}
	return out
}

// FacetColumns returns the declared bounded items when given, otherwise every
// facet column of t.
func FacetColumns(t *Table, declared []string) []string {
	if len(declared) > 0 {
		return slices.Clone(declared)
	}
	return t.ColumnsWithRole(RoleFacet)
}
