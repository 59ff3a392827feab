package pipeline

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/invopop/jsonschema"
)

// Identifier column names shared by every stage.
const (
	ColEntryID   = "Entry ID"
	ColActorType = "Actor type"
	ColSubjectID = "Subject ID"
	ColStudyID   = "Study ID"
	ColGroupID   = "Group ID"
	ColTime      = "Time"
	ColPairID    = "Subject-Respondent Pair ID"
)

// FacetKeys is the composite identity of one wide assessment row.
var FacetKeys = []string{ColEntryID, ColActorType, ColSubjectID, ColStudyID, ColGroupID, ColTime, ColPairID}

// Role declares what a numeric column means, so later stages select columns
// by declaration instead of by their names.
type Role int

const (
	RoleOther Role = iota
	RoleItem
	RoleFacet
	RoleSubscale
	RoleMissingCount
	RoleTotal
	RoleDiagnosis
	RoleAnchorLeft
	RoleAnchorRight
)

var roleNames = map[Role]string{
	RoleOther:        "other",
	RoleItem:         "item",
	RoleFacet:        "facet",
	RoleSubscale:     "subscale",
	RoleMissingCount: "missing_count",
	RoleTotal:        "total",
	RoleDiagnosis:    "diagnosis",
	RoleAnchorLeft:   "anchor_left",
	RoleAnchorRight:  "anchor_right",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) {
	s, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(s), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for role, name := range roleNames {
		if name == string(b) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", string(b))
}

func (Role) JSONSchema() *jsonschema.Schema {
	names := make([]string, 0, len(roleNames))
	for _, n := range roleNames {
		names = append(names, n)
	}
	slices.Sort(names)
	enum := make([]any, len(names))
	for i, n := range names {
		enum[i] = n
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

// Column is a named numeric column with its declared role.
type Column struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Row is one record. A key absent from IDs is a null identifier; a nil value
// is a null measurement.
type Row struct {
	// Index is the position of the record in the source it was read from.
	Index  int
	IDs    map[string]string
	Values map[string]*float64
}

// ID returns the identifier stored under key, reporting false for null.
func (r Row) ID(key string) (string, bool) {
	v, ok := r.IDs[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r Row) clone() Row {
	out := Row{
		Index:  r.Index,
		IDs:    make(map[string]string, len(r.IDs)),
		Values: make(map[string]*float64, len(r.Values)),
	}
	for k, v := range r.IDs {
		out.IDs[k] = v
	}
	for k, v := range r.Values {
		if v != nil {
			out.Values[k] = Float(*v)
		}
	}
	return out
}

// Table is an in-memory frame: string identifier columns followed by numeric
// columns. Stages never mutate their input table.
type Table struct {
	Name    string
	Keys    []string
	Columns []Column
	Rows    []Row

	recoded bool
}

// TableSpec is the column layout of a table, persisted next to its CSV so a
// reader can recover roles without guessing from column names.
type TableSpec struct {
	Keys    []string `json:"keys"`
	Columns []Column `json:"columns"`
}

// NewTable returns an empty table with the given layout.
func NewTable(name string, keys []string, columns []Column) *Table {
	return &Table{
		Name:    name,
		Keys:    slices.Clone(keys),
		Columns: slices.Clone(columns),
	}
}

// Spec returns the table layout.
func (t *Table) Spec() TableSpec {
	return TableSpec{Keys: slices.Clone(t.Keys), Columns: slices.Clone(t.Columns)}
}

func (t *Table) Len() int { return len(t.Rows) }

// ColumnNames returns the numeric column names in order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnsWithRole returns the names of columns carrying any of roles, in order.
func (t *Table) ColumnsWithRole(roles ...Role) []string {
	var out []string
	for _, c := range t.Columns {
		if slices.Contains(roles, c.Role) {
			out = append(out, c.Name)
		}
	}
	return out
}

func (t *Table) HasColumn(name string) bool {
	return slices.ContainsFunc(t.Columns, func(c Column) bool { return c.Name == name })
}

func (t *Table) HasKey(name string) bool {
	return slices.Contains(t.Keys, name)
}

// UniqueIDs returns the distinct non-null identifiers under key, in order of
// first occurrence.
func (t *Table) UniqueIDs(key string) []string {
	seen := make(map[string]struct{}, len(t.Rows))
	var out []string
	for _, r := range t.Rows {
		id, ok := r.ID(key)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Header returns key names followed by column names.
func (t *Table) Header() []string {
	return append(slices.Clone(t.Keys), t.ColumnNames()...)
}

// Records renders rows in Header order. Nulls are empty strings.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make([]string, 0, len(t.Keys)+len(t.Columns))
		for _, k := range t.Keys {
			rec = append(rec, r.IDs[k])
		}
		for _, c := range t.Columns {
			rec = append(rec, FormatValue(r.Values[c.Name]))
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) clone() *Table {
	out := NewTable(t.Name, t.Keys, t.Columns)
	out.recoded = t.recoded
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.clone()
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// parseFinite parses s as a float, rejecting NaN and infinities.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatValue renders a nullable number with the shortest exact representation.
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
