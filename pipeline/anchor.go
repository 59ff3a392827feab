package pipeline

// AnchorLeft and AnchorRight name the two halves of a split column.
func AnchorLeft(col string) string  { return col + "_LEFT" }
func AnchorRight(col string) string { return col + "_RIGHT" }

// AnchorSplit decomposes a score s in [0, 1] into its distance below and
// above the midpoint. At most one side is non-zero.
func AnchorSplit(s float64) (left, right float64) {
	c := s - 0.5
	if c < 0 {
		left = -c
	}
	if c > 0 {
		right = c
	}
	return left, right
}

// SplitByAnchor replaces each named column of t by its left and right halves
// in place. Nulls stay null on both sides.
func SplitByAnchor(t *Table, columns []string) (*Table, error) {
	split := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, &SchemaError{Source: t.Name, Field: c, Row: -1, Reason: "no such column to split"}
		}
		split[c] = true
	}

	out := t.clone()
	out.Name = t.Name + "_split_by_anchor"
	out.Columns = out.Columns[:0:0]
	for _, c := range t.Columns {
		if !split[c.Name] {
			out.Columns = append(out.Columns, c)
			continue
		}
		out.Columns = append(out.Columns,
			Column{Name: AnchorLeft(c.Name), Role: RoleAnchorLeft},
			Column{Name: AnchorRight(c.Name), Role: RoleAnchorRight},
		)
	}

	for i := range out.Rows {
		r := &out.Rows[i]
		for c := range split {
			v := r.Values[c]
			delete(r.Values, c)
			if v == nil {
				continue
			}
			if !(*v >= 0 && *v <= 1) {
				return nil, &RangeError{Column: c, Row: r.Index, Value: *v, Min: 0, Max: 1}
			}
			left, right := AnchorSplit(*v)
			r.Values[AnchorLeft(c)] = Float(left)
			r.Values[AnchorRight(c)] = Float(right)
		}
	}
	return out, nil
}
