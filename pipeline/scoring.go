package pipeline

import (
	"math"
	"slices"
)

// ScoreStats counts scores nulled by the missing-item threshold, per subscale.
type ScoreStats struct {
	NulledScores map[string]int `json:"nulled_scores"`
	NullTotals   int            `json:"null_totals"`
}

// MissingColumn returns the name of the missing-item count column for a
// subscale.
func MissingColumn(subscale string) string { return subscale + " missing" }

// RecodeReverse maps a reverse-worded item response {0, 1, 2} to {2, 1, 0}.
func RecodeReverse(v float64) float64 { return 2 - v }

// Score reverse-codes the declared items, scores every subscale and adds the
// total. The input table is not modified. Scoring a table that came out of
// Score returns ErrAlreadyRecoded.
//
// A subscale with more than the tolerated number of missing items scores
// null. Otherwise the score is the mean of the present items times the
// subscale size, rounded half to even.
func Score(t *Table, sc ChecklistSchema) (*Table, ScoreStats, error) {
	stats := ScoreStats{NulledScores: map[string]int{}}
	if t.recoded {
		return nil, stats, ErrAlreadyRecoded
	}
	for _, item := range sc.Items() {
		if !t.HasColumn(item) {
			return nil, stats, missingField(t.Name, item)
		}
	}
	for _, name := range scoreColumns(sc) {
		if t.HasColumn(name) {
			return nil, stats, &SchemaError{Source: t.Name, Field: name, Row: -1, Reason: "column already present, scoring would duplicate it"}
		}
	}

	out := t.clone()
	out.Name = t.Name + "_scored"
	for _, s := range sc.Subscales {
		out.Columns = append(out.Columns, Column{Name: s.Name, Role: RoleSubscale})
	}
	if len(sc.TotalOf) > 0 {
		out.Columns = append(out.Columns, Column{Name: sc.TotalName, Role: RoleTotal})
	}
	for _, s := range sc.Subscales {
		out.Columns = append(out.Columns, Column{Name: MissingColumn(s.Name), Role: RoleMissingCount})
	}

	limit := sc.MissingThreshold()
	for i := range out.Rows {
		r := &out.Rows[i]
		for _, item := range sc.Items() {
			v := r.Values[item]
			if v == nil {
				continue
			}
			if *v != 0 && *v != 1 && *v != 2 {
				return nil, stats, &RangeError{Column: item, Row: r.Index, Value: *v, Min: 0, Max: 2}
			}
			if slices.Contains(sc.ReverseItems, item) {
				r.Values[item] = Float(RecodeReverse(*v))
			}
		}

		for _, s := range sc.Subscales {
			score, missing := subscaleScore(r.Values, s.Items)
			r.Values[MissingColumn(s.Name)] = Float(float64(missing))
			if missing > limit || score == nil {
				stats.NulledScores[s.Name]++
				delete(r.Values, s.Name)
				continue
			}
			if *score < 0 || *score > 2*float64(len(s.Items)) {
				return nil, stats, &RangeError{Column: s.Name, Row: r.Index, Value: *score, Min: 0, Max: 2 * float64(len(s.Items))}
			}
			r.Values[s.Name] = score
		}

		if len(sc.TotalOf) > 0 {
			total, ok := 0.0, true
			for _, name := range sc.TotalOf {
				v := r.Values[name]
				if v == nil {
					ok = false
					break
				}
				total += *v
			}
			if ok {
				r.Values[sc.TotalName] = Float(total)
			} else {
				stats.NullTotals++
			}
		}
	}
	out.recoded = true
	return out, stats, nil
}

// scoreColumns lists the names Score adds to a table.
func scoreColumns(sc ChecklistSchema) []string {
	var out []string
	for _, s := range sc.Subscales {
		out = append(out, s.Name, MissingColumn(s.Name))
	}
	if len(sc.TotalOf) > 0 {
		out = append(out, sc.TotalName)
	}
	return out
}

func subscaleScore(values map[string]*float64, items []string) (*float64, int) {
	var sum float64
	present := 0
	for _, item := range items {
		if v := values[item]; v != nil {
			sum += *v
			present++
		}
	}
	missing := len(items) - present
	if present == 0 {
		return nil, missing
	}
	return Float(math.RoundToEven(sum / float64(present) * float64(len(items)))), missing
}
