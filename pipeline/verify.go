package pipeline

import (
	"fmt"
	"slices"
	"sort"
)

// RaterPair is two raters and the number of participants both rated.
type RaterPair struct {
	A            string `json:"a"`
	B            string `json:"b"`
	Participants int    `json:"participants"`
}

// RaterCoverage summarises how assessments are spread over raters.
type RaterCoverage struct {
	Entries      int `json:"entries"`
	Participants int `json:"participants"`
	Raters       int `json:"raters"`
	// Participants by number of distinct raters.
	RatedOnce  int `json:"rated_once"`
	RatedTwice int `json:"rated_twice"`
	RatedMore  int `json:"rated_more"`
	// SharedPairs lists rater pairs with at least one common participant,
	// most shared first.
	SharedPairs []RaterPair `json:"shared_pairs,omitempty"`
}

// ComputeRaterCoverage counts participants and raters in an assessment table.
// Rows with a null participant or rater are counted as entries only.
func ComputeRaterCoverage(t *Table, participantKey, raterKey string) (RaterCoverage, error) {
	cov := RaterCoverage{Entries: t.Len()}
	byParticipant, err := ratersByParticipant(t, participantKey, raterKey)
	if err != nil {
		return cov, err
	}
	cov.Participants = len(byParticipant)

	byRater := map[string]map[string]struct{}{}
	for p, raters := range byParticipant {
		switch n := len(raters); {
		case n == 1:
			cov.RatedOnce++
		case n == 2:
			cov.RatedTwice++
		default:
			cov.RatedMore++
		}
		for r := range raters {
			if byRater[r] == nil {
				byRater[r] = map[string]struct{}{}
			}
			byRater[r][p] = struct{}{}
		}
	}
	cov.Raters = len(byRater)

	raters := make([]string, 0, len(byRater))
	for r := range byRater {
		raters = append(raters, r)
	}
	sort.Strings(raters)
	for i := range raters {
		for j := i + 1; j < len(raters); j++ {
			shared := 0
			for p := range byRater[raters[i]] {
				if _, ok := byRater[raters[j]][p]; ok {
					shared++
				}
			}
			if shared > 0 {
				cov.SharedPairs = append(cov.SharedPairs, RaterPair{A: raters[i], B: raters[j], Participants: shared})
			}
		}
	}
	sort.SliceStable(cov.SharedPairs, func(i, j int) bool {
		return cov.SharedPairs[i].Participants > cov.SharedPairs[j].Participants
	})
	return cov, nil
}

func ratersByParticipant(t *Table, participantKey, raterKey string) (map[string]map[string]struct{}, error) {
	for _, k := range []string{participantKey, raterKey} {
		if !t.HasKey(k) {
			return nil, &SchemaError{Source: t.Name, Field: k, Row: -1, Reason: "not an identifier column"}
		}
	}
	out := map[string]map[string]struct{}{}
	for _, r := range t.Rows {
		p, ok := r.ID(participantKey)
		if !ok {
			continue
		}
		rater, ok := r.ID(raterKey)
		if !ok {
			continue
		}
		if out[p] == nil {
			out[p] = map[string]struct{}{}
		}
		out[p][rater] = struct{}{}
	}
	return out, nil
}

// DoublyRated keeps the rows of participants rated by exactly two distinct
// raters.
func DoublyRated(t *Table, participantKey, raterKey string) (*Table, error) {
	byParticipant, err := ratersByParticipant(t, participantKey, raterKey)
	if err != nil {
		return nil, err
	}
	return filterRows(t, func(r Row) bool {
		p, ok := r.ID(participantKey)
		return ok && len(byParticipant[p]) == 2
	}), nil
}

// TopRaters returns the n raters with the most distinct participants. Ties
// are broken by rater id.
func TopRaters(t *Table, participantKey, raterKey string, n int) ([]string, error) {
	byParticipant, err := ratersByParticipant(t, participantKey, raterKey)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, raters := range byParticipant {
		for r := range raters {
			counts[r]++
		}
	}
	raters := make([]string, 0, len(counts))
	for r := range counts {
		raters = append(raters, r)
	}
	sort.Slice(raters, func(i, j int) bool {
		if counts[raters[i]] != counts[raters[j]] {
			return counts[raters[i]] > counts[raters[j]]
		}
		return raters[i] < raters[j]
	})
	if n < len(raters) {
		raters = raters[:n]
	}
	return raters, nil
}

// FilterByRaters keeps the rows rated by one of raters.
func FilterByRaters(t *Table, raterKey string, raters []string) *Table {
	return filterRows(t, func(r Row) bool {
		id, ok := r.ID(raterKey)
		return ok && slices.Contains(raters, id)
	})
}

func filterRows(t *Table, keep func(Row) bool) *Table {
	out := NewTable(t.Name, t.Keys, t.Columns)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r.clone())
		}
	}
	return out
}

// RatingMatrix builds a participants × raters matrix of column. Repeated
// ratings by the same rater are averaged; participants missing a rating from
// any of raters are left out. Participants are sorted by id.
func RatingMatrix(t *Table, participantKey, raterKey string, raters []string, column string) ([]string, [][]float64, error) {
	if !t.HasColumn(column) {
		return nil, nil, &SchemaError{Source: t.Name, Field: column, Row: -1, Reason: "no such column"}
	}
	if len(raters) < 2 {
		return nil, nil, fmt.Errorf("RatingMatrix: need at least two raters, got %d", len(raters))
	}
	col := map[string]int{}
	for i, r := range raters {
		col[r] = i
	}

	type cell struct {
		sum float64
		n   int
	}
	cells := map[string][]cell{}
	for _, r := range t.Rows {
		p, ok := r.ID(participantKey)
		if !ok {
			continue
		}
		rater, ok := r.ID(raterKey)
		if !ok {
			continue
		}
		j, ok := col[rater]
		if !ok {
			continue
		}
		v := r.Values[column]
		if v == nil {
			continue
		}
		if cells[p] == nil {
			cells[p] = make([]cell, len(raters))
		}
		cells[p][j].sum += *v
		cells[p][j].n++
	}

	var targets []string
	for p, row := range cells {
		if !slices.ContainsFunc(row, func(c cell) bool { return c.n == 0 }) {
			targets = append(targets, p)
		}
	}
	sort.Strings(targets)
	m := make([][]float64, len(targets))
	for i, p := range targets {
		m[i] = make([]float64, len(raters))
		for j, c := range cells[p] {
			m[i][j] = c.sum / float64(c.n)
		}
	}
	return targets, m, nil
}
