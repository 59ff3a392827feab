package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy reduces the values of one column for one participant.
type Strategy interface {
	Name() string
	Reduce(values []*float64) *float64
}

// MeanStrategy is the arithmetic mean of the non-null values; all null gives
// null.
type MeanStrategy struct{}

func (MeanStrategy) Name() string { return "mean" }

func (MeanStrategy) Reduce(values []*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	return Float(sum / float64(n))
}

// FirstStrategy keeps the first non-null value in original row order.
type FirstStrategy struct{}

func (FirstStrategy) Name() string { return "first" }

func (FirstStrategy) Reduce(values []*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return Float(*v)
		}
	}
	return nil
}

var strategies = map[string]Strategy{
	MeanStrategy{}.Name():  MeanStrategy{},
	FirstStrategy{}.Name(): FirstStrategy{},
}

// StrategyByName looks up a registered aggregation strategy.
func StrategyByName(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		names := make([]string, 0, len(strategies))
		for n := range strategies {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown aggregation strategy %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return s, nil
}

// AggregateStats reports how many rows collapsed into participant rows.
type AggregateStats struct {
	Strategy       string `json:"strategy"`
	RowsIn         int    `json:"rows_in"`
	RowsWithoutKey int    `json:"rows_without_key"`
	Participants   int    `json:"participants"`
}

// Aggregate groups t by key and reduces every numeric column with s. Other
// identifier columns are dropped. Rows whose key is null are excluded and
// counted. The result is sorted by key and keyed by key alone.
func Aggregate(t *Table, key string, s Strategy) (*Table, AggregateStats, error) {
	stats := AggregateStats{Strategy: s.Name(), RowsIn: t.Len()}
	if !t.HasKey(key) {
		return nil, stats, &SchemaError{Source: t.Name, Field: key, Row: -1, Reason: "not an identifier column"}
	}

	groups := map[string][]Row{}
	for _, r := range t.Rows {
		id, ok := r.ID(key)
		if !ok {
			stats.RowsWithoutKey++
			continue
		}
		groups[id] = append(groups[id], r)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := NewTable(t.Name+"_grouped", []string{key}, t.Columns)
	out.Rows = make([]Row, 0, len(ids))
	values := make([]*float64, 0)
	for i, id := range ids {
		rows := groups[id]
		r := Row{Index: i, IDs: map[string]string{key: id}, Values: make(map[string]*float64, len(t.Columns))}
		for _, c := range t.Columns {
			values = values[:0]
			for _, src := range rows {
				values = append(values, src.Values[c.Name])
			}
			if v := s.Reduce(values); v != nil {
				r.Values[c.Name] = v
			}
		}
		out.Rows = append(out.Rows, r)
	}
	stats.Participants = out.Len()
	return out, stats, nil
}
