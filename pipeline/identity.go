package pipeline

import (
	"fmt"
	"io"
	"slices"

	"github.com/charlie42/facets-validity/pipeline/fileutils"
)

// IdentityResolver maps a raw subject identifier to a canonical study id.
type IdentityResolver interface {
	Resolve(rawID string) (string, bool)
}

// IdentityMap is an injective lookup from raw subject id to canonical study id.
type IdentityMap struct {
	ids map[string]string
}

// NewIdentityMap builds a map from raw → canonical pairs. A raw id listed
// twice with different canonical ids is a DuplicateKeyError; an exact repeat
// is accepted.
func NewIdentityMap(pairs [][2]string) (*IdentityMap, error) {
	m := &IdentityMap{ids: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if err := m.add(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *IdentityMap) add(raw, canonical string) error {
	if raw == "" || canonical == "" {
		return nil
	}
	if prev, ok := m.ids[raw]; ok && prev != canonical {
		return &DuplicateKeyError{Table: "id mapping", Key: raw, First: prev, Second: canonical}
	}
	m.ids[raw] = canonical
	return nil
}

// LoadIdentityMap reads a comma separated mapping table with a header row.
// Rows with a blank canonical id leave the raw id unmapped.
func LoadIdentityMap(r io.Reader, rawColumn, canonicalColumn string) (*IdentityMap, error) {
	header, records, err := fileutils.ReadDelimited(r, ',')
	if err != nil {
		return nil, fmt.Errorf("LoadIdentityMap: %w", err)
	}
	rawIdx := slices.Index(header, rawColumn)
	if rawIdx < 0 {
		return nil, missingField("id mapping", rawColumn)
	}
	canIdx := slices.Index(header, canonicalColumn)
	if canIdx < 0 {
		return nil, missingField("id mapping", canonicalColumn)
	}

	m := &IdentityMap{ids: make(map[string]string, len(records))}
	for _, rec := range records {
		if err := m.add(rec[rawIdx], rec[canIdx]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *IdentityMap) Resolve(rawID string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.ids[rawID]
	return id, ok
}

func (m *IdentityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}

// PassthroughIdentity uses the raw id as the canonical id.
type PassthroughIdentity struct{}

func (PassthroughIdentity) Resolve(rawID string) (string, bool) {
	return rawID, rawID != ""
}

// Resolver wraps an IdentityResolver and records which raw ids failed to
// resolve, so coverage loss is reportable.
type Resolver struct {
	inner      IdentityResolver
	resolved   map[string]struct{}
	unresolved map[string]struct{}
	order      []string
}

func NewResolver(inner IdentityResolver) *Resolver {
	if inner == nil {
		inner = PassthroughIdentity{}
	}
	return &Resolver{
		inner:      inner,
		resolved:   map[string]struct{}{},
		unresolved: map[string]struct{}{},
	}
}

func (r *Resolver) Resolve(rawID string) (string, bool) {
	id, ok := r.inner.Resolve(rawID)
	if ok {
		r.resolved[rawID] = struct{}{}
		return id, true
	}
	if _, seen := r.unresolved[rawID]; !seen {
		r.unresolved[rawID] = struct{}{}
		r.order = append(r.order, rawID)
	}
	return "", false
}

// ResolvedCount is the number of distinct raw ids that resolved.
func (r *Resolver) ResolvedCount() int { return len(r.resolved) }

// Unresolved returns the distinct raw ids that did not resolve, in order of
// first lookup.
func (r *Resolver) Unresolved() []string { return slices.Clone(r.order) }
