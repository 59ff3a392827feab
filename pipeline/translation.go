package pipeline

import (
	"fmt"
	"io"
	"slices"

	"github.com/charlie42/facets-validity/pipeline/fileutils"
)

// Provenance tells whether an item name came from the translation table or
// fell back to the raw item id.
type Provenance int

const (
	ProvenanceTranslated Provenance = iota
	ProvenanceFallback
)

func (p Provenance) String() string {
	if p == ProvenanceTranslated {
		return "translated"
	}
	return "fallback"
}

// Translation is the column name chosen for an item id.
type Translation struct {
	Name       string
	Provenance Provenance
}

// TranslationTable maps opaque item ids to stable slugs for one locale.
type TranslationTable struct {
	Locale string
	slugs  map[string]string
}

// NewTranslationTable builds a table from id → slug pairs for locale.
func NewTranslationTable(locale string, slugs map[string]string) *TranslationTable {
	t := &TranslationTable{Locale: locale, slugs: make(map[string]string, len(slugs))}
	for id, slug := range slugs {
		t.slugs[id] = slug
	}
	return t
}

// LoadTranslations reads a comma separated table with columns
// assessment_item_id, locale_code and slug, keeping rows whose locale code
// equals locale exactly.
func LoadTranslations(r io.Reader, locale string) (*TranslationTable, error) {
	header, records, err := fileutils.ReadDelimited(r, ',')
	if err != nil {
		return nil, fmt.Errorf("LoadTranslations: %w", err)
	}
	idx := map[string]int{}
	for _, col := range []string{"assessment_item_id", "locale_code", "slug"} {
		i := slices.Index(header, col)
		if i < 0 {
			return nil, missingField("item translation", col)
		}
		idx[col] = i
	}

	t := &TranslationTable{Locale: locale, slugs: map[string]string{}}
	for _, rec := range records {
		if rec[idx["locale_code"]] != locale {
			continue
		}
		id, slug := rec[idx["assessment_item_id"]], rec[idx["slug"]]
		if id == "" || slug == "" {
			continue
		}
		if prev, ok := t.slugs[id]; ok && prev != slug {
			return nil, &DuplicateKeyError{Table: "item translation (" + locale + ")", Key: id, First: prev, Second: slug}
		}
		t.slugs[id] = slug
	}
	return t, nil
}

// Translate returns the slug for itemID, or the raw id with fallback
// provenance when no translation exists.
func (t *TranslationTable) Translate(itemID string) Translation {
	if t != nil {
		if slug, ok := t.slugs[itemID]; ok {
			return Translation{Name: slug, Provenance: ProvenanceTranslated}
		}
	}
	return Translation{Name: itemID, Provenance: ProvenanceFallback}
}

func (t *TranslationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.slugs)
}
