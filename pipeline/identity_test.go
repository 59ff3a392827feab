package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIdentityMap(t *testing.T) {
	t.Parallel()

	in := "subject_id,dislay_label,site\nsub-1,P001,a\nsub-2,,b\nsub-1,P001,a\n"
	m, err := LoadIdentityMap(strings.NewReader(in), "subject_id", "dislay_label")
	require.NoError(t, err)

	id, ok := m.Resolve("sub-1")
	assert.True(t, ok)
	assert.Equal(t, "P001", id)
	_, ok = m.Resolve("sub-2")
	assert.False(t, ok, "blank canonical id leaves the subject unmapped")
	assert.Equal(t, 1, m.Len())
}

func TestLoadIdentityMap_Ambiguous(t *testing.T) {
	t.Parallel()

	in := "subject_id,dislay_label\nsub-1,P001\nsub-1,P002\n"
	_, err := LoadIdentityMap(strings.NewReader(in), "subject_id", "dislay_label")
	var dk *DuplicateKeyError
	require.True(t, errors.As(err, &dk), "got %v", err)
	assert.Equal(t, "sub-1", dk.Key)
	assert.Equal(t, "P001", dk.First)
	assert.Equal(t, "P002", dk.Second)
}

func TestLoadIdentityMap_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := LoadIdentityMap(strings.NewReader("subject_id,label\nsub-1,P001\n"), "subject_id", "dislay_label")
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "dislay_label", se.Field)
}

func TestResolver_TracksUnresolved(t *testing.T) {
	t.Parallel()

	m, err := NewIdentityMap([][2]string{{"a", "A"}})
	require.NoError(t, err)
	r := NewResolver(m)

	for _, raw := range []string{"x", "a", "y", "x", "a"} {
		r.Resolve(raw)
	}
	assert.Equal(t, 1, r.ResolvedCount())
	assert.Equal(t, []string{"x", "y"}, r.Unresolved())

	pass := NewResolver(nil)
	id, ok := pass.Resolve("raw")
	assert.True(t, ok)
	assert.Equal(t, "raw", id)
}

func TestTranslations(t *testing.T) {
	t.Parallel()

	in := "assessment_item_id,locale_code,slug\n" +
		"i-1,en,mood_low\n" +
		"i-1,fr,humeur_basse\n" +
		"i-2,en-GB,mood_high\n" +
		"i-1,en,mood_low\n"
	tr, err := LoadTranslations(strings.NewReader(in), "en")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Len())

	assert.Equal(t, Translation{Name: "mood_low", Provenance: ProvenanceTranslated}, tr.Translate("i-1"))
	// locale match is exact
	assert.Equal(t, Translation{Name: "i-2", Provenance: ProvenanceFallback}, tr.Translate("i-2"))

	var none *TranslationTable
	assert.Equal(t, ProvenanceFallback, none.Translate("i-1").Provenance)
	assert.Equal(t, "fallback", ProvenanceFallback.String())
}

func TestTranslations_Conflict(t *testing.T) {
	t.Parallel()

	in := "assessment_item_id,locale_code,slug\ni-1,en,mood_low\ni-1,en,mood_down\n"
	_, err := LoadTranslations(strings.NewReader(in), "en")
	var dk *DuplicateKeyError
	require.True(t, errors.As(err, &dk), "got %v", err)
	assert.Equal(t, "i-1", dk.Key)
}
