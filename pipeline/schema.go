package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// Schema declares the two instruments: which fields, items and columns exist
// and what they mean.
type Schema struct {
	Version     string            `yaml:"version"`
	Facets      FacetsSchema      `yaml:"facets"`
	Checklist   ChecklistSchema   `yaml:"checklist"`
	Diagnosis   DiagnosisSchema   `yaml:"diagnosis"`
	Identity    IdentitySchema    `yaml:"identity"`
	Aggregation AggregationSchema `yaml:"aggregation"`
}

type FacetsSchema struct {
	ArrayField       string   `yaml:"array_field"`
	CanonicalGroupID string   `yaml:"canonical_group_id"`
	Locale           string   `yaml:"locale"`
	BoundedItems     []string `yaml:"bounded_items"`
}

type ChecklistSchema struct {
	IDColumn         string     `yaml:"id_column"`
	CompletionColumn string     `yaml:"completion_column"`
	Sentinels        []string   `yaml:"sentinels"`
	MaxMissing       *int       `yaml:"max_missing"`
	ReverseItems     []string   `yaml:"reverse_items"`
	Subscales        []Subscale `yaml:"subscales"`
	TotalName        string     `yaml:"total_name"`
	TotalOf          []string   `yaml:"total_of"`
}

// Subscale is a named group of checklist items scored together.
type Subscale struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// SubscaleSize is the number of items in every checklist subscale.
const SubscaleSize = 5

// Items returns every item of every subscale, in declaration order.
func (c ChecklistSchema) Items() []string {
	var out []string
	for _, s := range c.Subscales {
		out = append(out, s.Items...)
	}
	return out
}

// MissingThreshold returns the largest tolerated number of missing items per
// subscale.
func (c ChecklistSchema) MissingThreshold() int {
	if c.MaxMissing == nil {
		return 3
	}
	return *c.MaxMissing
}

type DiagnosisSchema struct {
	IDColumn         string `yaml:"id_column"`
	CompletionColumn string `yaml:"completion_column"`
	Prefix           string `yaml:"prefix"`
}

type IdentitySchema struct {
	RawColumn       string `yaml:"raw_column"`
	CanonicalColumn string `yaml:"canonical_column"`
}

type AggregationSchema struct {
	Checklist string `yaml:"checklist"`
	Facets    string `yaml:"facets"`
	Diagnosis string `yaml:"diagnosis"`
}

// DefaultSchema returns the built-in SDQ + FACETS schema.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}
	return s
}

// LoadSchema reads and parses a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSchema: read %s: %w", path, err)
	}
	return ParseSchema(data)
}

// ParseSchema parses YAML schema data and fills in defaults for optional
// scalar fields.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ParseSchema: %w", err)
	}
	applySchemaDefaults(&s)
	return &s, nil
}

func applySchemaDefaults(s *Schema) {
	if s.Version == "" {
		s.Version = "1"
	}
	if s.Facets.ArrayField == "" {
		s.Facets.ArrayField = "assessment_response_list_anonymized"
	}
	if s.Facets.Locale == "" {
		s.Facets.Locale = "en"
	}
	if s.Checklist.TotalName == "" {
		s.Checklist.TotalName = "tot"
	}
	if s.Diagnosis.IDColumn == "" {
		s.Diagnosis.IDColumn = ColStudyID
	}
	if s.Identity.RawColumn == "" {
		s.Identity.RawColumn = "subject_id"
	}
	if s.Identity.CanonicalColumn == "" {
		s.Identity.CanonicalColumn = "dislay_label"
	}
	if s.Aggregation.Checklist == "" {
		s.Aggregation.Checklist = "mean"
	}
	if s.Aggregation.Facets == "" {
		s.Aggregation.Facets = "mean"
	}
	if s.Aggregation.Diagnosis == "" {
		s.Aggregation.Diagnosis = "first"
	}
}

// GroupID returns the parsed canonical assessment group id.
func (s *Schema) GroupID() (uuid.UUID, error) {
	id, err := uuid.Parse(s.Facets.CanonicalGroupID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("canonical_group_id %q: %w", s.Facets.CanonicalGroupID, err)
	}
	return id, nil
}

// Validate checks the schema for structural problems.
func (s *Schema) Validate() *Diagnostics {
	d := &Diagnostics{}

	if _, err := s.GroupID(); err != nil {
		d.AddError("invalid_group_id", "facets.canonical_group_id", err.Error())
	}
	if s.Facets.Locale == "" {
		d.AddError("missing_locale", "facets.locale", "locale is empty")
	}

	c := s.Checklist
	if c.IDColumn == "" {
		d.AddError("missing_column", "checklist.id_column", "id column is empty")
	}
	if c.CompletionColumn == "" {
		d.AddWarning("no_completion_filter", "checklist.completion_column", "no completion column; every row is kept")
	}
	if c.MissingThreshold() < 0 || c.MissingThreshold() >= SubscaleSize {
		d.AddError("invalid_threshold", "checklist.max_missing", fmt.Sprintf("must be in [0, %d)", SubscaleSize))
	}
	if len(c.Subscales) == 0 {
		d.AddError("no_subscales", "checklist.subscales", "no subscales declared")
	}

	itemOwner := map[string]string{}
	names := map[string]struct{}{}
	for _, sub := range c.Subscales {
		field := "checklist.subscales." + sub.Name
		if sub.Name == "" {
			d.AddError("unnamed_subscale", "checklist.subscales", "subscale without a name")
		}
		if _, dup := names[sub.Name]; dup {
			d.AddError("duplicate_subscale", field, "declared twice")
		}
		names[sub.Name] = struct{}{}
		if len(sub.Items) != SubscaleSize {
			d.AddError("subscale_size", field, fmt.Sprintf("has %d items, want %d", len(sub.Items), SubscaleSize))
		}
		for _, item := range sub.Items {
			if owner, ok := itemOwner[item]; ok {
				d.AddError("shared_item", field, fmt.Sprintf("item %q already belongs to %s", item, owner))
				continue
			}
			itemOwner[item] = sub.Name
		}
	}
	for _, item := range c.ReverseItems {
		if _, ok := itemOwner[item]; !ok {
			d.AddError("unknown_reverse_item", "checklist.reverse_items", fmt.Sprintf("item %q is not in any subscale", item))
		}
	}
	for _, name := range c.TotalOf {
		if _, ok := names[name]; !ok {
			d.AddError("unknown_total_part", "checklist.total_of", fmt.Sprintf("subscale %q not declared", name))
		}
	}
	if _, clash := names[c.TotalName]; clash {
		d.AddError("total_name_clash", "checklist.total_name", fmt.Sprintf("%q is also a subscale", c.TotalName))
	}

	if s.Diagnosis.Prefix == "" {
		d.AddWarning("no_prefix", "diagnosis.prefix", "diagnosis columns will not be prefixed")
	}

	for field, name := range map[string]string{
		"aggregation.checklist": s.Aggregation.Checklist,
		"aggregation.facets":    s.Aggregation.Facets,
		"aggregation.diagnosis": s.Aggregation.Diagnosis,
	} {
		if _, err := StrategyByName(name); err != nil {
			d.AddError("unknown_strategy", field, err.Error())
		}
	}

	if slices.Contains(s.Facets.BoundedItems, "") {
		d.AddError("empty_item", "facets.bounded_items", "empty item name")
	}
	return d
}
