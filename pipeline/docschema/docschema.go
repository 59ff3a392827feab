// Package docschema generates JSON Schema documents for the files the
// pipeline reads and writes.
package docschema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/invopop/jsonschema"
)

// Options controls schema reflection.
type Options struct {
	// Strict closes every object and marks every property required.
	Strict bool
	// FieldNameTag is the struct tag property names are read from; json by
	// default.
	FieldNameTag string
}

// Generate reflects T into a JSON Schema map.
func Generate[T any](opts Options) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  !opts.Strict,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               opts.FieldNameTag,
	}
	var v T
	schema := reflector.Reflect(v)
	m, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}
	if opts.Strict {
		ensureStrict(m)
	}
	return m, nil
}

var documents = map[string]func(strict bool) (map[string]any, error){
	"assessment": func(strict bool) (map[string]any, error) {
		return Generate[pipeline.AssessmentExport](Options{Strict: strict})
	},
	"report": func(strict bool) (map[string]any, error) {
		return Generate[pipeline.RunReport](Options{Strict: strict})
	},
	"instrument": func(strict bool) (map[string]any, error) {
		return Generate[pipeline.Schema](Options{Strict: strict, FieldNameTag: "yaml"})
	},
}

// Names lists the documents Document knows, sorted.
func Names() []string {
	out := make([]string, 0, len(documents))
	for name := range documents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Document returns the JSON Schema of a named pipeline document.
func Document(name string, strict bool) (map[string]any, error) {
	gen, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("unknown document %q (want one of %v)", name, Names())
	}
	return gen(strict)
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func ensureStrict(schema map[string]any) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		if properties, ok := schema[propertiesKey].(map[string]any); ok {
			schema[additionalPropertiesKey] = false
			var required []string
			for name := range properties {
				required = append(required, name)
			}
			sort.Strings(required)
			if len(required) > 0 {
				schema[requiredKey] = required
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]any); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]any); ok {
				ensureStrict(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]any); ok {
		ensureStrict(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]any); ok {
		ensureStrict(additionalProps)
	}
}
