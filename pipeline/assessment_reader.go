package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
)

// AssessmentExport is the nested JSON document exported by the assessment tool.
type AssessmentExport struct {
	Entries []AssessmentEntry `json:"assessment_response_list_anonymized"`
}

// AssessmentEntry is one submission event. It is not modified after reading.
type AssessmentEntry struct {
	SubjectID         string              `json:"subject_id"`
	SubjectGroupID    string              `json:"subject_group_id"`
	LastUpdatedAt     string              `json:"last_updated_at"`
	RespondentActorID string              `json:"lisapedia_respondent_actor_id"`
	RespondentHash    string              `json:"respondent_hash"`
	Sections          []AssessmentSection `json:"assessment_response_sections"`
}

// EntryID is the entry identity: subject id followed by the update timestamp.
func (e AssessmentEntry) EntryID() string {
	return e.SubjectID + e.LastUpdatedAt
}

type AssessmentSection struct {
	SectionID FlexID           `json:"lisapedia_section_id"`
	Items     []AssessmentItem `json:"assessment_response_items"`
}

type AssessmentItem struct {
	ItemID FlexID    `json:"lisapedia_item_id"`
	Value  ItemValue `json:"value"`
}

// FlexID is an identifier the export writes either as a string or a number.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %s", string(b))
	}
	*f = FlexID(n.String())
	return nil
}

func (FlexID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "string"}, {Type: "integer"}}}
}

// ItemValue is a numeric-or-symbolic item response. Num is set for numbers
// and numeric strings; Raw keeps the original text.
type ItemValue struct {
	Num  *float64
	Raw  string
	Null bool
}

func (v *ItemValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ItemValue{Null: true}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = SymbolicValue(s)
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*v = ItemValue{Raw: string(b)}
	default:
		f, ok := parseFinite(string(b))
		if !ok {
			return fmt.Errorf("unsupported item value %s", string(b))
		}
		*v = ItemValue{Num: Float(f), Raw: string(b)}
	}
	return nil
}

func (v ItemValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Null:
		return []byte("null"), nil
	case v.Num != nil && v.Raw == FormatValue(v.Num):
		return []byte(v.Raw), nil
	default:
		return json.Marshal(v.Raw)
	}
}

func (ItemValue) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "number"}, {Type: "string"}, {Type: "boolean"}, {Type: "null"}}}
}

// NumericValue returns a numeric item value.
func NumericValue(f float64) ItemValue {
	return ItemValue{Num: Float(f), Raw: FormatValue(&f)}
}

// SymbolicValue returns an item value from text, parsing it when it is a
// finite number. "NaN" and "Inf" stay symbolic.
func SymbolicValue(s string) ItemValue {
	if f, ok := parseFinite(strings.TrimSpace(s)); ok {
		return ItemValue{Num: Float(f), Raw: s}
	}
	return ItemValue{Raw: s}
}

// Equal reports whether two values are the same response.
func (v ItemValue) Equal(o ItemValue) bool {
	if v.Null || o.Null {
		return v.Null == o.Null
	}
	if v.Num != nil && o.Num != nil {
		return *v.Num == *o.Num
	}
	if (v.Num == nil) != (o.Num == nil) {
		return false
	}
	return v.Raw == o.Raw
}

func (v ItemValue) String() string {
	if v.Null {
		return "null"
	}
	return v.Raw
}

// ReadAssessmentsFile opens path and reads all entries with ReadAssessments.
func ReadAssessmentsFile(ctx context.Context, path, arrayField string) ([]AssessmentEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadAssessments: open input: %w", err)
	}
	defer f.Close()
	return ReadAssessments(ctx, f, arrayField)
}

// ReadAssessments decodes assessment entries from r without holding the raw
// document in memory.
//
// The input is either a top-level JSON array of entries or a top-level object
// holding the entries in arrayField. If arrayField is empty the first
// array-valued field is used.
func ReadAssessments(ctx context.Context, r io.Reader, arrayField string) ([]AssessmentEntry, error) {
	if ctx == nil {
		return nil, errors.New("ReadAssessments: ctx is nil")
	}

	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("ReadAssessments: read first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("ReadAssessments: expected JSON array/object, got %T", tok)
	}

	var entries []AssessmentEntry
	switch delim {
	case '[':
		if err := readEntriesFromOpen(ctx, dec, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		found := false
		for dec.More() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("ReadAssessments: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("ReadAssessments: expected string key, got %T", keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("ReadAssessments: read value token for key %q: %w", key, err)
			}

			isTarget := !found && key == arrayField
			if !found && arrayField == "" {
				if d, ok := valTok.(json.Delim); ok && d == '[' {
					isTarget = true
				}
			}
			if isTarget {
				if d, ok := valTok.(json.Delim); !ok || d != '[' {
					return nil, &SchemaError{Source: "assessment export", Field: key, Row: -1, Reason: "not an array"}
				}
				found = true
				if err := readEntriesFromOpen(ctx, dec, &entries); err != nil {
					return nil, err
				}
				continue
			}
			if err := skipValue(dec, valTok); err != nil {
				return nil, fmt.Errorf("ReadAssessments: skip key %q value: %w", key, err)
			}
		}
		if tok, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("ReadAssessments: read closing object token: %w", err)
		} else if d, ok := tok.(json.Delim); !ok || d != '}' {
			return nil, fmt.Errorf("ReadAssessments: expected closing '}', got %v", tok)
		}
		if !found {
			field := arrayField
			if field == "" {
				field = "<array>"
			}
			return nil, missingField("assessment export", field)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("ReadAssessments: unsupported top-level delimiter %q", delim)
	}
}

// readEntriesFromOpen decodes array elements after the opening '[' and
// consumes the closing ']'.
func readEntriesFromOpen(ctx context.Context, dec *json.Decoder, out *[]AssessmentEntry) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw rawEntry
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("ReadAssessments: decode entry %d: %w", len(*out), err)
		}
		entry, err := raw.toEntry(len(*out))
		if err != nil {
			return err
		}
		*out = append(*out, entry)
	}
	if tok, err := dec.Token(); err != nil {
		return fmt.Errorf("ReadAssessments: read closing array token: %w", err)
	} else if d, ok := tok.(json.Delim); !ok || d != ']' {
		return fmt.Errorf("ReadAssessments: expected closing ']', got %v", tok)
	}
	return nil
}

// rawEntry uses pointers so absent fields can be told apart from empty ones.
type rawEntry struct {
	SubjectID         *string       `json:"subject_id"`
	SubjectGroupID    *string       `json:"subject_group_id"`
	LastUpdatedAt     *string       `json:"last_updated_at"`
	RespondentActorID *FlexID       `json:"lisapedia_respondent_actor_id"`
	RespondentHash    *string       `json:"respondent_hash"`
	Sections          *[]rawSection `json:"assessment_response_sections"`
}

type rawSection struct {
	SectionID FlexID     `json:"lisapedia_section_id"`
	Items     *[]rawItem `json:"assessment_response_items"`
}

type rawItem struct {
	ItemID *FlexID `json:"lisapedia_item_id"`
	// A JSON null is kept as the literal "null"; an absent value stays empty.
	Value json.RawMessage `json:"value"`
}

func (r rawEntry) toEntry(row int) (AssessmentEntry, error) {
	fail := func(field string) error {
		return &SchemaError{Source: "assessment export", Field: field, Row: row, Reason: "missing"}
	}
	switch {
	case r.SubjectID == nil:
		return AssessmentEntry{}, fail("subject_id")
	case r.SubjectGroupID == nil:
		return AssessmentEntry{}, fail("subject_group_id")
	case r.LastUpdatedAt == nil:
		return AssessmentEntry{}, fail("last_updated_at")
	case r.RespondentActorID == nil:
		return AssessmentEntry{}, fail("lisapedia_respondent_actor_id")
	case r.RespondentHash == nil:
		return AssessmentEntry{}, fail("respondent_hash")
	case r.Sections == nil:
		return AssessmentEntry{}, fail("assessment_response_sections")
	}

	e := AssessmentEntry{
		SubjectID:         *r.SubjectID,
		SubjectGroupID:    *r.SubjectGroupID,
		LastUpdatedAt:     *r.LastUpdatedAt,
		RespondentActorID: string(*r.RespondentActorID),
		RespondentHash:    *r.RespondentHash,
		Sections:          make([]AssessmentSection, 0, len(*r.Sections)),
	}
	for _, rs := range *r.Sections {
		if rs.Items == nil {
			return AssessmentEntry{}, fail("assessment_response_items")
		}
		sec := AssessmentSection{SectionID: rs.SectionID, Items: make([]AssessmentItem, 0, len(*rs.Items))}
		for _, ri := range *rs.Items {
			if ri.ItemID == nil || *ri.ItemID == "" {
				return AssessmentEntry{}, fail("lisapedia_item_id")
			}
			if len(ri.Value) == 0 {
				return AssessmentEntry{}, fail("value")
			}
			var v ItemValue
			if err := v.UnmarshalJSON(ri.Value); err != nil {
				return AssessmentEntry{}, &SchemaError{Source: "assessment export", Field: "value", Row: row, Reason: err.Error()}
			}
			sec.Items = append(sec.Items, AssessmentItem{ItemID: *ri.ItemID, Value: v})
		}
		e.Sections = append(e.Sections, sec)
	}
	return e, nil
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive (string/number/bool/null): already fully consumed.
		return nil
	}

	switch d {
	case '{', '[':
	default:
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
