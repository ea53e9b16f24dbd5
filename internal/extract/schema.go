package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/pkg/anthropic"
)

// FieldType is the JSON type of a response field.
type FieldType string

const (
	TypeString       FieldType = "string"
	TypeBoolean      FieldType = "boolean"
	TypeStringArray  FieldType = "string_array"
	TypeIntegerArray FieldType = "integer_array"
)

// Field declares one required key of a response object. Nullable fields
// must still be present but may be null.
type Field struct {
	Name        string
	Type        FieldType
	Nullable    bool
	Description string
}

// ResponseSchema declares the shape of a pass's answer and decodes it into T.
type ResponseSchema[T any] struct {
	Pass        model.Pass
	Name        string
	Description string
	Fields      []Field
}

// Tool renders the schema as a tool definition whose input is the answer.
func (s ResponseSchema[T]) Tool() anthropic.Tool {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = f.jsonSchema()
		required = append(required, f.Name)
	}
	return anthropic.Tool{
		Name:        s.Name,
		Description: s.Description,
		Properties:  props,
		Required:    required,
	}
}

func (f Field) jsonSchema() map[string]any {
	var out map[string]any
	switch f.Type {
	case TypeStringArray:
		out = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case TypeIntegerArray:
		out = map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}
	default:
		out = map[string]any{"type": string(f.Type)}
	}
	if f.Nullable {
		out["type"] = []any{out["type"], "null"}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	return out
}

// Parse validates raw against the schema and decodes it. It has no side
// effects. Validation failures are *MalformedResponseError.
func (s ResponseSchema[T]) Parse(raw []byte) (T, error) {
	var zero T
	malformed := func(err error) (T, error) {
		return zero, &MalformedResponseError{Pass: s.Pass, Err: err}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return malformed(eris.Wrap(err, "decode object"))
	}

	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok {
			return malformed(eris.Errorf("missing field %q", f.Name))
		}
		if isNull(v) {
			if !f.Nullable {
				return malformed(eris.Errorf("field %q must not be null", f.Name))
			}
			continue
		}
		if err := checkType(f.Type, v); err != nil {
			return malformed(eris.Wrapf(err, "field %q", f.Name))
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return malformed(eris.Wrap(err, "decode response"))
	}
	return out, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func checkType(t FieldType, v json.RawMessage) error {
	var target any
	switch t {
	case TypeString:
		target = new(string)
	case TypeBoolean:
		target = new(bool)
	case TypeStringArray:
		target = new([]string)
	case TypeIntegerArray:
		target = new([]int)
	default:
		return eris.Errorf("unsupported field type %q", t)
	}
	if err := json.Unmarshal(v, target); err != nil {
		return eris.Errorf("expected %s", strings.ReplaceAll(string(t), "_", " "))
	}
	return nil
}

// ContactResponse is the pass-1 answer.
type ContactResponse struct {
	Emails        []string `json:"emails"`
	IsContactPage bool     `json:"is_contact_page"`
	CareDetails   string   `json:"before_or_after_care_details"`
}

// ChildcareResponse is the pass-2 answer.
type ChildcareResponse struct {
	WebpageYear *string `json:"webpage_year"`

	ProvidesBeforeCare     *bool   `json:"provides_before_care"`
	BeforeCareStartTime    *string `json:"before_care_start_time"`
	BeforeCareProvider     *string `json:"before_care_provider"`
	BeforeCareQuoteSnippet *string `json:"before_care_quote_snippet"`

	ProvidesAfterCare     *bool   `json:"provides_after_care"`
	AfterCareEndTime      *string `json:"after_care_end_time"`
	AfterCareProvider     *string `json:"after_care_provider"`
	AfterCareQuoteSnippet *string `json:"after_care_quote_snippet"`
}

// CombinedResponse is the pass-3 answer. Citation indices point into the
// numbered evidence list; any snippet text the model echoes is ignored.
type CombinedResponse struct {
	ProvidesBeforeCare  *bool   `json:"provides_before_care"`
	BeforeCareStartTime *string `json:"before_care_start_time"`
	BeforeCareProvider  *string `json:"before_care_provider"`
	BeforeCareCitations []int   `json:"before_care_citations"`

	ProvidesAfterCare  *bool   `json:"provides_after_care"`
	AfterCareEndTime   *string `json:"after_care_end_time"`
	AfterCareProvider  *string `json:"after_care_provider"`
	AfterCareCitations []int   `json:"after_care_citations"`
}

const quoteDescription = "The EXACT quoted text from the webpage that supports your answer."

// ContactSchema is the response schema of the contact pass.
var ContactSchema = ResponseSchema[ContactResponse]{
	Pass:        model.PassContact,
	Name:        "record_page_contacts",
	Description: "Record the email addresses, contact-page flag and before/after care details found on one web page.",
	Fields: []Field{
		{Name: "emails", Type: TypeStringArray},
		{Name: "is_contact_page", Type: TypeBoolean},
		{Name: "before_or_after_care_details", Type: TypeString},
	},
}

// ChildcareSchema is the response schema of the childcare pass.
var ChildcareSchema = ResponseSchema[ChildcareResponse]{
	Pass:        model.PassChildcare,
	Name:        "record_childcare_details",
	Description: "Record the before and after school childcare details found on one web page.",
	Fields: []Field{
		{Name: "webpage_year", Type: TypeString, Nullable: true},
		{Name: "provides_before_care", Type: TypeBoolean, Nullable: true},
		{Name: "before_care_start_time", Type: TypeString, Nullable: true},
		{Name: "before_care_provider", Type: TypeString, Nullable: true},
		{Name: "before_care_quote_snippet", Type: TypeString, Nullable: true, Description: quoteDescription},
		{Name: "provides_after_care", Type: TypeBoolean, Nullable: true},
		{Name: "after_care_end_time", Type: TypeString, Nullable: true},
		{Name: "after_care_provider", Type: TypeString, Nullable: true},
		{Name: "after_care_quote_snippet", Type: TypeString, Nullable: true, Description: quoteDescription},
	},
}

// CombinedSchema is the response schema of the combine pass.
var CombinedSchema = ResponseSchema[CombinedResponse]{
	Pass:        model.PassCombine,
	Name:        "record_school_childcare",
	Description: "Record one synthesized overview of a school's before and after care program with numbered source citations.",
	Fields: []Field{
		{Name: "provides_before_care", Type: TypeBoolean, Nullable: true},
		{Name: "before_care_start_time", Type: TypeString, Nullable: true},
		{Name: "before_care_provider", Type: TypeString, Nullable: true},
		{Name: "before_care_citations", Type: TypeIntegerArray, Nullable: true, Description: "Source numbers supporting the before care answer."},
		{Name: "provides_after_care", Type: TypeBoolean, Nullable: true},
		{Name: "after_care_end_time", Type: TypeString, Nullable: true},
		{Name: "after_care_provider", Type: TypeString, Nullable: true},
		{Name: "after_care_citations", Type: TypeIntegerArray, Nullable: true, Description: "Source numbers supporting the after care answer."},
	},
}
