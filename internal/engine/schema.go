package engine

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"structd/internal/grammar"
)

// StructuredStep is one element of a validated step document.
type StructuredStep struct {
	Name             string
	ShortDescription string
	Description      string
	Start            *float64
	End              *float64
}

type wireStep struct {
	Name             *string  `json:"step_name"`
	Description      *string  `json:"step_description,omitempty"`
	ShortDescription *string  `json:"step_short_description,omitempty"`
	Start            *float64 `json:"start,omitempty"`
	End              *float64 `json:"end,omitempty"`
}

type wireDocument struct {
	Steps []wireStep `json:"steps"`
}

// DecodeSteps parses raw as a step document of the given variant. Unknown
// fields, a missing steps array and records without the variant's required
// fields all fail with SchemaValidationFailed. Long-form records only need a
// name: grammars that constrain names alone decode as long-form.
func DecodeSteps(raw string, v grammar.Variant) ([]StructuredStep, error) {
	var doc wireDocument
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, ErrSchemaValidation("output is not a step document", err)
	}
	if doc.Steps == nil {
		return nil, ErrSchemaValidation(`missing "steps" array`, nil)
	}
	out := make([]StructuredStep, len(doc.Steps))
	for i, w := range doc.Steps {
		if err := checkRecord(w, v); err != nil {
			return nil, ErrSchemaValidation(fmt.Sprintf("step %d", i), err)
		}
		out[i] = StructuredStep{
			Name:             deref(w.Name),
			Description:      deref(w.Description),
			ShortDescription: deref(w.ShortDescription),
			Start:            w.Start,
			End:              w.End,
		}
	}
	return out, nil
}

func checkRecord(w wireStep, v grammar.Variant) error {
	if w.Name == nil {
		return fmt.Errorf(`missing "step_name"`)
	}
	switch v {
	case grammar.VariantShort:
		if w.ShortDescription == nil {
			return fmt.Errorf(`missing "step_short_description"`)
		}
	case grammar.VariantClip:
		if w.ShortDescription == nil {
			return fmt.Errorf(`missing "step_short_description"`)
		}
		if w.Start == nil {
			return fmt.Errorf(`missing "start"`)
		}
	}
	return nil
}

// EncodeSteps renders steps in the wire form of variant v. Fields the
// variant requires are always written; others only when set.
func EncodeSteps(steps []StructuredStep, v grammar.Variant) (string, error) {
	doc := wireDocument{Steps: make([]wireStep, len(steps))}
	for i, s := range steps {
		w := wireStep{Name: ptr(s.Name), Start: s.Start, End: s.End}
		if v == grammar.VariantLong || s.Description != "" {
			w.Description = ptr(s.Description)
		}
		if v != grammar.VariantLong || s.ShortDescription != "" {
			w.ShortDescription = ptr(s.ShortDescription)
		}
		doc.Steps[i] = w
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	return string(b), nil
}

// AlignClips sets every end offset to the next step's start and the last
// one to total. Every step needs a start offset.
func AlignClips(steps []StructuredStep, total float64) ([]StructuredStep, error) {
	out := make([]StructuredStep, len(steps))
	copy(out, steps)
	for i := range out {
		if out[i].Start == nil {
			return nil, ErrSchemaValidation(fmt.Sprintf("step %d has no start offset", i), nil)
		}
	}
	for i := range out {
		end := total
		if i+1 < len(out) {
			end = *out[i+1].Start
		}
		out[i].End = &end
	}
	return out, nil
}

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
