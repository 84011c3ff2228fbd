package engine

import (
	"reflect"
	"testing"

	"structd/internal/grammar"
)

func f64(v float64) *float64 { return &v }

func TestStepsRoundTrip(t *testing.T) {
	cases := []struct {
		variant grammar.Variant
		steps   []StructuredStep
	}{
		{grammar.VariantLong, []StructuredStep{
			{Name: "Boil", Description: "Bring water to a boil."},
			{Name: "Steep", Description: ""},
		}},
		{grammar.VariantShort, []StructuredStep{
			{Name: "Boil", ShortDescription: "heat"},
			{Name: "Steep", ShortDescription: "wait", Description: "optional long text"},
		}},
		{grammar.VariantClip, []StructuredStep{
			{Name: "Intro", ShortDescription: "hello", Start: f64(0), End: f64(4.5)},
			{Name: "Main", ShortDescription: "work", Start: f64(4.5)},
		}},
		{grammar.VariantLong, []StructuredStep{}},
	}
	for _, tc := range cases {
		raw, err := EncodeSteps(tc.steps, tc.variant)
		if err != nil {
			t.Fatalf("%s encode: %v", tc.variant, err)
		}
		got, err := DecodeSteps(raw, tc.variant)
		if err != nil {
			t.Fatalf("%s decode %s: %v", tc.variant, raw, err)
		}
		if !reflect.DeepEqual(got, tc.steps) {
			t.Fatalf("%s round trip\n got %+v\nwant %+v", tc.variant, got, tc.steps)
		}
	}
}

func TestDecodeStepsRejects(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		variant grammar.Variant
	}{
		{"truncated", `{"steps":[{"step_name":"a"`, grammar.VariantShort},
		{"no steps", `{}`, grammar.VariantLong},
		{"unknown field", `{"steps":[],"extra":1}`, grammar.VariantLong},
		{"missing short description", `{"steps":[{"step_name":"a","step_description":"b"}]}`, grammar.VariantShort},
		{"missing start", `{"steps":[{"step_name":"a","step_short_description":"b"}]}`, grammar.VariantClip},
		{"missing name", `{"steps":[{"step_description":"b"}]}`, grammar.VariantLong},
		{"wrong type", `{"steps":[{"step_name":1,"step_description":"b"}]}`, grammar.VariantLong},
	}
	for _, tc := range cases {
		if _, err := DecodeSteps(tc.raw, tc.variant); !IsSchemaValidation(err) {
			t.Fatalf("%s: expected SchemaValidationFailed, got %v", tc.name, err)
		}
	}
}

func TestAlignClips(t *testing.T) {
	steps := []StructuredStep{
		{Name: "a", Start: f64(0)},
		{Name: "b", Start: f64(3.25)},
		{Name: "c", Start: f64(7), End: f64(1)},
	}
	const total = 12.5
	got, err := AlignClips(steps, total)
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		want := total
		if i+1 < len(got) {
			want = *got[i+1].Start
		}
		if got[i].End == nil || *got[i].End != want {
			t.Fatalf("step %d end=%v want %v", i, got[i].End, want)
		}
	}
	if *steps[2].End != 1 {
		t.Fatalf("input slice was modified")
	}
	if _, err := AlignClips([]StructuredStep{{Name: "x"}}, total); !IsSchemaValidation(err) {
		t.Fatalf("expected error for missing start, got %v", err)
	}
	if out, err := AlignClips(nil, total); err != nil || len(out) != 0 {
		t.Fatalf("empty input: %v %v", out, err)
	}
}
