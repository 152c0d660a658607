package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestValueJSON(t *testing.T) {
	cases := []struct {
		in   string
		want Value
	}{
		{`12.5`, Number(12.5)},
		{`"high"`, String("high")},
		{`true`, Bool(true)},
		{`null`, Value{}},
	}
	for _, tc := range cases {
		var v Value
		if err := json.Unmarshal([]byte(tc.in), &v); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.in, err)
		}
		if v.Kind() != tc.want.Kind() || (!v.IsNull() && !v.Equal(tc.want)) {
			t.Fatalf("%s: expected %v, got %v", tc.in, tc.want, v)
		}
	}

	var v Value
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for object, got %v", err)
	}
}

func TestConditionYAML(t *testing.T) {
	doc := `
field: inventory
operator: between
value: 10
value2: 20.5
`
	var c PricingCondition
	if err := yaml.Unmarshal([]byte(doc), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lo, ok := c.Value.AsNumber()
	if !ok || lo != 10 {
		t.Fatalf("expected number 10, got %v", c.Value)
	}
	if c.Value2 == nil {
		t.Fatal("expected value2")
	}
	if hi, _ := c.Value2.AsNumber(); hi != 20.5 {
		t.Fatalf("expected 20.5, got %v", hi)
	}

	var s PricingCondition
	if err := yaml.Unmarshal([]byte("field: category\noperator: equals\nvalue: shoes\n"), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if str, ok := s.Value.AsString(); !ok || str != "shoes" {
		t.Fatalf("expected string shoes, got %v", s.Value)
	}
}
