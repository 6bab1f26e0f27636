package types

import (
	"encoding/json"
	"testing"
)

func TestQuantityParse(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"0", 0},
		{"1", 10_000},
		{"1.5", 15_000},
		{"-2.25", -22_500},
		{"+3.0001", 30_001},
		{".5", 5_000},
		{"7.", 70_000},
		{"0.00009", 0},      // digits past the fourth are truncated
		{"1.23456", 12_345}, // not rounded
		{"1e2", 1_000_000},
	}

	for _, tt := range tests {
		got, err := parseQuantityString(tt.in)
		if err != nil {
			t.Errorf("parseQuantityString(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseQuantityString(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQuantityParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "--1"} {
		if _, err := parseQuantityString(in); err == nil {
			t.Errorf("parseQuantityString(%q): expected error", in)
		}
	}
}

func TestQuantityString(t *testing.T) {
	tests := []struct {
		in   Quantity
		want string
	}{
		{0, "0.0000"},
		{10_000, "1.0000"},
		{-22_500, "-2.2500"},
		{1, "0.0001"},
		{-1, "-0.0001"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Quantity(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

func TestQuantityJSONRoundTrip(t *testing.T) {
	type payload struct {
		Qty Quantity `json:"qty"`
	}

	out, err := json.Marshal(payload{Qty: 15_000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"qty":1.5000}` {
		t.Errorf("marshal = %s", out)
	}

	// Both number and string forms unmarshal.
	for _, in := range []string{`{"qty":1.5}`, `{"qty":"1.5"}`} {
		var p payload
		if err := json.Unmarshal([]byte(in), &p); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if p.Qty != 15_000 {
			t.Errorf("unmarshal %s = %d, want 15000", in, p.Qty)
		}
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"qty":null}`), &p); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if p.Qty != 0 {
		t.Errorf("unmarshal null = %d, want 0", p.Qty)
	}
}
