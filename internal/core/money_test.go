package core

import (
	"strings"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"0", 0, true},
		{"1.005", 1.01, true}, // half away from zero
		{" 2.50 ", 2.5, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	got := FormatAmount(12.34, "EUR")
	if !strings.Contains(got, "12.34") && !strings.Contains(got, "12,34") {
		t.Fatalf("FormatAmount = %q, want it to contain 12.34", got)
	}
	if got := FormatAmount(5, "nope"); got == "" {
		t.Fatalf("unknown currency should fall back, got empty string")
	}
}
