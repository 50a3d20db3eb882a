package core

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
		{NewDate(1969, 12, 31), false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("case %d err = %v, want ErrInvalidDate", i, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-09 ")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(NewDate(2025, 3, 9).Time) {
		t.Fatalf("ParseDate = %v", d)
	}
	for _, in := range []string{"", "09/03/2025", "2025-02-30", "0001-01-01"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) err = %v, want ErrInvalidDate", in, err)
		}
	}
}

func TestDatedAmountValidate(t *testing.T) {
	day := NewDate(2025, 5, 1)
	cases := []struct {
		name string
		e    DatedAmount
		want error
	}{
		{"ok", DatedAmount{Date: day, Category: "Food", Amount: 12.5}, nil},
		{"zero date", DatedAmount{Category: "Food", Amount: 1}, ErrInvalidDate},
		{"blank category", DatedAmount{Date: day, Category: " ", Amount: 1}, ErrEmptyCategory},
		{"negative", DatedAmount{Date: day, Category: "Food", Amount: -1}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.e.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("Validate = %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("Validate = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDateMonthIndex(t *testing.T) {
	if got := NewDate(2025, 1, 15).MonthIndex(); got != 0 {
		t.Fatalf("january index = %d, want 0", got)
	}
	if got := NewDate(2025, 12, 1).MonthIndex(); got != 11 {
		t.Fatalf("december index = %d, want 11", got)
	}
}

func TestDeltaValidate(t *testing.T) {
	tests := []struct {
		name    string
		delta   Delta
		wantErr error
	}{
		{name: "single category", delta: Delta{"Food": 300}},
		{name: "zero amount allowed", delta: Delta{"Food": 0}},
		{name: "any string is a category", delta: Delta{"weird / cat.egory $": 1}},
		{name: "nil", delta: nil, wantErr: ErrEmptyDelta},
		{name: "empty", delta: Delta{}, wantErr: ErrEmptyDelta},
		{name: "blank category", delta: Delta{"  ": 1}, wantErr: ErrEmptyCategory},
		{name: "long category", delta: Delta{strings.Repeat("x", MaxCategoryLength+1): 1}, wantErr: ErrCategoryLength},
		{name: "negative", delta: Delta{"Food": -1}, wantErr: ErrInvalidAmount},
		{name: "NaN", delta: Delta{"Food": math.NaN()}, wantErr: ErrInvalidAmount},
		{name: "Inf", delta: Delta{"Food": math.Inf(1)}, wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.delta.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllocationsValidate(t *testing.T) {
	if err := (Allocations{"Rent": 1200}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Allocations{}).Validate(); !errors.Is(err, ErrEmptyDelta) {
		t.Fatalf("expected ErrEmptyDelta, got %v", err)
	}
	if err := (Allocations{"Rent": -5}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestValidateUserID(t *testing.T) {
	if err := ValidateUserID("uid_3bff46"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := ValidateUserID(" "); !errors.Is(err, ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	s := Snapshot{"Food": 1}
	c := s.Clone()
	c["Food"] = 2
	if s["Food"] != 1 {
		t.Fatalf("clone aliases the original")
	}
	if got := Snapshot(nil).Clone(); got == nil || len(got) != 0 {
		t.Fatalf("nil clone = %v, want empty non-nil", got)
	}
}
