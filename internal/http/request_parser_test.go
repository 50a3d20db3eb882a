package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestParser_TotalBudget(t *testing.T) {
	p := NewRequestParser()

	tests := []struct {
		body    string
		want    float64
		wantErr bool
	}{
		{`{"totalBudget": 100}`, 100, false},
		{`{"totalBudget": -3.5}`, -3.5, false},
		{`{"totalBudget": 1e3}`, 1000, false},
		{`{"totalBudget": "100"}`, 0, true},
		{`{"totalBudget": null}`, 0, true},
		{`{"other": 1}`, 0, true},
		{`{"totalBudget": 1e400}`, 0, true},
		{``, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			got, err := p.TotalBudget(httptest.NewRecorder(), r)
			if tt.wantErr {
				if !errors.Is(err, errInvalidBudget) {
					t.Fatalf("err = %v, want errInvalidBudget", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("TotalBudget = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestRequestParser_Amounts(t *testing.T) {
	p := NewRequestParser()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Food": 12.5, "Rent": 0}`))
	got, err := p.Amounts(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["Food"] != 12.5 || got["Rent"] != 0 {
		t.Fatalf("Amounts = %v", got)
	}

	for _, body := range []string{`[]`, `null`, `{"Food": "1"}`, `{"Food": true}`, `{"Food": [1]}`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if _, err := p.Amounts(httptest.NewRecorder(), r); !errors.Is(err, errInvalidMapping) {
			t.Errorf("body %s: err = %v, want errInvalidMapping", body, err)
		}
	}
}

func TestRequestParser_BodyLimit(t *testing.T) {
	p := &RequestParser{maxBytes: 16}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Food": 1, "Rent": 2, "Travel": 3}`))
	if _, err := p.Amounts(httptest.NewRecorder(), r); err == nil {
		t.Fatal("oversized body accepted")
	}
}

func TestRequestParser_UID(t *testing.T) {
	p := NewRequestParser()

	r := httptest.NewRequest(http.MethodGet, "/expense/get/u1", nil)
	r.SetPathValue("uid", " u1 ")
	if uid, err := p.UID(r); err != nil || uid != "u1" {
		t.Fatalf("UID = %q, %v", uid, err)
	}

	r.SetPathValue("uid", "  ")
	if _, err := p.UID(r); !errors.Is(err, errMissingUID) {
		t.Fatalf("blank uid err = %v", err)
	}
}
