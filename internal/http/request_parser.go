package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"budgetsync/internal/core"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

var (
	errInvalidBudget  = errors.New("Invalid totalBudget value. Must be a number.")
	errInvalidMapping = errors.New("Invalid expense data. Must be an object of category-value pairs.")
	errMissingUID     = errors.New("Missing user id.")
)

// RequestParser reads path values and JSON bodies.
type RequestParser struct {
	maxBytes int64
}

func NewRequestParser() *RequestParser {
	return &RequestParser{maxBytes: maxBodyBytes}
}

// UID returns the {uid} path value, trimmed.
func (p *RequestParser) UID(r *http.Request) (string, error) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	if uid == "" {
		return "", errMissingUID
	}
	return uid, nil
}

// TotalBudget decodes {"totalBudget": <number>}. Strings, booleans and null
// are rejected; only a JSON number is a budget.
func (p *RequestParser) TotalBudget(w http.ResponseWriter, r *http.Request) (float64, error) {
	var body struct {
		TotalBudget json.RawMessage `json:"totalBudget"`
	}
	if err := p.decode(w, r, &body); err != nil {
		return 0, errInvalidBudget
	}
	raw := bytes.TrimSpace(body.TotalBudget)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, errInvalidBudget
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || !core.IsFinite(v) {
		return 0, errInvalidBudget
	}
	return v, nil
}

// Amounts decodes a top-level object of category to number. Anything other
// than an object, or a non-numeric value, is rejected.
func (p *RequestParser) Amounts(w http.ResponseWriter, r *http.Request) (map[string]float64, error) {
	var raw map[string]json.RawMessage
	if err := p.decode(w, r, &raw); err != nil || raw == nil {
		return nil, errInvalidMapping
	}
	out := make(map[string]float64, len(raw))
	for category, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) == 0 || (value[0] != '-' && (value[0] < '0' || value[0] > '9')) {
			return nil, fmt.Errorf("%w Value for %q is not a number.", errInvalidMapping, category)
		}
		var v float64
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("%w Value for %q is not a number.", errInvalidMapping, category)
		}
		out[category] = v
	}
	return out, nil
}

func (p *RequestParser) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, p.maxBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
