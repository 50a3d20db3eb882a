package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"budgetsync/internal/core"
)

// FieldState is where a Field is in its edit cycle.
type FieldState int

const (
	FieldIdle FieldState = iota
	FieldEditing
	FieldSaving
)

func (s FieldState) String() string {
	switch s {
	case FieldEditing:
		return "editing"
	case FieldSaving:
		return "saving"
	default:
		return "idle"
	}
}

// Editable fields shown on the dashboard.
const (
	FieldBalance  = "balance"
	FieldSpending = "spending"
	FieldSavings  = "savings"
)

var (
	ErrFieldBusy  = errors.New("field is saving")
	ErrNotEditing = errors.New("field is not being edited")
)

// SaveFunc persists v and returns the confirmed value.
type SaveFunc func(ctx context.Context, v float64) (float64, error)

// LocalSave confirms any value without leaving the process.
func LocalSave(_ context.Context, v float64) (float64, error) { return v, nil }

// Field is one editable amount: Idle -> Editing -> Saving -> Idle, falling
// back to Editing with the draft intact when the save fails.
type Field struct {
	name string
	save SaveFunc

	mu      sync.Mutex
	state   FieldState
	value   float64
	draft   string
	lastErr error
}

func NewField(name string, value float64, save SaveFunc) *Field {
	if save == nil {
		save = LocalSave
	}
	return &Field{name: name, value: value, save: save}
}

func (f *Field) Name() string { return f.name }

func (f *Field) State() FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Value is the last confirmed value.
func (f *Field) Value() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Field) Draft() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Err is the failure of the last Submit, cleared by the next Edit or success.
func (f *Field) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Sync replaces the confirmed value from a server poll. It is ignored while
// the user is editing or saving.
func (f *Field) Sync(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FieldIdle {
		f.value = v
	}
}

// Edit enters Editing seeded with the current value, or replaces the draft
// when already editing.
func (f *Field) Edit(draft string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case FieldSaving:
		return ErrFieldBusy
	case FieldIdle:
		if draft == "" {
			draft = strconv.FormatFloat(f.value, 'f', -1, 64)
		}
		f.lastErr = nil
	}
	f.state = FieldEditing
	f.draft = draft
	return nil
}

// Cancel discards the draft and returns to Idle.
func (f *Field) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case FieldSaving:
		return ErrFieldBusy
	case FieldEditing:
		f.state = FieldIdle
		f.draft = ""
		f.lastErr = nil
	}
	return nil
}

// Submit parses the draft and saves it. On success the field holds the
// confirmed value; on failure it stays in Editing with the draft kept.
func (f *Field) Submit(ctx context.Context) (float64, error) {
	f.mu.Lock()
	switch f.state {
	case FieldSaving:
		f.mu.Unlock()
		return 0, ErrFieldBusy
	case FieldIdle:
		f.mu.Unlock()
		return 0, ErrNotEditing
	}
	v, err := core.ParseAmount(f.draft)
	if err != nil {
		f.lastErr = fmt.Errorf("%s: %w", f.name, err)
		f.mu.Unlock()
		return 0, f.lastErr
	}
	f.state = FieldSaving
	f.mu.Unlock()

	confirmed, err := f.save(ctx, v)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = FieldEditing
		f.lastErr = fmt.Errorf("save %s: %w", f.name, err)
		return 0, f.lastErr
	}
	f.state = FieldIdle
	f.value = confirmed
	f.draft = ""
	f.lastErr = nil
	return confirmed, nil
}
