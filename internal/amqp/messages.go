package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeKind names the part of a financial record that a write touched.
type ChangeKind string

const (
	ChangeBudget      ChangeKind = "totalBudget"
	ChangeExpenses    ChangeKind = "expenseSnapshot"
	ChangeAllocations ChangeKind = "budgetAllocations"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeBudget, ChangeExpenses, ChangeAllocations:
		return true
	}
	return false
}

// RecordChangedMessage is published after every successful write. It carries
// no amounts: consumers reload the record so they always see the latest state.
type RecordChangedMessage struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      ChangeKind `json:"kind"`
	Created   bool       `json:"created,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewRecordChangedMessage(uid string, kind ChangeKind, created bool) *RecordChangedMessage {
	return &RecordChangedMessage{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      kind,
		Created:   created,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and validates a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("message has no user id")
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("unknown change kind %q", msg.Kind)
	}
	return &msg, nil
}
