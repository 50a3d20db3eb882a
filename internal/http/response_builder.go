package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// genericErrorMessage is the only body ever sent with a 500.
const genericErrorMessage = "An error occurred"

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Message sets the body to {"message": msg}.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	return b.Body(messageResponse{Message: msg})
}

// Write encodes the body first so an encoding failure can still become a
// clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		b.statusCode = http.StatusInternalServerError
		payload, _ = json.Marshal(messageResponse{Message: genericErrorMessage})
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range b.headers {
		h.Set(k, v)
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

type messageResponse struct {
	Message string `json:"message"`
}

type totalBudgetResponse struct {
	TotalBudget float64 `json:"totalBudget"`
}

type expenseResponse struct {
	Message       string             `json:"message,omitempty"`
	ExpenseAmount map[string]float64 `json:"expenseAmount"`
}

type allocationsResponse struct {
	BudgetAllocations map[string]float64 `json:"budgetAllocations"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	NewJSONResponse().Status(status).Message(msg).Write(w)
}
