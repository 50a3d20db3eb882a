package http

import (
	"net/http"

	"budgetsync/internal/core"
)

const (
	msgNoExpenses      = "No expense data found for this user."
	msgExpensesCreated = "Expense data created."
	msgExpensesUpdated = "Expense data updated successfully."
	msgNoAllocations   = "No budget allocations found for this user."
)

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.records.GetExpenseSnapshot(r.Context(), uid)
	if err != nil {
		writeServiceError(w, msgNoExpenses, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseResponse{ExpenseAmount: snap})
}

// handlePushExpense merges the body into the live snapshot and answers 201
// when the record did not exist before.
func (s *Server) handlePushExpense(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	amounts, err := s.parser.Amounts(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.records.PushExpenseDelta(r.Context(), uid, core.Delta(amounts))
	if err != nil {
		writeServiceError(w, msgNoExpenses, err)
		return
	}

	status, msg := http.StatusOK, msgExpensesUpdated
	if res.Created {
		status, msg = http.StatusCreated, msgExpensesCreated
	}
	writeJSON(w, status, expenseResponse{Message: msg, ExpenseAmount: res.Snapshot})
}

func (s *Server) handleGetAllocations(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	alloc, err := s.records.GetAllocations(r.Context(), uid)
	if err != nil {
		writeServiceError(w, msgNoAllocations, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationsResponse{BudgetAllocations: alloc})
}

func (s *Server) handlePushAllocations(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	amounts, err := s.parser.Amounts(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	alloc, err := s.records.SetAllocations(r.Context(), uid, core.Allocations(amounts))
	if err != nil {
		writeServiceError(w, msgNoAllocations, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationsResponse{BudgetAllocations: alloc})
}
