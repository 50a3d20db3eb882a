package http

import (
	"net/http"
)

func (s *Server) handleGetTotalBudget(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := s.records.GetTotalBudget(r.Context(), uid)
	if err != nil {
		writeServiceError(w, "Budget not found", err)
		return
	}
	writeJSON(w, http.StatusOK, totalBudgetResponse{TotalBudget: amount})
}

func (s *Server) handlePushTotalBudget(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := s.parser.TotalBudget(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.records.SetTotalBudget(r.Context(), uid, amount)
	if err != nil {
		writeServiceError(w, "Budget to update not found", err)
		return
	}
	writeJSON(w, http.StatusOK, totalBudgetResponse{TotalBudget: stored})
}
