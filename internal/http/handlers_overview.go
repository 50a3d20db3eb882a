package http

import (
	"net/http"
)

func (s *Server) handleGetOverview(w http.ResponseWriter, r *http.Request) {
	uid, err := s.parser.UID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	ov, err := s.records.Overview(r.Context(), uid)
	if err != nil {
		writeServiceError(w, "No financial data found for this user.", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
