package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	applog "budgetsync/internal/log"
	"budgetsync/internal/services"
)

// writeServiceError maps service error kinds onto status codes. Storage
// failures were already logged by the service; they are answered with a
// fixed message so no internal detail leaks.
func writeServiceError(w http.ResponseWriter, notFoundMsg string, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, services.ErrNotFound):
		writeMessage(w, http.StatusNotFound, notFoundMsg)
	default:
		writeMessage(w, http.StatusInternalServerError, genericErrorMessage)
	}
}

// validationMessage strips the kind prefix so clients see what was wrong.
func validationMessage(err error) string {
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, services.ErrValidation.Error()+": "); ok {
		return after
	}
	return msg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings the record store when it supports it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			applog.LogError(r.Context(), "Readiness check failed", err, applog.OpStartup, nil)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
