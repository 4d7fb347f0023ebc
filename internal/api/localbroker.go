package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/mavbridge/internal/process"
)

// handleLocalBrokerStatus reports the local broker process.
func (s *Server) handleLocalBrokerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.localBroker == nil {
		writeNotFound(w, "local broker is not managed")
		return
	}
	writeJSON(w, http.StatusOK, s.localBroker.Stats())
}

// handleToggleLocalBroker starts a stopped broker or stops a running one.
func (s *Server) handleToggleLocalBroker(w http.ResponseWriter, r *http.Request) {
	if s.localBroker == nil {
		writeNotFound(w, "local broker is not managed")
		return
	}
	if _, err := s.localBroker.Toggle(r.Context()); err != nil {
		s.writeLocalBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.localBroker.Stats())
}

// handleStartLocalBroker starts the local broker.
func (s *Server) handleStartLocalBroker(w http.ResponseWriter, r *http.Request) {
	if s.localBroker == nil {
		writeNotFound(w, "local broker is not managed")
		return
	}
	if err := s.localBroker.Start(r.Context()); err != nil {
		s.writeLocalBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.localBroker.Stats())
}

// handleStopLocalBroker stops the local broker. Idempotent.
func (s *Server) handleStopLocalBroker(w http.ResponseWriter, _ *http.Request) {
	if s.localBroker == nil {
		writeNotFound(w, "local broker is not managed")
		return
	}
	if err := s.localBroker.Stop(); err != nil {
		s.writeLocalBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.localBroker.Stats())
}

func (s *Server) writeLocalBrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, process.ErrAlreadyRunning):
		writeConflict(w, err.Error())
	case errors.Is(err, process.ErrBinaryNotFound):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("local broker operation failed", "error", err)
		writeInternalError(w, "local broker operation failed")
	}
}
