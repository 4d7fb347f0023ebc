package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/mavbridge/internal/bridges/mavlink"
)

// EndpointRequest names a host and port, for the receive endpoint or a broker.
type EndpointRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// validate checks the endpoint fields.
func (e EndpointRequest) validate() string {
	if e.Address == "" {
		return "address is required"
	}
	if e.Port <= 0 || e.Port > 65535 {
		return "port must be between 1 and 65535"
	}
	return ""
}

// ConfigRequest is the body of PUT /config.
type ConfigRequest struct {
	Topic      string `json:"topic"`
	IntervalMS int    `json:"interval_ms"`
	QoS        int    `json:"qos"`
}

// handleStatus returns the bridge status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

// handleToggleListener flips the listener between idle and listening.
func (s *Server) handleToggleListener(w http.ResponseWriter, _ *http.Request) {
	state, err := s.bridge.ToggleListening()
	if err != nil {
		s.writeListenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

// handleStartListener starts listening on the requested endpoint.
func (s *Server) handleStartListener(w http.ResponseWriter, r *http.Request) {
	var req EndpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeValidationError(w, msg)
		return
	}

	if err := s.bridge.StartListening(req.Address, req.Port); err != nil {
		s.writeListenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Status().Listener)
}

// handleStopListener stops the listener. Idempotent.
func (s *Server) handleStopListener(w http.ResponseWriter, _ *http.Request) {
	s.bridge.StopListening()
	writeJSON(w, http.StatusOK, s.bridge.Status().Listener)
}

func (s *Server) writeListenError(w http.ResponseWriter, err error) {
	if errors.Is(err, mavlink.ErrListenFailed) {
		writeConflict(w, err.Error())
		return
	}
	s.logger.Error("listener start failed", "error", err)
	writeInternalError(w, "failed to start listener")
}

// handleConnectBroker replaces the broker session.
func (s *Server) handleConnectBroker(w http.ResponseWriter, r *http.Request) {
	var req EndpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeValidationError(w, msg)
		return
	}

	if err := s.bridge.ConnectBroker(req.Address, req.Port); err != nil {
		if errors.Is(err, mavlink.ErrBrokerConnect) {
			writeBadGateway(w, err.Error())
			return
		}
		s.logger.Error("broker connect failed", "error", err)
		writeInternalError(w, "failed to connect broker")
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Status().Broker)
}

// handleDisconnectBroker closes the broker session, if any.
func (s *Server) handleDisconnectBroker(w http.ResponseWriter, _ *http.Request) {
	if err := s.bridge.DisconnectBroker(); err != nil {
		s.logger.Warn("broker disconnect reported an error", "error", err)
	}
	writeJSON(w, http.StatusOK, s.bridge.Status().Broker)
}

// handleGetConfig returns the publish settings.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(s.bridge.Settings()))
}

// handleUpdateConfig validates and applies new publish settings.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.bridge.UpdateConfig(req.Topic, req.IntervalMS, req.QoS); err != nil {
		if errors.Is(err, mavlink.ErrInvalidSettings) {
			writeValidationError(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update config")
		return
	}
	writeJSON(w, http.StatusOK, settingsView(s.bridge.Settings()))
}

// handleReset clears the cache and the activity log.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.bridge.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func settingsView(st mavlink.Settings) mavlink.SettingsView {
	return mavlink.SettingsView{
		Topic:      st.Topic,
		IntervalMS: st.IntervalMS(),
		QoS:        int(st.QoS),
	}
}
