package api

import (
	"encoding/json/v2"
	"net/http"

	"github.com/shelfsyncapp/shelfsync-agent/internal/discovery"
	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/http/response"
)

type checkPINRequest struct {
	PIN string `json:"pin"`
}

type checkPINResponse struct {
	Token string `json:"token"`
}

// handleCheckPIN exchanges a pairing PIN for a bearer token.
func (s *Server) handleCheckPIN(w http.ResponseWriter, r *http.Request) {
	var req checkPINRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	token, err := s.auth.CheckPIN(req.PIN)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, checkPINResponse{Token: token}, s.logger)
}

// handleConnectionInfo reports how peers can reach this agent. The PIN
// never crosses this endpoint; it is shown on the host only.
func (s *Server) handleConnectionInfo(w http.ResponseWriter, _ *http.Request) {
	ip, err := discovery.LocalIP()
	if err != nil {
		s.logger.Warn("could not determine local address", "error", err)
		ip = "127.0.0.1"
	}

	response.Success(w, domain.ConnectionInfo{
		IP:       ip,
		Port:     s.port,
		Hostname: s.hostname,
	}, s.logger)
}
