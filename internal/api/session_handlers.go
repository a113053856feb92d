package api

import (
	"encoding/json"
	"net/http"

	"github.com/tvlink-server/tvlink-server/internal/models"
)

// ConnectRequest represents a session connect request
type ConnectRequest struct {
	Address string `json:"address" validate:"required,ip"`
	Mode    string `json:"mode" validate:"oneof=secure insecure"`
	Force   bool   `json:"force"`
}

// PairRequest represents a PIN submission
type PairRequest struct {
	Address string `json:"address" validate:"required,ip"`
	PIN     string `json:"pin" validate:"required,numeric"`
}

// handleSessionStatus 返回当前会话状态
func (s *RESTServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.control.Status())
}

// handleConnect 发起与电视的连接
func (s *RESTServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 未指定传输模式时由会话层自行回退
	var mode *models.TransportMode
	if req.Mode != "" {
		m, err := models.ParseTransportMode(req.Mode)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = &m
	}

	result, err := s.control.Connect(r.Context(), req.Address, mode, req.Force)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handlePair 提交配对PIN码
func (s *RESTServer) handlePair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.control.CompletePairing(r.Context(), req.Address, req.PIN)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handleDisconnect 断开当前会话
func (s *RESTServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.control.Disconnect()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// handleEnsure 使用存储的凭证恢复会话
func (s *RESTServer) handleEnsure(w http.ResponseWriter, r *http.Request) {
	if err := s.control.EnsureConnection(r.Context()); err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, s.control.Status())
}
