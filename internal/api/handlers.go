package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/controller"
	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/internal/storage"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse carries an issued token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// handleLogin 处理登录请求
func (s *RESTServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "account disabled")
		return
	}

	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	access, refresh, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate token pair")
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.respondJSON(w, http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
}

// handleRefreshToken 刷新访问令牌
func (s *RESTServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.auth.RefreshSubject(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "account disabled")
		return
	}

	access, refresh, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate token pair")
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.respondJSON(w, http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
}

// respondJSON sends a JSON response
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError sends an error response
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionError 将会话层错误映射为HTTP状态码
func (s *RESTServer) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrNoStoredDevice), errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, controller.ErrNoPendingPairing), errors.Is(err, controller.ErrNotConnected):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidPIN):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrCredentialRejected):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrConnectTimeout),
		errors.Is(err, session.ErrPairingTimeout),
		errors.Is(err, session.ErrRequestTimeout):
		s.respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, session.ErrCommandFailed):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("Session operation failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
