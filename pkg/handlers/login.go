package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crowdflash/crowdflash-server/pkg/auth"
	"go.uber.org/zap"
)

type LoginHandler struct {
	auth   *auth.Service
	logger *zap.Logger
}

func NewLoginHandler(authService *auth.Service, logger *zap.Logger) *LoginHandler {
	return &LoginHandler{
		auth:   authService,
		logger: logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "Invalid request"})
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, loginResponse{Success: false, Message: "Too many attempts"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Message: "Invalid credentials"})
	case err != nil:
		h.logger.Error("Login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, loginResponse{Success: false, Message: "Login failed"})
	default:
		writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
