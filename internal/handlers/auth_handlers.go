package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quickcourt/auth/internal/domain"
)

type loginResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	AccessToken string           `json:"access_token,omitempty"`
	ExpiresIn   int64            `json:"expires_in,omitempty"`
	User        *domain.UserInfo `json:"user,omitempty"`
}

// PasswordLogin authenticates users who prefer a password over OTP.
func (h *Handlers) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}

	session, err := h.authService.LoginWithPassword(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:     true,
		Message:     "Logged in.",
		AccessToken: session.AccessToken,
		ExpiresIn:   session.ExpiresIn,
		User:        session.User,
	})
}
