package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/pkg/logger"
)

type sendOTPResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	OTPID     string    `json:"otp_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type verifyOTPResponse struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	UserID            string           `json:"user_id,omitempty"`
	PhoneNumber       string           `json:"phone_number,omitempty"`
	AccessToken       string           `json:"access_token,omitempty"`
	ExpiresIn         int64            `json:"expires_in,omitempty"`
	RegistrationToken string           `json:"registration_token,omitempty"`
	User              *domain.UserInfo `json:"user,omitempty"`
}

type phoneCheckResponse struct {
	Success bool             `json:"success"`
	Exists  bool             `json:"exists"`
	User    *domain.UserInfo `json:"user,omitempty"`
}

// SendOTP issues a code for phone+purpose and hands it to the delivery
// provider.
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}

	issued, err := h.otpService.Issue(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendOTPResponse{
		Success:   true,
		Message:   "Verification code sent.",
		OTPID:     issued.OTPID,
		ExpiresAt: issued.ExpiresAt,
	})
}

// VerifyOTP checks a submitted code. On a successful login verification it
// also establishes a session; on a registration one it returns a token the
// signup flow finishes with.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}

	verified, err := h.otpService.Verify(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := verifyOTPResponse{
		Success:     true,
		Message:     "Code verified.",
		UserID:      verified.UserID,
		PhoneNumber: verified.PhoneNumber,
	}

	switch {
	case req.Purpose == domain.PurposeLogin && verified.UserID != "":
		session, err := h.authService.IssueSession(r.Context(), verified.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.AccessToken = session.AccessToken
		resp.ExpiresIn = session.ExpiresIn
		resp.User = session.User

	case req.Purpose == domain.PurposeRegistration:
		token, err := h.authService.RegistrationToken(verified.PhoneNumber)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to create registration token", "error", err)
			writeFailure(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
			return
		}
		resp.RegistrationToken = token
	}

	writeJSON(w, http.StatusOK, resp)
}

// CheckPhone tells the login UI whether to offer the OTP or password path.
func (h *Handlers) CheckPhone(w http.ResponseWriter, r *http.Request) {
	var req domain.PhoneCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}

	check, err := h.otpService.CheckPhoneExists(r.Context(), req.PhoneNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, phoneCheckResponse{
		Success: true,
		Exists:  check.Exists,
		User:    check.User,
	})
}
