package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quickcourt/auth/internal/service"
	"github.com/quickcourt/auth/pkg/config"
	"github.com/quickcourt/auth/pkg/logger"
)

// RateLimiter is the fixed-window counter backing per-IP limits on the OTP
// endpoints. internal/cache.Client satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Handlers struct {
	otpService  service.OTPService
	authService service.AuthService
	limiter     RateLimiter
	config      *config.Config
}

func New(
	otpService service.OTPService,
	authService service.AuthService,
	limiter RateLimiter,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		otpService:  otpService,
		authService: authService,
		limiter:     limiter,
		config:      cfg,
	}
}

// RateLimitByIP caps requests per client IP. Fails open: an unreachable
// counter store must not take down login.
func (h *Handlers) RateLimitByIP(name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + getClientIP(r)

			allowed, err := h.limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "Rate limit check failed", "error", err)
			} else if !allowed {
				writeFailure(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Helper functions

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// writeServiceError maps anticipated service failures onto the envelope.
// Unknown errors get a generic message; the detail is already logged.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeFailure(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, service.ErrRateLimited):
		writeFailure(w, http.StatusTooManyRequests, "Too many codes requested for this number. Please wait before trying again.")
	case errors.Is(err, service.ErrCodeInvalid):
		writeFailure(w, http.StatusUnauthorized, "Invalid or expired code.")
	case errors.Is(err, service.ErrDeliveryFailed):
		writeFailure(w, http.StatusInternalServerError, "We couldn't send a code right now. Please try again.")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "Invalid phone number or password.")
	default:
		writeFailure(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
}
