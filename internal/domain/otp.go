package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Purpose scopes a code to a single workflow: a code issued for registration
// cannot verify a login attempt even with matching phone and code.
type Purpose string

const (
	PurposeRegistration      Purpose = "registration"
	PurposeLogin             Purpose = "login"
	PurposePhoneVerification Purpose = "phone_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

var validPurposes = map[Purpose]bool{
	PurposeRegistration:      true,
	PurposeLogin:             true,
	PurposePhoneVerification: true,
	PurposePasswordReset:     true,
}

func (p Purpose) Valid() bool {
	return validPurposes[p]
}

const (
	// MaxOTPAttempts is the wrong-code budget per record. Once reached the
	// record is permanently unusable but still counts toward the rate limit.
	MaxOTPAttempts = 3

	// OTPExpiry is how long an issued code stays verifiable.
	OTPExpiry = 10 * time.Minute

	// MaxOTPPerWindow caps issuance per phone number per OTPRateWindow.
	MaxOTPPerWindow = 3
	OTPRateWindow   = time.Hour
)

type OTPRecord struct {
	ID          string     `json:"id"`
	UserID      *string    `json:"user_id,omitempty"`
	PhoneNumber string     `json:"phone_number"`
	Code        string     `json:"-"`
	Purpose     Purpose    `json:"purpose"`
	IsVerified  bool       `json:"is_verified"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	ExpiresAt   time.Time  `json:"expires_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OTPStatus makes the record's implicit terminal states explicit instead of
// re-deriving them from verified/attempts/expires_at at every call site.
type OTPStatus string

const (
	OTPPending   OTPStatus = "pending"
	OTPStatusVerified OTPStatus = "verified"
	OTPExhausted OTPStatus = "exhausted"
	OTPExpired   OTPStatus = "expired"
)

func (r *OTPRecord) StatusAt(now time.Time) OTPStatus {
	switch {
	case r.IsVerified:
		return OTPStatusVerified
	case r.Attempts >= r.MaxAttempts:
		return OTPExhausted
	case now.After(r.ExpiresAt) || now.Equal(r.ExpiresAt):
		return OTPExpired
	default:
		return OTPPending
	}
}

func (r *OTPRecord) Status() OTPStatus {
	return r.StatusAt(time.Now())
}

// Verifiable reports whether the record can still accept a code attempt.
func (r *OTPRecord) Verifiable() bool {
	return r.Status() == OTPPending
}

// Request/response types for the auth HTTP surface.

type SendOTPRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Purpose     Purpose `json:"purpose"`
	UserID      string  `json:"user_id,omitempty"`
}

type VerifyOTPRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Code        string  `json:"code"`
	Purpose     Purpose `json:"purpose"`
}

type PhoneCheckRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type OTPIssued struct {
	OTPID     string    `json:"otp_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OTPVerified struct {
	UserID      string `json:"user_id,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

type PhoneCheck struct {
	Exists bool      `json:"exists"`
	User   *UserInfo `json:"user,omitempty"`
}

var codeRegex = regexp.MustCompile(`^\d{6}$`)

func (r *SendOTPRequest) Normalize() {
	r.PhoneNumber = FormatPhone(r.PhoneNumber)
	r.UserID = strings.TrimSpace(r.UserID)
}

func (r *SendOTPRequest) Validate() error {
	if !ValidPhone(r.PhoneNumber) {
		return fmt.Errorf("phone number must be in international format, e.g. +15551234567")
	}
	if !r.Purpose.Valid() {
		return fmt.Errorf("invalid purpose")
	}
	return nil
}

func (r *VerifyOTPRequest) Normalize() {
	r.PhoneNumber = FormatPhone(r.PhoneNumber)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *VerifyOTPRequest) Validate() error {
	if !ValidPhone(r.PhoneNumber) {
		return fmt.Errorf("phone number must be in international format, e.g. +15551234567")
	}
	if !codeRegex.MatchString(r.Code) {
		return fmt.Errorf("code must be 6 digits")
	}
	if !r.Purpose.Valid() {
		return fmt.Errorf("invalid purpose")
	}
	return nil
}

func (r *PhoneCheckRequest) Normalize() {
	r.PhoneNumber = FormatPhone(r.PhoneNumber)
}

func (r *PhoneCheckRequest) Validate() error {
	if !ValidPhone(r.PhoneNumber) {
		return fmt.Errorf("phone number must be in international format, e.g. +15551234567")
	}
	return nil
}
