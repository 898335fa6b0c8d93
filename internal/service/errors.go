package service

import "errors"

// Anticipated failures. Handlers map these onto the uniform response envelope;
// anything else is treated as an internal error and surfaced as a generic
// "try again" so store and provider details never reach the client.
var (
	// ErrInvalidInput wraps a validation failure; its message is user-facing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited means the phone number hit its issuance cap for the window.
	ErrRateLimited = errors.New("too many codes requested")

	// ErrCodeInvalid deliberately collapses wrong code, expired, exhausted and
	// already-verified into one answer so a prober learns nothing.
	ErrCodeInvalid = errors.New("invalid or expired code")

	// ErrDeliveryFailed means a configured provider could not deliver the code.
	ErrDeliveryFailed = errors.New("code delivery failed")

	// ErrInvalidCredentials covers every password-login mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStoreUnavailable covers storage failures already logged with detail.
	ErrStoreUnavailable = errors.New("storage unavailable")
)
