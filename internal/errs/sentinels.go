// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exceeded the request budget for an action.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrHoneypot indicates the hidden form field was filled in.
	ErrHoneypot = errors.New("honeypot tripped")

	// ErrVerificationFailed indicates the challenge token was missing or rejected.
	ErrVerificationFailed = errors.New("challenge verification failed")

	// ErrEmailNotConfigured indicates no email provider credential is set.
	ErrEmailNotConfigured = errors.New("email service not configured")

	// ErrEmailFailed indicates the provider refused or failed to accept a message.
	ErrEmailFailed = errors.New("email send failed")

	// ErrInvalidLink indicates a confirmation/redemption token matched nothing pending.
	ErrInvalidLink = errors.New("invalid or expired link")
)
