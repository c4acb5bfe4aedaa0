package errs

import (
	"errors"
	"strings"
	"time"
)

// User-facing messages. Nothing else from an error chain reaches the client.
const (
	MsgGeneric        = "Something went wrong. Please try again."
	MsgInvalidRequest = "Invalid request."
	MsgVerification   = "Verification failed. Please try again."
	MsgRateLimited    = "Too many requests. Please try again in a minute."
	MsgEmailNotConfig = "Email service not configured."
	MsgInvalidLink    = "Invalid or expired link."
	MsgCheckEntries   = "Please check your entries."
	MsgBadCredentials = "bad credentials"
)

// FieldError is a single failed rule on one input field.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// ValidationError carries ordered per-field failures and the message chosen for the user.
type ValidationError struct {
	Fields  []FieldError
	Message string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Rule)
	}
	return "validation: " + strings.Join(parts, ", ")
}

// First returns the first failure for field, if any.
func (e *ValidationError) First(field string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f, true
		}
	}
	return FieldError{}, false
}

// PublicError attaches a flow-specific user message to an underlying error.
type PublicError struct {
	Message string
	Err     error
}

func (e *PublicError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PublicError) Unwrap() error { return e.Err }

// Public wraps err with a user-facing message.
func Public(msg string, err error) error {
	return &PublicError{Message: msg, Err: err}
}

// RetryError marks a refusal that lifts after a known delay.
type RetryError struct {
	After time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	return e.Err.Error() + " (retry after " + e.After.String() + ")"
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter returns the delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RetryError
	if errors.As(err, &re) && re.After > 0 {
		return re.After, true
	}
	return 0, false
}

// PublicMessage maps an error chain to the string shown to the end user.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Message != "" {
			return ve.Message
		}
		return MsgCheckEntries
	}
	switch {
	case errors.Is(err, ErrHoneypot):
		return MsgInvalidRequest
	case errors.Is(err, ErrVerificationFailed):
		return MsgVerification
	case errors.Is(err, ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, ErrEmailNotConfigured):
		return MsgEmailNotConfig
	case errors.Is(err, ErrInvalidLink):
		return MsgInvalidLink
	case errors.Is(err, ErrUnauthorized):
		return MsgBadCredentials
	}
	var pe *PublicError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return MsgGeneric
}
