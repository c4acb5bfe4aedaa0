package forms

import (
	"errors"
	"strings"
)

// ErrConsent is returned for a consent value that is neither a boolean nor "on".
var ErrConsent = errors.New("invalid consent value")

// ParseConsent maps the raw checkbox value to a strict boolean.
// Absent or empty means no consent.
func ParseConsent(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return false, nil
	case "on", "true":
		return true, nil
	case "off", "false":
		return false, nil
	}
	return false, ErrConsent
}
