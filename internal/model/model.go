// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Source is the channel a lead originated from.
type Source string

// Known lead sources.
const (
	SourceContact    Source = "contact"
	SourceBookDemo   Source = "book-demo"
	SourceNewsletter Source = "newsletter"
	SourceWaitlist   Source = "waitlist"
	SourceLeadMagnet Source = "lead-magnet"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceContact, SourceBookDemo, SourceNewsletter, SourceWaitlist, SourceLeadMagnet:
		return true
	}
	return false
}

// Meta is free-form submission metadata (ip, ua, referrer, pagePath, ...).
type Meta map[string]string

// Lead is a recorded contact event, unique per (Email, Source).
type Lead struct {
	ID          uuid.UUID
	Email       string // lower-cased
	Source      Source
	Name        string
	Company     string
	Message     string
	PagePath    string
	Tags        []string
	Consent     bool
	Meta        Meta
	Confirmed   bool       // newsletter double opt-in
	ConfirmedAt *time.Time // nil until confirmed
	TokenHash   *string    // hex sha256 of the pending confirmation token
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LeadMagnetRequest is a gated-content delivery request redeemable once.
type LeadMagnetRequest struct {
	ID         uuid.UUID
	Email      string
	Magnet     string
	TokenHash  *string // cleared on redemption
	Meta       Meta
	RedeemedAt *time.Time
	CreatedAt  time.Time
}

// Client identifies the submitter of a request.
type Client struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Result is the response shape of every form and redemption endpoint.
type Result struct {
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	DownloadPath string `json:"downloadPath,omitempty"`
}

// Tokens collects an issued admin access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}
