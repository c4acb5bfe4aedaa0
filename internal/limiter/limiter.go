// Package limiter implements per-client sliding-window rate limiting
// for form submissions and the admin login lockout.
package limiter

import (
	"context"
	"time"
	"unicode/utf8"
)

// Actions are the rate-limit buckets; each is counted independently.
const (
	ActionContact             = "contact"
	ActionBookDemo            = "book_demo"
	ActionWaitlist            = "waitlist"
	ActionNewsletterSubscribe = "newsletter_subscribe"
	ActionLeadMagnetRequest   = "lead_magnet_request"
)

// Limiter admits or rejects one request for a key.
type Limiter interface {
	// Allow records the request when admitted. A denied request is not recorded.
	Allow(ctx context.Context, key string) (bool, error)
}

// Lockout controls admin login attempts and temporary lockouts.
type Lockout interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, clientHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, clientHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, clientHash []byte) (bool, time.Duration, error)
}

const uaKeyLen = 64

// Key builds the bucket key "ip:ua:action" with the user agent cut to 64 characters.
func Key(action, ip, ua string) string {
	if ip == "" {
		ip = "unknown"
	}
	if utf8.RuneCountInString(ua) > uaKeyLen {
		ua = string([]rune(ua)[:uaKeyLen])
	}
	return ip + ":" + ua + ":" + action
}
