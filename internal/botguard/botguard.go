// Package botguard implements the honeypot check and challenge-token verification.
package botguard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/errs"
)

// HoneypotField is the hidden input that must arrive empty.
const HoneypotField = "website"

// DefaultVerifyURL is the Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Honeypot fails with errs.ErrHoneypot when the hidden field carries any value, whitespace included.
func Honeypot(v url.Values) error {
	for _, s := range v[HoneypotField] {
		if s != "" {
			return errs.ErrHoneypot
		}
	}
	return nil
}

// Verifier checks a client challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Disabled passes every token. Used when challenge keys are not configured.
type Disabled struct {
	log *zap.Logger
}

// NewDisabled constructs a pass-through verifier.
func NewDisabled(log *zap.Logger) *Disabled {
	return &Disabled{log: log}
}

// Verify logs a warning and passes.
func (d *Disabled) Verify(context.Context, string, string) error {
	d.log.Warn("turnstile not configured; proceeding without token verification")
	return nil
}

// Turnstile verifies tokens against Cloudflare's siteverify API.
type Turnstile struct {
	secret    string
	verifyURL string
	client    *http.Client
	log       *zap.Logger
}

// NewTurnstile constructs a verifier. An empty verifyURL selects DefaultVerifyURL.
func NewTurnstile(secret, verifyURL string, timeout time.Duration, log *zap.Logger) *Turnstile {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Turnstile{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// NewVerifier picks Turnstile when both keys are present, otherwise Disabled.
func NewVerifier(siteKey, secret, verifyURL string, timeout time.Duration, log *zap.Logger) Verifier {
	if siteKey == "" || secret == "" {
		return NewDisabled(log)
	}
	return NewTurnstile(secret, verifyURL, timeout, log)
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

var hints = map[string]string{
	"invalid-input-secret":   "secret key appears invalid; check TURNSTILE_SECRET_KEY",
	"invalid-input-response": "token invalid or expired; check widget callback timing and domain allowlist",
	"timeout-or-duplicate":   "token timed out or was reused; the client must fetch a fresh token",
}

// Verify posts the token to siteverify. Any failure maps to errs.ErrVerificationFailed.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		t.log.Warn("turnstile token missing while verification is configured")
		return errs.ErrVerificationFailed
	}

	form := url.Values{"secret": {t.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errs.ErrVerificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("turnstile verify request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", errs.ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		t.log.Warn("turnstile verify returned non-success status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d", errs.ErrVerificationFailed, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		t.log.Warn("turnstile verify response undecodable", zap.Error(err))
		return fmt.Errorf("%w: decode: %v", errs.ErrVerificationFailed, err)
	}
	if !out.Success {
		t.logFailure(out)
		return errs.ErrVerificationFailed
	}
	return nil
}

func (t *Turnstile) logFailure(out siteverifyResponse) {
	fields := []zap.Field{zap.Strings("error_codes", out.ErrorCodes)}
	if out.Hostname != "" {
		fields = append(fields, zap.String("hostname", out.Hostname))
	}
	if out.Action != "" {
		fields = append(fields, zap.String("action", out.Action))
	}
	t.log.Warn("turnstile rejected token", fields...)

	for _, code := range []string{"invalid-input-secret", "invalid-input-response", "timeout-or-duplicate"} {
		if slices.Contains(out.ErrorCodes, code) {
			t.log.Warn(hints[code], zap.String("code", code))
		}
	}
}
