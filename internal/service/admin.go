package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/leadgate/internal/crypto"
	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/limiter"
	"github.com/and161185/leadgate/internal/model"
	"github.com/and161185/leadgate/internal/repository"
)

// Lead listing bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// AdminConfig holds the single operator credential.
type AdminConfig struct {
	Username string
	// PasswordHash is the "hexsalt$hexhash" Argon2id encoding.
	PasswordHash string
	SignKey      []byte
	AccessTTL    time.Duration
}

// AdminService authenticates the operator and reads captured leads.
type AdminService struct {
	cfg   AdminConfig
	leads repository.LeadRepository
	lock  limiter.Lockout
	now   func() time.Time
}

// NewAdminService constructs AdminService with required dependencies.
func NewAdminService(cfg AdminConfig, leads repository.LeadRepository, lock limiter.Lockout) *AdminService {
	return &AdminService{cfg: cfg, leads: leads, lock: lock, now: time.Now}
}

// Login checks the lockout for (username, ip), verifies the credential and issues an access token.
func (s *AdminService) Login(ctx context.Context, username, password, ip string) (model.Tokens, error) {
	clientHash := limiter.HashIP(ip)

	allowed, wait, err := s.lock.Allow(ctx, username, clientHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, &errs.RetryError{After: wait, Err: errs.ErrRateLimited}
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	// verify even on unknown user so both paths cost the same
	pwOK, err := pkgcrypto.VerifyEncodedPassword(password, s.cfg.PasswordHash)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("admin password hash: %w", err)
	}
	if !userOK || !pwOK {
		if blocked, wait, ferr := s.lock.Failure(ctx, username, clientHash); ferr == nil && blocked {
			return model.Tokens{}, &errs.RetryError{After: wait, Err: errs.ErrRateLimited}
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}

	_ = s.lock.Success(ctx, username, clientHash)

	return s.issueAccessToken(s.cfg.Username)
}

// IssueToken mints an access token for subject without a credential check.
// Used by the operator CLI, which holds the signing key.
func (s *AdminService) IssueToken(subject string) (model.Tokens, error) {
	return s.issueAccessToken(subject)
}

func (s *AdminService) issueAccessToken(subject string) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// ParseToken validates an access token and returns its subject.
func (s *AdminService) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.SignKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// ListLeads returns captured leads newest first.
// limit <= 0 means DefaultListLimit; larger values are capped at MaxListLimit.
func (s *AdminService) ListLeads(ctx context.Context, source string, limit int) ([]model.Lead, error) {
	src := model.Source(source)
	if src != "" && !src.Valid() {
		return nil, &errs.ValidationError{
			Fields:  []errs.FieldError{{Field: "source", Rule: "oneof", Message: "Unknown source."}},
			Message: "Unknown source.",
		}
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.leads.List(ctx, src, limit)
}
