// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Email     EmailConfig
	Turnstile TurnstileConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Site      SiteConfig
	Log       LogConfig
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":3000"`
	HealthGRPCAddr  string        `env:"HEALTH_GRPC_ADDR"`
	OutboundTimeout time.Duration `env:"OUTBOUND_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	// TrustedProxies holds CIDRs or bare addresses of reverse proxies whose
	// forwarding headers identify the client. Empty trusts no one.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Proxies parses TrustedProxies. A bare address becomes a single-host prefix.
func (s *ServerConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// DatabaseConfig holds the PostgreSQL DSN.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL,required"`
}

// RedisConfig holds the optional shared rate-limit store.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// Enabled reports whether a Redis URL is configured.
func (r *RedisConfig) Enabled() bool { return r.URL != "" }

// Email providers.
const (
	ProviderResend  = "resend"
	ProviderMailgun = "mailgun"
)

// DefaultContactTo receives internal notifications when CONTACT_TO_EMAIL is unset.
const DefaultContactTo = "contact@hyrelog.com"

// EmailConfig holds provider credentials and routing.
type EmailConfig struct {
	Provider      string `env:"EMAIL_PROVIDER" envDefault:"resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY"`
	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY"`
	From          string `env:"CONTACT_FROM_EMAIL" envDefault:"HyreLog <onboarding@resend.dev>"`
	To            string `env:"CONTACT_TO_EMAIL"`
}

// Configured reports whether the selected provider has its credentials.
func (e *EmailConfig) Configured() bool {
	switch e.Provider {
	case ProviderMailgun:
		return e.MailgunDomain != "" && e.MailgunAPIKey != ""
	default:
		return e.ResendAPIKey != ""
	}
}

// Recipient returns the internal notification address.
func (e *EmailConfig) Recipient() string {
	if e.To != "" {
		return e.To
	}
	return DefaultContactTo
}

// TurnstileConfig holds challenge verification settings.
type TurnstileConfig struct {
	SiteKey   string `env:"TURNSTILE_SITE_KEY"`
	SecretKey string `env:"TURNSTILE_SECRET_KEY"`
	VerifyURL string `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}

// Enabled reports whether both keys are present.
func (t *TurnstileConfig) Enabled() bool { return t.SiteKey != "" && t.SecretKey != "" }

// RateLimitConfig holds per-action sliding-window limits.
type RateLimitConfig struct {
	Max       int `env:"RATE_LIMIT_MAX" envDefault:"5"`
	WindowSec int `env:"RATE_LIMIT_WINDOW_SEC" envDefault:"60"`
}

// Window returns the window as a duration.
func (r *RateLimitConfig) Window() time.Duration { return time.Duration(r.WindowSec) * time.Second }

// AdminConfig holds operator API credentials.
type AdminConfig struct {
	Username     string        `env:"ADMIN_USERNAME"`
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTKey       string        `env:"ADMIN_JWT_KEY"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"15m"`
}

// Enabled reports whether the admin API can authenticate anyone.
func (a *AdminConfig) Enabled() bool {
	return a.Username != "" && a.PasswordHash != "" && a.JWTKey != ""
}

// SiteConfig holds public site settings used in links and pages.
type SiteConfig struct {
	URL             string `env:"SITE_URL" envDefault:"http://localhost:3000"`
	Name            string `env:"SITE_NAME" envDefault:"HyreLog"`
	GAMeasurementID string `env:"GA_MEASUREMENT_ID"`
}

// LogConfig holds logging and error reporting settings.
type LogConfig struct {
	Debug     bool   `env:"LOG_DEBUG" envDefault:"false"`
	SentryDSN string `env:"SENTRY_DSN"`
}

// LoadDotEnv loads variables from path into the process environment.
// A missing file is reported as fs.ErrNotExist so callers can log and continue.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file %s: %w", path, fs.ErrNotExist)
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load parses the environment into Config and normalizes it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if _, err := cfg.Server.Proxies(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.RateLimit.Max < 1 {
		c.RateLimit.Max = 1
	}
	if c.RateLimit.WindowSec < 1 {
		c.RateLimit.WindowSec = 1
	}
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
	c.Email.Provider = strings.ToLower(strings.TrimSpace(c.Email.Provider))
	if c.Email.Provider == "" {
		c.Email.Provider = ProviderResend
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 15 * time.Minute
	}
}
