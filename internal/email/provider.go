package email

import (
	"net/http"

	"github.com/and161185/leadgate/internal/config"
)

// NewSender picks the configured provider, or Disabled when its credentials are missing.
func NewSender(cfg config.EmailConfig, httpClient *http.Client) Sender {
	if !cfg.Configured() {
		return Disabled{}
	}
	if cfg.Provider == config.ProviderMailgun {
		return NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, httpClient)
	}
	return NewResend(cfg.ResendAPIKey, httpClient)
}
