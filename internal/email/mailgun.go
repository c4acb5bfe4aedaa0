package email

import (
	"context"
	"net/http"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailgun delivers messages through the Mailgun API.
type Mailgun struct {
	mg *mailgun.MailgunImpl
}

// NewMailgun constructs a Mailgun sender for domain using httpClient for transport.
func NewMailgun(domain, apiKey string, httpClient *http.Client) *Mailgun {
	mg := mailgun.NewMailgun(domain, apiKey)
	if httpClient != nil {
		mg.SetClient(httpClient)
	}
	return &Mailgun{mg: mg}
}

// Send implements Sender.
func (s *Mailgun) Send(ctx context.Context, m Message) (string, error) {
	msg := s.mg.NewMessage(m.From, m.Subject, "", m.To...)
	msg.SetHtml(m.HTML)
	if m.ReplyTo != "" {
		msg.SetReplyTo(m.ReplyTo)
	}
	_, id, err := s.mg.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	return id, nil
}
