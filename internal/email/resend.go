package email

import (
	"context"
	"net/http"

	"github.com/resendlabs/resend-go"
)

// Resend delivers messages through the Resend API.
type Resend struct {
	client *resend.Client
}

// NewResend constructs a Resend sender using httpClient for transport.
func NewResend(apiKey string, httpClient *http.Client) *Resend {
	return &Resend{client: resend.NewCustomClient(httpClient, apiKey)}
}

// Send implements Sender.
func (r *Resend) Send(ctx context.Context, m Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sent, err := r.client.Emails.Send(&resend.SendEmailRequest{
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
		ReplyTo: m.ReplyTo,
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}
