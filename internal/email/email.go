// Package email renders transactional templates and hands them to a provider.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/metrics"
)

// Message is a rendered email ready for a provider.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
}

// Sender delivers a rendered message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// Disabled is the sender used when no provider credential is configured.
type Disabled struct{}

// Send always fails with errs.ErrEmailNotConfigured.
func (Disabled) Send(context.Context, Message) (string, error) {
	return "", errs.ErrEmailNotConfigured
}

// Kind selects a template.
type Kind string

// Templates.
const (
	KindContactNotification  Kind = "contact_notification"
	KindContactAutoReply     Kind = "contact_auto_reply"
	KindNewsletterConfirm    Kind = "newsletter_confirm"
	KindLeadMagnetDownload   Kind = "lead_magnet_download"
	KindBookDemoNotification Kind = "book_demo_notification"
	KindWaitlistThanks       Kind = "waitlist_thanks"
)

// Internal reports whether the kind goes to the site operators rather than the submitter.
func (k Kind) Internal() bool {
	return k == KindContactNotification || k == KindBookDemoNotification
}

// MetaField is one line of the submission metadata block.
type MetaField struct {
	Key   string
	Value string
}

// Payload is the template input. Fields a template does not use are ignored.
type Payload struct {
	Name    string
	Email   string
	Company string
	Message string
	// URL is the confirmation or download link.
	URL   string
	Title string
	Meta  []MetaField
}

const metaValueMax = 200

// Dispatcher renders templates and routes messages to the right recipient.
type Dispatcher struct {
	sender    Sender
	from      string
	to        string
	autoReply bool
	siteName  string
	log       *zap.Logger
}

// Config configures a Dispatcher.
type Config struct {
	From string
	// To receives internal notifications.
	To string
	// AutoReply enables the contact auto-reply.
	AutoReply bool
	SiteName  string
}

// NewDispatcher constructs a dispatcher over sender.
func NewDispatcher(sender Sender, cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.SiteName == "" {
		cfg.SiteName = "HyreLog"
	}
	return &Dispatcher{
		sender:    sender,
		from:      cfg.From,
		to:        cfg.To,
		autoReply: cfg.AutoReply,
		siteName:  cfg.SiteName,
		log:       log,
	}
}

// Send renders kind with p and delivers it.
// Provider failures wrap errs.ErrEmailFailed; a missing provider returns errs.ErrEmailNotConfigured.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, p Payload) error {
	if kind == KindContactAutoReply && !d.autoReply {
		d.log.Debug("contact auto-reply disabled; skipping")
		return nil
	}

	tpl, ok := templates[kind]
	if !ok {
		return fmt.Errorf("unknown email kind %q", kind)
	}

	msg := Message{From: d.from}
	if kind.Internal() {
		msg.To = []string{d.to}
		msg.ReplyTo = p.Email
		p.Meta = capMeta(p.Meta)
	} else {
		msg.To = []string{p.Email}
		p.Meta = nil
	}
	msg.Subject = singleLine(subject(kind, p, d.siteName))

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view{Payload: p, SiteName: d.siteName}); err != nil {
		return fmt.Errorf("render %s: %w", kind, err)
	}
	msg.HTML = buf.String()

	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		metrics.EmailsSent.WithLabelValues(string(kind), "error").Inc()
		if errors.Is(err, errs.ErrEmailNotConfigured) {
			d.log.Error("email provider not configured", zap.String("kind", string(kind)))
			return err
		}
		d.log.Error("email send failed", zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", errs.ErrEmailFailed, kind, err)
	}
	metrics.EmailsSent.WithLabelValues(string(kind), "sent").Inc()
	d.log.Info("email sent", zap.String("kind", string(kind)), zap.String("message_id", id))
	return nil
}

func subject(kind Kind, p Payload, site string) string {
	company := p.Company
	if company == "" {
		company = "—"
	}
	switch kind {
	case KindContactNotification:
		return fmt.Sprintf("Contact: %s (%s)", p.Name, company)
	case KindContactAutoReply:
		return "We received your message — " + site
	case KindNewsletterConfirm:
		return "Confirm your subscription — " + site
	case KindLeadMagnetDownload:
		return p.Title + " — " + site
	case KindBookDemoNotification:
		return fmt.Sprintf("Book demo request: %s (%s)", p.Name, company)
	case KindWaitlistThanks:
		return "You're on the waitlist — " + site
	}
	return site
}

// singleLine strips CR and LF so user input cannot inject headers.
func singleLine(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	return strings.TrimSpace(s)
}

func capMeta(in []MetaField) []MetaField {
	out := make([]MetaField, 0, len(in))
	for _, m := range in {
		if m.Value == "" {
			continue
		}
		if utf8.RuneCountInString(m.Value) > metaValueMax {
			m.Value = string([]rune(m.Value)[:metaValueMax])
		}
		out = append(out, m)
	}
	return out
}
