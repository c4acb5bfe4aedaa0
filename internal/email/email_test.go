package email

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/config"
	"github.com/and161185/leadgate/internal/errs"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "msg-1", nil
}

var _ Sender = (*fakeSender)(nil)

func newDispatcher(s Sender, autoReply bool) *Dispatcher {
	return NewDispatcher(s, Config{
		From:      "HyreLog <onboarding@resend.dev>",
		To:        "sales@hyrelog.com",
		AutoReply: autoReply,
	}, zap.NewNop())
}

var meta = []MetaField{
	{Key: "ip", Value: "203.0.113.5"},
	{Key: "ua", Value: strings.Repeat("u", 250)},
	{Key: "pagePath", Value: "/contact"},
}

func TestDispatcher_ContactNotification(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	d := newDispatcher(fs, true)

	err := d.Send(context.Background(), KindContactNotification, Payload{
		Name:    "Eve <script>alert(1)</script>",
		Email:   "eve@example.com",
		Message: `<img src=x onerror="steal()"> & more`,
		Meta:    meta,
	})
	require.NoError(t, err)
	require.Len(t, fs.sent, 1)

	m := fs.sent[0]
	require.Equal(t, []string{"sales@hyrelog.com"}, m.To)
	require.Equal(t, "eve@example.com", m.ReplyTo)
	require.Equal(t, "HyreLog <onboarding@resend.dev>", m.From)
	require.Equal(t, "Contact: Eve <script>alert(1)</script> (—)", m.Subject)

	require.NotContains(t, m.HTML, "<script>")
	require.NotContains(t, m.HTML, "<img")
	require.Contains(t, m.HTML, "&lt;script&gt;")
	require.Contains(t, m.HTML, "&amp; more")
	require.Contains(t, m.HTML, "ip: 203.0.113.5")
	require.Contains(t, m.HTML, "pagePath: /contact")
	require.Contains(t, m.HTML, "ua: "+strings.Repeat("u", 200)+" |")
	require.NotContains(t, m.HTML, strings.Repeat("u", 201))
}

func TestDispatcher_UserFacingTemplatesNeverCarryMeta(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindContactAutoReply, KindNewsletterConfirm, KindLeadMagnetDownload, KindWaitlistThanks} {
		t.Run(string(kind), func(t *testing.T) {
			fs := &fakeSender{}
			d := newDispatcher(fs, true)
			require.NoError(t, d.Send(context.Background(), kind, Payload{
				Name:  "Sam",
				Email: "sam@example.com",
				URL:   "https://hyrelog.com/newsletter/confirm?token=abc",
				Title: "SOC 2 Audit Trail Checklist",
				Meta:  meta,
			}))
			require.Len(t, fs.sent, 1)
			m := fs.sent[0]
			require.Equal(t, []string{"sam@example.com"}, m.To)
			require.Empty(t, m.ReplyTo)
			require.NotContains(t, m.HTML, "203.0.113.5")
			require.NotContains(t, m.HTML, "pagePath")
		})
	}
}

func TestDispatcher_Subjects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		p    Payload
		want string
	}{
		{KindContactNotification, Payload{Name: "Ada", Company: "Acme"}, "Contact: Ada (Acme)"},
		{KindContactAutoReply, Payload{Email: "a@b.co"}, "We received your message — HyreLog"},
		{KindNewsletterConfirm, Payload{Email: "a@b.co"}, "Confirm your subscription — HyreLog"},
		{KindLeadMagnetDownload, Payload{Email: "a@b.co", Title: "SOC 2 Audit Trail Checklist"}, "SOC 2 Audit Trail Checklist — HyreLog"},
		{KindBookDemoNotification, Payload{Name: "Bo"}, "Book demo request: Bo (—)"},
		{KindWaitlistThanks, Payload{Email: "a@b.co"}, "You're on the waitlist — HyreLog"},
		{KindContactNotification, Payload{Name: "Ada\r\nBcc: victim@example.com", Company: "X"}, "Contact: Ada Bcc: victim@example.com (X)"},
	}
	for _, tt := range tests {
		fs := &fakeSender{}
		require.NoError(t, newDispatcher(fs, true).Send(context.Background(), tt.kind, tt.p))
		require.Equal(t, tt.want, fs.sent[0].Subject)
		require.NotContains(t, fs.sent[0].Subject, "\n")
	}
}

func TestDispatcher_LinksAreRendered(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	d := newDispatcher(fs, true)
	url := "https://hyrelog.com/resources/download?token=a-b_c"
	require.NoError(t, d.Send(context.Background(), KindLeadMagnetDownload, Payload{
		Email: "l@example.com", URL: url, Title: "SOC 2 Audit Trail Checklist",
	}))
	require.Contains(t, fs.sent[0].HTML, `href="`+url+`"`)
	require.Contains(t, fs.sent[0].HTML, "<strong>SOC 2 Audit Trail Checklist</strong>")

	fs.sent = nil
	require.NoError(t, d.Send(context.Background(), KindNewsletterConfirm, Payload{
		Email: "n@example.com", URL: "javascript:alert(1)",
	}))
	require.NotContains(t, fs.sent[0].HTML, "javascript:")
}

func TestDispatcher_AutoReplySkippedWhenDisabled(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	d := newDispatcher(fs, false)
	require.NoError(t, d.Send(context.Background(), KindContactAutoReply, Payload{Email: "a@b.co", Name: "A"}))
	require.Empty(t, fs.sent)
}

func TestDispatcher_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	err := newDispatcher(Disabled{}, true).Send(ctx, KindNewsletterConfirm, Payload{Email: "a@b.co"})
	require.ErrorIs(t, err, errs.ErrEmailNotConfigured)
	require.NotErrorIs(t, err, errs.ErrEmailFailed)
	require.Equal(t, errs.MsgEmailNotConfig, errs.PublicMessage(err))

	err = newDispatcher(&fakeSender{err: errors.New("422 domain not verified: api key re_123")}, true).
		Send(ctx, KindWaitlistThanks, Payload{Email: "a@b.co"})
	require.ErrorIs(t, err, errs.ErrEmailFailed)
	require.NotContains(t, errs.PublicMessage(err), "re_123")

	err = newDispatcher(&fakeSender{}, true).Send(ctx, Kind("nope"), Payload{})
	require.Error(t, err)
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	hc := &http.Client{}
	require.IsType(t, Disabled{}, NewSender(config.EmailConfig{Provider: config.ProviderResend}, hc))
	require.IsType(t, &Resend{}, NewSender(config.EmailConfig{Provider: config.ProviderResend, ResendAPIKey: "re_x"}, hc))
	require.IsType(t, Disabled{}, NewSender(config.EmailConfig{Provider: config.ProviderMailgun, ResendAPIKey: "re_x"}, hc))
	require.IsType(t, &Mailgun{}, NewSender(config.EmailConfig{
		Provider: config.ProviderMailgun, MailgunDomain: "mg.hyrelog.com", MailgunAPIKey: "key",
	}, hc))
}
