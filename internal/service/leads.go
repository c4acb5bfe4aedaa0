// Package service contains the lead-capture pipeline and the admin service.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/botguard"
	pkgcrypto "github.com/and161185/leadgate/internal/crypto"
	"github.com/and161185/leadgate/internal/email"
	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/forms"
	"github.com/and161185/leadgate/internal/limiter"
	"github.com/and161185/leadgate/internal/metrics"
	"github.com/and161185/leadgate/internal/model"
	"github.com/and161185/leadgate/internal/repository"
)

// Success copy.
const (
	MsgContactOK    = "Thanks! We've received your message and will get back to you soon."
	MsgBookDemoOK   = "Thanks! We'll be in touch to schedule your demo."
	MsgWaitlistOK   = "Thanks, you're on the waitlist. We'll keep you posted."
	MsgNewsletterOK = "Check your inbox to confirm."
	MsgConfirmedOK  = "You're subscribed. We'll be in touch."
	MsgMagnetOK     = "Check your inbox for the download link."
	MsgRedeemOK     = "Download ready."
)

// Email failure copy per flow.
const (
	MsgContactSendFailed    = "Failed to send. Please try again."
	MsgBookDemoSendFailed   = "Failed to submit. Please try again."
	MsgWaitlistSendFailed   = "Failed to confirm waitlist signup."
	MsgNewsletterSendFailed = "Failed to send confirmation."
	MsgMagnetSendFailed     = "Failed to send email."
)

// Flow names used in logs and metrics.
const (
	FlowContact    = "contact"
	FlowBookDemo   = "book_demo"
	FlowWaitlist   = "waitlist"
	FlowNewsletter = "newsletter"
	FlowMagnet     = "lead_magnet"
	FlowConfirm    = "newsletter_confirm"
	FlowRedeem     = "lead_magnet_redeem"
)

const (
	uaMetaMax       = 300
	referrerMetaMax = 500
	uaNotifyMax     = 200
)

var errStore = errors.New("storage failure")

// Mailer renders and sends one templated email.
type Mailer interface {
	Send(ctx context.Context, kind email.Kind, p email.Payload) error
}

// LeadDeps collects LeadService collaborators.
type LeadDeps struct {
	Leads    repository.LeadRepository
	Magnets  repository.MagnetRepository
	Verifier botguard.Verifier
	Limiter  limiter.Limiter
	Mailer   Mailer
	// SiteURL prefixes confirmation and download links; no trailing slash.
	SiteURL string
	Log     *zap.Logger
}

// LeadService runs every form submission through
// honeypot, validation, challenge, rate limit, persistence, token issue and email, in that order.
// The first failing stage ends the request.
type LeadService struct {
	leads    repository.LeadRepository
	magnets  repository.MagnetRepository
	verifier botguard.Verifier
	limiter  limiter.Limiter
	mail     Mailer
	siteURL  string
	log      *zap.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewLeadService constructs the pipeline.
func NewLeadService(d LeadDeps) *LeadService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &LeadService{
		leads:    d.Leads,
		magnets:  d.Magnets,
		verifier: d.Verifier,
		limiter:  d.Limiter,
		mail:     d.Mailer,
		siteURL:  strings.TrimRight(d.SiteURL, "/"),
		log:      log.Named("leads"),
		now:      time.Now,
		newToken: pkgcrypto.GenerateToken,
	}
}

// SubmitContact handles the contact form.
func (s *LeadService) SubmitContact(ctx context.Context, c model.Client, form url.Values) (res model.Result, err error) {
	defer s.observe(FlowContact, &err)
	if err := botguard.Honeypot(form); err != nil {
		return model.Result{}, err
	}
	f, err := forms.ParseContact(form)
	if err != nil {
		return model.Result{}, err
	}
	if err := s.admit(ctx, limiter.ActionContact, c, f.TurnstileToken); err != nil {
		return model.Result{}, err
	}

	now := s.now()
	lead := &model.Lead{
		Email:     f.Email,
		Source:    model.SourceContact,
		Name:      f.Name,
		Company:   f.Company,
		Message:   f.Message,
		PagePath:  f.PagePath,
		Tags:      forms.InferTags(f.Message),
		Consent:   f.Consent,
		Meta:      submissionMeta(c, f.PagePath, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store(ctx, lead); err != nil {
		return model.Result{}, err
	}

	if err := s.mail.Send(ctx, email.KindContactNotification, email.Payload{
		Name:    f.Name,
		Email:   f.Email,
		Company: f.Company,
		Message: f.Message,
		Meta:    notifyMeta(c, f.PagePath),
	}); err != nil {
		return model.Result{}, sendFailure(MsgContactSendFailed, err)
	}
	if err := s.mail.Send(ctx, email.KindContactAutoReply, email.Payload{Name: f.Name, Email: f.Email}); err != nil {
		s.log.Warn("contact auto-reply failed", zap.Error(err))
	}
	return ok(MsgContactOK), nil
}

// SubmitBookDemo handles the demo request form.
func (s *LeadService) SubmitBookDemo(ctx context.Context, c model.Client, form url.Values) (res model.Result, err error) {
	defer s.observe(FlowBookDemo, &err)
	if err := botguard.Honeypot(form); err != nil {
		return model.Result{}, err
	}
	f, err := forms.ParseBookDemo(form)
	if err != nil {
		return model.Result{}, err
	}
	if err := s.admit(ctx, limiter.ActionBookDemo, c, f.TurnstileToken); err != nil {
		return model.Result{}, err
	}

	now := s.now()
	lead := &model.Lead{
		Email:     f.Email,
		Source:    model.SourceBookDemo,
		Name:      f.Name,
		Company:   f.Company,
		Message:   f.Message,
		PagePath:  f.PagePath,
		Tags:      []string{"high-intent"},
		Consent:   f.Consent,
		Meta:      submissionMeta(c, f.PagePath, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store(ctx, lead); err != nil {
		return model.Result{}, err
	}

	if err := s.mail.Send(ctx, email.KindBookDemoNotification, email.Payload{
		Name:    f.Name,
		Email:   f.Email,
		Company: f.Company,
		Message: f.Message,
		Meta:    notifyMeta(c, f.PagePath),
	}); err != nil {
		return model.Result{}, sendFailure(MsgBookDemoSendFailed, err)
	}
	return ok(MsgBookDemoOK), nil
}

// SubmitWaitlist handles the waitlist form.
func (s *LeadService) SubmitWaitlist(ctx context.Context, c model.Client, form url.Values) (res model.Result, err error) {
	defer s.observe(FlowWaitlist, &err)
	if err := botguard.Honeypot(form); err != nil {
		return model.Result{}, err
	}
	f, err := forms.ParseWaitlist(form)
	if err != nil {
		return model.Result{}, err
	}
	if err := s.admit(ctx, limiter.ActionWaitlist, c, f.TurnstileToken); err != nil {
		return model.Result{}, err
	}

	now := s.now()
	lead := &model.Lead{
		Email:     f.Email,
		Source:    model.SourceWaitlist,
		Name:      f.Name,
		Company:   f.Company,
		Message:   f.Message,
		PagePath:  f.PagePath,
		Tags:      []string{"waitlist"},
		Consent:   f.Consent,
		Meta:      submissionMeta(c, f.PagePath, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store(ctx, lead); err != nil {
		return model.Result{}, err
	}

	if err := s.mail.Send(ctx, email.KindWaitlistThanks, email.Payload{Name: f.Name, Email: f.Email}); err != nil {
		return model.Result{}, sendFailure(MsgWaitlistSendFailed, err)
	}
	return ok(MsgWaitlistOK), nil
}

// SubscribeNewsletter records an unconfirmed subscription and mails a confirmation link.
// Resubscribing replaces the pending token and resets confirmation.
func (s *LeadService) SubscribeNewsletter(ctx context.Context, c model.Client, form url.Values) (res model.Result, err error) {
	defer s.observe(FlowNewsletter, &err)
	if err := botguard.Honeypot(form); err != nil {
		return model.Result{}, err
	}
	f, err := forms.ParseNewsletter(form)
	if err != nil {
		return model.Result{}, err
	}
	if err := s.admit(ctx, limiter.ActionNewsletterSubscribe, c, f.TurnstileToken); err != nil {
		return model.Result{}, err
	}

	token, err := s.newToken()
	if err != nil {
		return model.Result{}, fmt.Errorf("issue token: %w", err)
	}
	hash := pkgcrypto.HashToken(token)

	now := s.now()
	meta := submissionMeta(c, f.PagePath, now)
	if f.SourcePlacement != "" {
		meta["sourcePlacement"] = f.SourcePlacement
	}
	lead := &model.Lead{
		Email:     f.Email,
		Source:    model.SourceNewsletter,
		PagePath:  f.PagePath,
		Tags:      []string{},
		Consent:   f.Consent,
		Meta:      meta,
		Confirmed: false,
		TokenHash: &hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store(ctx, lead); err != nil {
		return model.Result{}, err
	}

	if err := s.mail.Send(ctx, email.KindNewsletterConfirm, email.Payload{
		Email: f.Email,
		URL:   s.link("/newsletter/confirm", token),
	}); err != nil {
		return model.Result{}, sendFailure(MsgNewsletterSendFailed, err)
	}
	return ok(MsgNewsletterOK), nil
}

// RequestLeadMagnet records a gated-content request and mails a single-use download link.
func (s *LeadService) RequestLeadMagnet(ctx context.Context, c model.Client, form url.Values) (res model.Result, err error) {
	defer s.observe(FlowMagnet, &err)
	if err := botguard.Honeypot(form); err != nil {
		return model.Result{}, err
	}
	f, err := forms.ParseLeadMagnet(form)
	if err != nil {
		return model.Result{}, err
	}
	if err := s.admit(ctx, limiter.ActionLeadMagnetRequest, c, f.TurnstileToken); err != nil {
		return model.Result{}, err
	}

	token, err := s.newToken()
	if err != nil {
		return model.Result{}, fmt.Errorf("issue token: %w", err)
	}
	hash := pkgcrypto.HashToken(token)

	now := s.now()
	meta := submissionMeta(c, f.PagePath, now)
	meta["magnet"] = f.Magnet

	req := &model.LeadMagnetRequest{
		Email:     f.Email,
		Magnet:    f.Magnet,
		TokenHash: &hash,
		Meta:      submissionMeta(c, f.PagePath, now),
		CreatedAt: now,
	}
	if err := s.magnets.Create(ctx, req); err != nil {
		s.log.Error("store lead magnet request failed", zap.Error(err))
		return model.Result{}, fmt.Errorf("%w: %w", errStore, err)
	}
	lead := &model.Lead{
		Email:     f.Email,
		Source:    model.SourceLeadMagnet,
		PagePath:  f.PagePath,
		Tags:      forms.MagnetTags(f.Magnet),
		Consent:   f.Consent,
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store(ctx, lead); err != nil {
		return model.Result{}, err
	}

	if err := s.mail.Send(ctx, email.KindLeadMagnetDownload, email.Payload{
		Email: f.Email,
		URL:   s.link("/resources/download", token),
		Title: model.TitleFor(f.Magnet),
	}); err != nil {
		return model.Result{}, sendFailure(MsgMagnetSendFailed, err)
	}
	return ok(MsgMagnetOK), nil
}

// ConfirmNewsletter consumes a confirmation token.
// Unknown, used and empty tokens fail identically.
func (s *LeadService) ConfirmNewsletter(ctx context.Context, token string) (res model.Result, err error) {
	defer s.observe(FlowConfirm, &err)
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Result{}, errs.ErrInvalidLink
	}
	if err := s.leads.ConfirmNewsletter(ctx, pkgcrypto.HashToken(token), s.now()); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Result{}, errs.ErrInvalidLink
		}
		s.log.Error("confirm newsletter failed", zap.Error(err))
		return model.Result{}, fmt.Errorf("%w: %w", errStore, err)
	}
	return ok(MsgConfirmedOK), nil
}

// RedeemLeadMagnet consumes a download token and returns the asset path.
func (s *LeadService) RedeemLeadMagnet(ctx context.Context, token string) (res model.Result, err error) {
	defer s.observe(FlowRedeem, &err)
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Result{}, errs.ErrInvalidLink
	}
	magnet, err := s.magnets.Redeem(ctx, pkgcrypto.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Result{}, errs.ErrInvalidLink
		}
		s.log.Error("redeem lead magnet failed", zap.Error(err))
		return model.Result{}, fmt.Errorf("%w: %w", errStore, err)
	}
	res = ok(MsgRedeemOK)
	res.DownloadPath = model.DownloadPathFor(magnet)
	return res, nil
}

// admit runs the challenge and then the rate limit.
func (s *LeadService) admit(ctx context.Context, action string, c model.Client, token string) error {
	if err := s.verifier.Verify(ctx, token, c.IP); err != nil {
		return err
	}
	allowed, err := s.limiter.Allow(ctx, limiter.Key(action, c.IP, c.UserAgent))
	if err != nil {
		s.log.Error("rate limiter failed", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("rate limit: %w", err)
	}
	if !allowed {
		return errs.ErrRateLimited
	}
	return nil
}

func (s *LeadService) store(ctx context.Context, l *model.Lead) error {
	if _, err := s.leads.Upsert(ctx, l); err != nil {
		s.log.Error("store lead failed", zap.String("source", string(l.Source)), zap.Error(err))
		return fmt.Errorf("%w: %w", errStore, err)
	}
	return nil
}

func (s *LeadService) link(path, token string) string {
	return s.siteURL + path + "?token=" + url.QueryEscape(token)
}

func (s *LeadService) observe(flow string, err *error) {
	o := outcome(*err)
	metrics.Submissions.WithLabelValues(flow, o).Inc()
	switch o {
	case metrics.OutcomeOK, metrics.OutcomeInvalid:
	case metrics.OutcomeHoneypot, metrics.OutcomeChallenge, metrics.OutcomeRateLimited, metrics.OutcomeBadLink:
		s.log.Info("submission rejected", zap.String("flow", flow), zap.String("outcome", o))
	default:
		s.log.Warn("submission failed", zap.String("flow", flow), zap.String("outcome", o), zap.Error(*err))
	}
}

func outcome(err error) string {
	var ve *errs.ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &ve):
		return metrics.OutcomeInvalid
	case errors.Is(err, errs.ErrHoneypot):
		return metrics.OutcomeHoneypot
	case errors.Is(err, errs.ErrVerificationFailed):
		return metrics.OutcomeChallenge
	case errors.Is(err, errs.ErrRateLimited):
		return metrics.OutcomeRateLimited
	case errors.Is(err, errs.ErrInvalidLink):
		return metrics.OutcomeBadLink
	case errors.Is(err, errs.ErrEmailNotConfigured), errors.Is(err, errs.ErrEmailFailed):
		return metrics.OutcomeEmailError
	case errors.Is(err, errStore):
		return metrics.OutcomeStoreError
	}
	return metrics.OutcomeError
}

func sendFailure(msg string, err error) error {
	if errors.Is(err, errs.ErrEmailNotConfigured) {
		return err
	}
	return errs.Public(msg, err)
}

func ok(msg string) model.Result { return model.Result{OK: true, Message: msg} }

func submissionMeta(c model.Client, pagePath string, at time.Time) model.Meta {
	m := model.Meta{"submittedAt": at.UTC().Format(time.RFC3339)}
	if c.IP != "" {
		m["ip"] = c.IP
	}
	if c.UserAgent != "" {
		m["ua"] = truncate(c.UserAgent, uaMetaMax)
	}
	if c.Referrer != "" {
		m["referrer"] = truncate(c.Referrer, referrerMetaMax)
	}
	if pagePath != "" {
		m["pagePath"] = pagePath
	}
	return m
}

func notifyMeta(c model.Client, pagePath string) []email.MetaField {
	return []email.MetaField{
		{Key: "ip", Value: c.IP},
		{Key: "ua", Value: truncate(c.UserAgent, uaNotifyMax)},
		{Key: "pagePath", Value: pagePath},
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
