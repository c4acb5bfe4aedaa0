// Package httpserver exposes the lead-capture flows, token landing pages and the admin API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/model"
)

// MaxBodyBytes caps every API request body.
const MaxBodyBytes = 64 << 10

// LeadFlows is the lead-capture pipeline.
type LeadFlows interface {
	SubmitContact(ctx context.Context, c model.Client, form url.Values) (model.Result, error)
	SubmitBookDemo(ctx context.Context, c model.Client, form url.Values) (model.Result, error)
	SubmitWaitlist(ctx context.Context, c model.Client, form url.Values) (model.Result, error)
	SubscribeNewsletter(ctx context.Context, c model.Client, form url.Values) (model.Result, error)
	RequestLeadMagnet(ctx context.Context, c model.Client, form url.Values) (model.Result, error)
	ConfirmNewsletter(ctx context.Context, token string) (model.Result, error)
	RedeemLeadMagnet(ctx context.Context, token string) (model.Result, error)
}

// Admin is the operator API.
type Admin interface {
	Login(ctx context.Context, username, password, ip string) (model.Tokens, error)
	ParseToken(raw string) (string, error)
	ListLeads(ctx context.Context, source string, limit int) ([]model.Lead, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects Server collaborators. Admin may be nil, which disables /api/admin.
type Deps struct {
	Leads LeadFlows
	Admin Admin
	DB    Pinger
	Log   *zap.Logger

	// GAMeasurementID enables the analytics tag on landing pages.
	GAMeasurementID string
	SiteName        string
	// RetryAfter is advertised on 429 responses unless the error carries its own delay.
	RetryAfter time.Duration
	// TrustedProxies are the peers allowed to set X-Forwarded-For and friends.
	// Empty means the connection address is always the client.
	TrustedProxies []netip.Prefix
}

// Server holds HTTP handlers.
type Server struct {
	leads      LeadFlows
	admin      Admin
	db         Pinger
	log        *zap.Logger
	gaID       string
	siteName   string
	retryAfter time.Duration
	proxies    proxyTrust
}

// New constructs a Server.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	site := d.SiteName
	if site == "" {
		site = "HyreLog"
	}
	return &Server{
		leads:      d.Leads,
		admin:      d.Admin,
		db:         d.DB,
		log:        log.Named("http"),
		gaID:       d.GAMeasurementID,
		siteName:   site,
		retryAfter: d.RetryAfter,
		proxies:    proxyTrust(d.TrustedProxies),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.identify)
	r.Use(accessLog(s.log))
	r.Use(recoverer(s.log))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, model.Result{Message: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, model.Result{Message: errs.MsgInvalidRequest})
	})

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/newsletter/confirm", s.confirmPage)
	r.Get("/resources/download", s.downloadPage)

	r.Route("/api", func(r chi.Router) {
		r.Use(limitBody(MaxBodyBytes))

		r.Post("/contact", s.submit(s.leads.SubmitContact))
		r.Post("/book-demo", s.submit(s.leads.SubmitBookDemo))
		r.Post("/waitlist", s.submit(s.leads.SubmitWaitlist))
		r.Post("/newsletter", s.submit(s.leads.SubscribeNewsletter))
		r.Post("/lead-magnet", s.submit(s.leads.RequestLeadMagnet))

		r.Get("/newsletter/confirm", s.redeem(s.leads.ConfirmNewsletter))
		r.Get("/resources/download", s.redeem(s.leads.RedeemLeadMagnet))

		if s.admin != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Post("/login", s.adminLogin)
				r.With(s.requireAdmin).Get("/leads", s.adminLeads)
			})
		}
	})
	return r
}
