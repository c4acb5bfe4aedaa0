package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/and161185/leadgate/internal/errs"
)

const checklistPage = "/resources/soc2-audit-trail-checklist"

type pageConfig struct {
	Title       string
	Description string
	NoIndex     bool
}

func (s *Server) layout(cfg pageConfig, content ...g.Node) g.Node {
	return g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1.0")),
				TitleEl(g.Text(cfg.Title+" | "+s.siteName)),
				Meta(Name("description"), Content(cfg.Description)),
				g.If(cfg.NoIndex, Meta(Name("robots"), Content("noindex"))),
				s.analytics(),
			),
			Body(
				Main(
					Class("container"),
					Div(Class("mx-auto max-w-md text-center"), g.Group(content)),
				),
			),
		),
	})
}

// analytics renders the GA loader when a measurement id is configured.
func (s *Server) analytics() g.Node {
	if s.gaID == "" {
		return g.Group(nil)
	}
	id, _ := json.Marshal(s.gaID)
	return g.Group([]g.Node{
		Script(g.Attr("async"), Src("https://www.googletagmanager.com/gtag/js?id="+url.QueryEscape(s.gaID))),
		Script(g.Raw("window.dataLayer=window.dataLayer||[];function gtag(){dataLayer.push(arguments);}" +
			"gtag('js',new Date());gtag('config'," + string(id) + ",{anonymize_ip:true});")),
	})
}

func (s *Server) render(w http.ResponseWriter, status int, page g.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := page.Render(w); err != nil {
		s.log.Warn("render page", zap.Error(err))
	}
}

func pageStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, errs.ErrInvalidLink) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) confirmPage(w http.ResponseWriter, r *http.Request) {
	res, err := s.leads.ConfirmNewsletter(r.Context(), r.URL.Query().Get("token"))
	cfg := pageConfig{
		Title:       "Confirm subscription",
		Description: "Confirm your " + s.siteName + " newsletter subscription.",
		NoIndex:     true,
	}
	if err != nil {
		s.render(w, pageStatus(err), s.layout(cfg,
			H1(g.Text("Link invalid or expired")),
			P(g.Text(errs.PublicMessage(err))),
			Div(
				A(Href("/blog"), g.Text("Back to blog")),
				A(Href("/contact"), g.Text("Contact us")),
			),
		))
		return
	}
	s.render(w, http.StatusOK, s.layout(cfg,
		H1(g.Text("You're subscribed")),
		P(g.Text(res.Message)),
		Div(
			A(Href("/product"), g.Text("View product")),
			A(Href("/security"), g.Text("Security & compliance")),
		),
	))
}

func (s *Server) downloadPage(w http.ResponseWriter, r *http.Request) {
	res, err := s.leads.RedeemLeadMagnet(r.Context(), r.URL.Query().Get("token"))
	cfg := pageConfig{
		Title:       "Download resource",
		Description: "Download your " + s.siteName + " resource.",
	}
	if err != nil || res.DownloadPath == "" {
		msg := errs.MsgInvalidLink
		if err != nil {
			msg = errs.PublicMessage(err)
		}
		s.render(w, pageStatus(err), s.layout(cfg,
			H1(g.Text("Link invalid or expired")),
			P(g.Text(msg+" Request a new link below.")),
			A(Href(checklistPage), g.Text("Get the checklist")),
		))
		return
	}
	s.render(w, http.StatusOK, s.layout(cfg,
		H1(g.Text("Download ready")),
		P(g.Text(res.Message)),
		A(Href(res.DownloadPath), g.Attr("download"), g.Text("Download PDF")),
		P(A(Href(checklistPage), g.Text("Request again"))),
	))
}
