package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/model"
)

type submitFunc func(ctx context.Context, c model.Client, form url.Values) (model.Result, error)

type redeemFunc func(ctx context.Context, token string) (model.Result, error)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error chain to an HTTP status.
func statusFor(err error) int {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, errs.ErrHoneypot):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrVerificationFailed):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrInvalidLink), errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrEmailNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrEmailFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		wait, ok := errs.RetryAfter(err)
		if !ok {
			wait = s.retryAfter
		}
		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	writeJSON(w, status, model.Result{Message: errs.PublicMessage(err)})
}

// parseForm reads url-encoded and multipart bodies into one value set.
func parseForm(r *http.Request) (url.Values, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}

func (s *Server) submit(fn submitFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := parseForm(r)
		if err != nil {
			status := http.StatusBadRequest
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				status = http.StatusRequestEntityTooLarge
			}
			writeJSON(w, status, model.Result{Message: errs.MsgInvalidRequest})
			return
		}
		res, err := fn(r.Context(), clientFrom(r.Context()), form)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) redeem(fn redeemFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health: database unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, model.Result{Message: errs.MsgInvalidRequest})
			return
		}
	} else {
		form, err := parseForm(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, model.Result{Message: errs.MsgInvalidRequest})
			return
		}
		req.Username, req.Password = form.Get("username"), form.Get("password")
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, model.Result{Message: "empty username/password"})
		return
	}

	tok, err := s.admin.Login(r.Context(), req.Username, req.Password, clientFrom(r.Context()).IP)
	if err != nil {
		if !errors.Is(err, errs.ErrUnauthorized) && !errors.Is(err, errs.ErrRateLimited) {
			s.log.Error("admin login failed", zap.Error(err))
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt.UTC(),
	})
}

// LeadView is the admin API representation of a lead. Token hashes are never exposed.
type LeadView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Source      string            `json:"source"`
	Name        string            `json:"name,omitempty"`
	Company     string            `json:"company,omitempty"`
	Message     string            `json:"message,omitempty"`
	PagePath    string            `json:"pagePath,omitempty"`
	Tags        []string          `json:"tags"`
	Consent     bool              `json:"consent"`
	Meta        map[string]string `json:"meta,omitempty"`
	Confirmed   bool              `json:"confirmed"`
	ConfirmedAt *time.Time        `json:"confirmedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// LeadList is the body of GET /api/admin/leads.
type LeadList struct {
	Leads []LeadView `json:"leads"`
}

func toView(l model.Lead) LeadView {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return LeadView{
		ID:          l.ID.String(),
		Email:       l.Email,
		Source:      string(l.Source),
		Name:        l.Name,
		Company:     l.Company,
		Message:     l.Message,
		PagePath:    l.PagePath,
		Tags:        tags,
		Consent:     l.Consent,
		Meta:        l.Meta,
		Confirmed:   l.Confirmed,
		ConfirmedAt: l.ConfirmedAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func (s *Server) adminLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, model.Result{Message: "bad limit"})
			return
		}
		limit = n
	}

	leads, err := s.admin.ListLeads(r.Context(), q.Get("source"), limit)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			s.log.Error("list leads failed", zap.Error(err))
		}
		s.fail(w, err)
		return
	}

	out := LeadList{Leads: make([]LeadView, 0, len(leads))}
	for _, l := range leads {
		out.Leads = append(out.Leads, toView(l))
	}
	sub, _ := r.Context().Value(adminKey).(string)
	s.log.Debug("leads listed", zap.String("admin", sub), zap.Int("count", len(out.Leads)))
	writeJSON(w, http.StatusOK, out)
}
