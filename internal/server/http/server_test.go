package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/limiter"
	"github.com/and161185/leadgate/internal/model"
)

type fakeFlows struct {
	client model.Client
	form   url.Values
	token  string
	res    model.Result
	err    error
	panic  bool
}

var _ LeadFlows = (*fakeFlows)(nil)

func (f *fakeFlows) submit(c model.Client, form url.Values) (model.Result, error) {
	if f.panic {
		panic("boom")
	}
	f.client, f.form = c, form
	return f.res, f.err
}

func (f *fakeFlows) SubmitContact(_ context.Context, c model.Client, v url.Values) (model.Result, error) {
	return f.submit(c, v)
}
func (f *fakeFlows) SubmitBookDemo(_ context.Context, c model.Client, v url.Values) (model.Result, error) {
	return f.submit(c, v)
}
func (f *fakeFlows) SubmitWaitlist(_ context.Context, c model.Client, v url.Values) (model.Result, error) {
	return f.submit(c, v)
}
func (f *fakeFlows) SubscribeNewsletter(_ context.Context, c model.Client, v url.Values) (model.Result, error) {
	return f.submit(c, v)
}
func (f *fakeFlows) RequestLeadMagnet(_ context.Context, c model.Client, v url.Values) (model.Result, error) {
	return f.submit(c, v)
}
func (f *fakeFlows) ConfirmNewsletter(_ context.Context, token string) (model.Result, error) {
	f.token = token
	return f.res, f.err
}
func (f *fakeFlows) RedeemLeadMagnet(_ context.Context, token string) (model.Result, error) {
	f.token = token
	return f.res, f.err
}

type fakeAdmin struct {
	loginErr  error
	gotIP     string
	leads     []model.Lead
	gotLimit  int
	gotSource string
}

var _ Admin = (*fakeAdmin)(nil)

func (a *fakeAdmin) Login(_ context.Context, user, pass, ip string) (model.Tokens, error) {
	a.gotIP = ip
	if a.loginErr != nil {
		return model.Tokens{}, a.loginErr
	}
	if user != "ops" || pass != "pw" {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: "good-token", ExpiresAt: time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)}, nil
}

func (a *fakeAdmin) ParseToken(raw string) (string, error) {
	if raw != "good-token" {
		return "", errs.ErrUnauthorized
	}
	return "ops", nil
}

func (a *fakeAdmin) ListLeads(_ context.Context, source string, limit int) ([]model.Lead, error) {
	a.gotSource, a.gotLimit = source, limit
	return a.leads, nil
}

type fakeDB struct{ err error }

func (d fakeDB) Ping(context.Context) error { return d.err }

func newTestServer(flows *fakeFlows, admin Admin, db Pinger) http.Handler {
	return New(Deps{
		Leads:      flows,
		Admin:      admin,
		DB:         db,
		RetryAfter: time.Minute,
	}).Handler()
}

func postForm(h http.Handler, path string, v url.Values, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, val := range hdr {
		req.Header.Set(k, val)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) model.Result {
	t.Helper()
	var res model.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	trusted := proxyTrust{netip.MustParsePrefix("192.0.2.0/24"), netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		proxies proxyTrust
		hdr     map[string]string
		want    string
	}{
		{"untrusted peer ignores forwarded", nil, map[string]string{"X-Forwarded-For": "198.51.100.7"}, "192.0.2.1"},
		{"untrusted peer ignores real ip", nil, map[string]string{"X-Real-IP": "198.51.100.8", "CF-Connecting-IP": "198.51.100.9"}, "192.0.2.1"},
		{"forwarded last untrusted hop", trusted, map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.7 , 10.0.0.1"}, "198.51.100.7"},
		{"forwarded all trusted", trusted, map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.1"}, "10.1.1.1"},
		{"forwarded garbage", trusted, map[string]string{"X-Forwarded-For": "bogus", "X-Real-IP": "198.51.100.8"}, "198.51.100.8"},
		{"real ip", trusted, map[string]string{"X-Real-IP": "198.51.100.8"}, "198.51.100.8"},
		{"cloudflare", trusted, map[string]string{"CF-Connecting-IP": "198.51.100.9"}, "198.51.100.9"},
		{"precedence", trusted, map[string]string{"X-Real-IP": "2.2.2.2", "X-Forwarded-For": "1.1.1.1"}, "1.1.1.1"},
		{"remote addr", trusted, nil, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.hdr {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.proxies.clientIP(req))
		})
	}
}

// limitedFlows admits contact submissions through a real limiter keyed by client identity.
type limitedFlows struct {
	fakeFlows
	lim limiter.Limiter
}

func (f *limitedFlows) SubmitContact(ctx context.Context, c model.Client, v url.Values) (model.Result, error) {
	ok, err := f.lim.Allow(ctx, limiter.Key(limiter.ActionContact, c.IP, c.UserAgent))
	if err != nil {
		return model.Result{}, err
	}
	if !ok {
		return model.Result{}, errs.ErrRateLimited
	}
	return model.Result{OK: true}, nil
}

func TestRateLimit_RotatingForwardedForDoesNotEvade(t *testing.T) {
	t.Parallel()

	flows := &limitedFlows{lim: limiter.NewMemory(5, time.Minute)}
	h := New(Deps{Leads: flows, RetryAfter: time.Minute}).Handler()

	var codes []int
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("email=a%40b.co"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.RemoteAddr = "198.51.100.7:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{200, 200, 200, 200, 200, 429, 429, 429}, codes)
}

func TestRateLimit_TrustedProxyForwardsIdentity(t *testing.T) {
	t.Parallel()

	flows := &limitedFlows{lim: limiter.NewMemory(1, time.Minute)}
	h := New(Deps{
		Leads:          flows,
		RetryAfter:     time.Minute,
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	}).Handler()

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("email=a%40b.co"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", xff)
		req.RemoteAddr = "10.0.0.2:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, send("203.0.113.1"))
	require.Equal(t, http.StatusOK, send("203.0.113.2"))
	require.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
	// a spoofed leftmost hop is not the identity; the proxy-appended one is
	require.Equal(t, http.StatusTooManyRequests, send("6.6.6.6, 203.0.113.2"))
}

func TestSubmit_OK(t *testing.T) {
	t.Parallel()

	flows := &fakeFlows{res: model.Result{OK: true, Message: "Thanks!"}}
	h := New(Deps{Leads: flows, TrustedProxies: []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}}).Handler()

	for _, path := range []string{"/api/contact", "/api/book-demo", "/api/waitlist", "/api/newsletter", "/api/lead-magnet"} {
		rec := postForm(h, path, url.Values{"email": {"a@b.co"}}, map[string]string{
			"X-Forwarded-For": "203.0.113.5",
			"User-Agent":      "ua-test",
			"Referer":         "https://google.com/",
		})
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, model.Result{OK: true, Message: "Thanks!"}, decodeResult(t, rec))
		require.Equal(t, "a@b.co", flows.form.Get("email"))
		require.Equal(t, model.Client{IP: "203.0.113.5", UserAgent: "ua-test", Referrer: "https://google.com/"}, flows.client)
	}
}

func TestSubmit_Multipart(t *testing.T) {
	t.Parallel()

	flows := &fakeFlows{res: model.Result{OK: true}}
	h := newTestServer(flows, nil, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("email", "m@example.com"))
	require.NoError(t, mw.WriteField("consent", "on"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/newsletter", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "m@example.com", flows.form.Get("email"))
	require.Equal(t, "on", flows.form.Get("consent"))
}

func TestSubmit_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{&errs.ValidationError{Message: "Please enter a valid email address."}, http.StatusBadRequest, "Please enter a valid email address."},
		{errs.ErrHoneypot, http.StatusBadRequest, errs.MsgInvalidRequest},
		{errs.ErrVerificationFailed, http.StatusForbidden, errs.MsgVerification},
		{errs.ErrRateLimited, http.StatusTooManyRequests, errs.MsgRateLimited},
		{errs.ErrEmailNotConfigured, http.StatusServiceUnavailable, errs.MsgEmailNotConfig},
		{errs.Public("Failed to send. Please try again.", errs.ErrEmailFailed), http.StatusBadGateway, "Failed to send. Please try again."},
		{errors.New("pq: password authentication failed for user leadgate"), http.StatusInternalServerError, errs.MsgGeneric},
	}
	for _, tt := range tests {
		flows := &fakeFlows{err: tt.err}
		rec := postForm(newTestServer(flows, nil, nil), "/api/contact", url.Values{}, nil)
		require.Equal(t, tt.status, rec.Code, tt.err.Error())
		res := decodeResult(t, rec)
		require.False(t, res.OK)
		require.Equal(t, tt.message, res.Message)
		require.NotContains(t, rec.Body.String(), "leadgate")
		if tt.status == http.StatusTooManyRequests {
			require.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
}

func TestSubmit_BodyLimit(t *testing.T) {
	t.Parallel()

	flows := &fakeFlows{}
	rec := postForm(newTestServer(flows, nil, nil), "/api/contact",
		url.Values{"message": {strings.Repeat("x", MaxBodyBytes+1)}}, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, errs.MsgInvalidRequest, decodeResult(t, rec).Message)
	require.Nil(t, flows.form)
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(&fakeFlows{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contact", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()

	rec := postForm(newTestServer(&fakeFlows{panic: true}, nil, nil), "/api/contact", url.Values{}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, errs.MsgGeneric, decodeResult(t, rec).Message)
}

func TestRedeemJSON(t *testing.T) {
	t.Parallel()

	flows := &fakeFlows{res: model.Result{OK: true, Message: "Download ready.", DownloadPath: "/resources/x.pdf"}}
	h := newTestServer(flows, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/resources/download?token=a%2Bb", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a+b", flows.token)
	require.JSONEq(t, `{"ok":true,"message":"Download ready.","downloadPath":"/resources/x.pdf"}`, rec.Body.String())

	flows.err = errs.ErrInvalidLink
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/newsletter/confirm", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"ok":false,"message":"Invalid or expired link."}`, rec.Body.String())
}

func TestPages(t *testing.T) {
	t.Parallel()

	get := func(h http.Handler, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	flows := &fakeFlows{res: model.Result{OK: true, Message: "You're subscribed. We'll be in touch."}}
	h := New(Deps{Leads: flows, GAMeasurementID: "G-TEST123"}).Handler()

	rec := get(h, "/newsletter/confirm?token=t1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "t1", flows.token)
	body := rec.Body.String()
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, body, "You&#39;re subscribed")
	require.Contains(t, body, `<meta name="robots" content="noindex">`)
	require.Contains(t, body, "googletagmanager.com/gtag/js?id=G-TEST123")

	flows.err = errs.ErrInvalidLink
	rec = get(h, "/newsletter/confirm")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Link invalid or expired")
	require.Contains(t, rec.Body.String(), "Invalid or expired link.")

	flows.err = nil
	flows.res = model.Result{OK: true, Message: "Download ready.", DownloadPath: "/resources/soc2-audit-trail-checklist.pdf"}
	rec = get(h, "/resources/download?token=t2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `href="/resources/soc2-audit-trail-checklist.pdf" download`)
	require.NotContains(t, rec.Body.String(), "noindex")

	noGA := New(Deps{Leads: flows}).Handler()
	require.NotContains(t, get(noGA, "/resources/download?token=t2").Body.String(), "gtag")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(&fakeFlows{}, nil, fakeDB{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	newTestServer(&fakeFlows{}, nil, fakeDB{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(&fakeFlows{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Contains(t, string(body), "go_goroutines")
}

func TestAdmin_DisabledIs404(t *testing.T) {
	t.Parallel()

	rec := postForm(newTestServer(&fakeFlows{}, nil, nil), "/api/admin/login", url.Values{"username": {"ops"}, "password": {"pw"}}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_LoginAndList(t *testing.T) {
	t.Parallel()

	hash := "deadbeef"
	admin := &fakeAdmin{leads: []model.Lead{{
		ID:        uuid.Must(uuid.NewV4()),
		Email:     "a@example.com",
		Source:    model.SourceNewsletter,
		TokenHash: &hash,
	}}}
	h := newTestServer(&fakeFlows{}, admin, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"username":"ops","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", "198.51.100.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"access_token":"good-token","token_type":"Bearer","expires_at":"2026-01-01T00:15:00Z"}`, rec.Body.String())
	require.Equal(t, "192.0.2.1", admin.gotIP, "header from an untrusted peer must not pick the lockout key")

	rec = postForm(h, "/api/admin/login", url.Values{"username": {"ops"}, "password": {"nope"}}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, errs.MsgBadCredentials, decodeResult(t, rec).Message)

	admin.loginErr = errs.ErrRateLimited
	rec = postForm(h, "/api/admin/login", url.Values{"username": {"ops"}, "password": {"pw"}}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	// a lockout reports its own remaining time, rounded up
	admin.loginErr = &errs.RetryError{After: 14*time.Minute + 59500*time.Millisecond, Err: errs.ErrRateLimited}
	rec = postForm(h, "/api/admin/login", url.Values{"username": {"ops"}, "password": {"pw"}}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "900", rec.Header().Get("Retry-After"))
	require.Equal(t, errs.MsgRateLimited, decodeResult(t, rec).Message)

	list := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/leads?source=newsletter&limit=5", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusUnauthorized, list("").Code)
	require.Equal(t, http.StatusUnauthorized, list("Bearer forged").Code)

	rec = list("Bearer good-token")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "newsletter", admin.gotSource)
	require.Equal(t, 5, admin.gotLimit)
	require.NotContains(t, rec.Body.String(), "deadbeef")

	var out LeadList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Leads, 1)
	require.Equal(t, "a@example.com", out.Leads[0].Email)
	require.Equal(t, []string{}, out.Leads[0].Tags)
}
