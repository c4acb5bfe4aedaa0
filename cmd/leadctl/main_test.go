package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/and161185/leadgate/internal/crypto"
	httpserver "github.com/and161185/leadgate/internal/server/http"
	"github.com/and161185/leadgate/internal/service"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("LEADGATE_SERVER", "")
	return filepath.Join(dir, "leadgate")
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)
	const srv = "http://localhost:3000"

	if _, err := loadToken(srv); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken(tokenFile{Server: srv, AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken(srv)
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	if _, err := loadToken("https://other.example"); err == nil {
		t.Fatalf("want error for token saved against another server")
	}

	fi, err := os.Stat(tokenPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode = %v, want 0600", fi.Mode().Perm())
	}

	if err := saveToken(tokenFile{Server: srv, AccessToken: "tok2", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(srv); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "leadctl dev (unknown)\n", out)
}

func TestHashPassword(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		out, err := execute(t, "", "hash-password", "--password", "s3cret")
		require.NoError(t, err)
		ok, err := pkgcrypto.VerifyEncodedPassword("s3cret", strings.TrimSpace(out))
		require.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("stdin", func(t *testing.T) {
		out, err := execute(t, "from-stdin\n", "hash-password")
		require.NoError(t, err)
		ok, err := pkgcrypto.VerifyEncodedPassword("from-stdin", strings.TrimSpace(out))
		require.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("empty stdin", func(t *testing.T) {
		_, err := execute(t, "", "hash-password")
		assert.Error(t, err)
	})
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ADMIN_JWT_KEY", "")
	t.Setenv("ADMIN_USERNAME", "")

	out, err := execute(t, "", "token", "--key", "k3y", "--subject", "ops", "--ttl", "5m")
	require.NoError(t, err)

	svc := service.NewAdminService(service.AdminConfig{SignKey: []byte("k3y")}, nil, nil)
	sub, err := svc.ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)

	_, err = execute(t, "", "token", "--subject", "ops")
	assert.ErrorContains(t, err, "signing key")
}

// fakeAdminAPI serves the two admin routes the CLI uses.
func fakeAdminAPI(t *testing.T, exp time.Time) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["username"] != "ops" || in["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"message":"bad credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123", "token_type": "Bearer", "expires_at": exp,
		})
	})
	mux.HandleFunc("GET /api/admin/leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"message":"no auth"}`))
			return
		}
		assert.Equal(t, "newsletter", r.URL.Query().Get("source"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(httpserver.LeadList{Leads: []httpserver.LeadView{
			{Email: "a@example.com", Source: "newsletter", Tags: []string{"newsletter"}, Confirmed: true, CreatedAt: exp},
			{Email: "b@example.com", Source: "newsletter", Tags: []string{}, CreatedAt: exp},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginThenLeads(t *testing.T) {
	_ = withTmpConfig(t)
	exp := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	srv := fakeAdminAPI(t, exp)

	_, err := execute(t, "", "--server", srv.URL, "login", "-u", "ops", "-p", "wrong")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "bad credentials", apiErr.Message)

	out, err := execute(t, "pw\n", "--server", srv.URL, "login", "-u", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in")

	tok, err := loadToken(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	out, err = execute(t, "", "--server", srv.URL, "leads", "--source", "newsletter", "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "CREATED"))
	assert.Contains(t, lines[1], "a@example.com")
	assert.Contains(t, lines[1], "true")

	out, err = execute(t, "", "--server", srv.URL, "leads", "--source", "newsletter", "--limit", "2", "-o", "json")
	require.NoError(t, err)
	var got []httpserver.LeadView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 2)
}

func TestLeads_BadTokenAndFormat(t *testing.T) {
	_ = withTmpConfig(t)
	srv := fakeAdminAPI(t, time.Now().Add(time.Minute))

	_, err := execute(t, "", "--server", srv.URL, "leads")
	assert.ErrorContains(t, err, "login")

	_, err = execute(t, "", "--server", srv.URL, "leads", "--token", "nope")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "no auth", apiErr.Message)

	assert.Error(t, printLeads(&bytes.Buffer{}, nil, "yaml"))
}

func TestServerFromEnv(t *testing.T) {
	_ = withTmpConfig(t)
	srv := fakeAdminAPI(t, time.Now().Add(time.Minute))
	t.Setenv("LEADGATE_SERVER", srv.URL)

	_, err := execute(t, "", "login", "-u", "ops", "-p", "pw")
	require.NoError(t, err)
	_, err = loadToken(srv.URL)
	assert.NoError(t, err)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	for _, sub := range []string{"up", "status"} {
		_, err := execute(t, "", "migrate", sub)
		assert.ErrorContains(t, err, "DSN", sub)
	}
}
