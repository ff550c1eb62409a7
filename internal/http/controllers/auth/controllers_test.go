package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/veloway-app/authsvc/internal/cache"
	authctrl "github.com/veloway-app/authsvc/internal/http/controllers/auth"
	"github.com/veloway-app/authsvc/internal/http/router"
	svc "github.com/veloway-app/authsvc/internal/http/services/auth"
	"github.com/veloway-app/authsvc/internal/metrics"
	"github.com/veloway-app/authsvc/internal/oauth"
	"github.com/veloway-app/authsvc/internal/oauth/retry"
	"github.com/veloway-app/authsvc/internal/rate"
	"github.com/veloway-app/authsvc/internal/security/password"
	"github.com/veloway-app/authsvc/internal/store/core"
	"github.com/veloway-app/authsvc/internal/store/memory"
	"github.com/veloway-app/authsvc/internal/token"
)

type stubProvider struct {
	identity *oauth.Identity
	err      error
}

func (p *stubProvider) Name() string { return "google" }
func (p *stubProvider) ExchangeCode(context.Context, string, string) (*oauth.Identity, error) {
	return p.identity, p.err
}

type sessionBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type testEnv struct {
	srv  *httptest.Server
	repo *memory.Repository
}

func newEnv(t *testing.T, provider oauth.Provider, limiter rate.Limiter) *testEnv {
	t.Helper()
	repo := memory.New()

	tokens := token.NewService(token.Config{
		Issuer:     "authsvc-test",
		Secret:     []byte("test-secret-at-least-32-bytes-long!!"),
		AccessTTL:  2 * time.Hour,
		RefreshTTL: 168 * time.Hour,
	}, token.NewBlacklist(cache.NewMemory("test:")))

	var providers []oauth.Provider
	if provider != nil {
		providers = append(providers, provider)
	}
	service := svc.NewService(svc.Deps{
		Providers:   oauth.NewRegistry(providers...),
		Repo:        repo,
		Tokens:      tokens,
		RetryPolicy: retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond},
	})

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	handler := router.New(router.Deps{
		Social:       authctrl.NewSocialController(service),
		Session:      authctrl.NewSessionController(service),
		Repo:         repo,
		Cache:        cache.NewMemory("test:"),
		LoginLimiter: limiter,
		Metrics:      reg,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, repo: repo}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSocialLogin_EndToEnd(t *testing.T) {
	env := newEnv(t, &stubProvider{identity: &oauth.Identity{
		Provider: "google", SubjectID: "g-123",
		Email: "abc@example.com", EmailVerified: true,
	}}, nil)

	resp := postJSON(t, env.srv.URL+"/v1/auth/social/google",
		map[string]string{"code": "authcode", "redirect_uri": "https://app/cb"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body sessionBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.AccessToken)
	require.NotEmpty(t, body.RefreshToken)
	require.Equal(t, "Bearer", body.TokenType)
	require.Equal(t, int64(7200), body.ExpiresIn)
}

func TestSocialLogin_UnknownProviderIs404(t *testing.T) {
	env := newEnv(t, nil, nil)
	resp := postJSON(t, env.srv.URL+"/v1/auth/social/facebook",
		map[string]string{"code": "x", "redirect_uri": "y"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSocialLogin_MissingCodeIs400(t *testing.T) {
	env := newEnv(t, &stubProvider{}, nil)
	resp := postJSON(t, env.srv.URL+"/v1/auth/social/google",
		map[string]string{"redirect_uri": "y"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocialLogin_UnverifiedEmailIs401WithDetail(t *testing.T) {
	env := newEnv(t, &stubProvider{identity: &oauth.Identity{
		Provider: "google", SubjectID: "g-123",
		Email: "abc@example.com", EmailVerified: false,
	}}, nil)

	existing := &core.Account{UserName: "abc", Email: "abc@example.com", IsActive: true}
	require.NoError(t, env.repo.CreateAccount(context.Background(), existing, core.DefaultRoleName))

	resp := postJSON(t, env.srv.URL+"/v1/auth/social/google",
		map[string]string{"code": "x", "redirect_uri": "y"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "unauthorized", body.Code)
	require.Equal(t, "email not verified for linking", body.Detail)
}

func TestSocialLogin_ProviderOutageIs502(t *testing.T) {
	env := newEnv(t, &stubProvider{
		err: oauth.NewError("google", oauth.KindNetwork, context.DeadlineExceeded),
	}, nil)

	resp := postJSON(t, env.srv.URL+"/v1/auth/social/google",
		map[string]string{"code": "x", "redirect_uri": "y"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPasswordLoginRefreshLogout_Flow(t *testing.T) {
	env := newEnv(t, nil, nil)
	ctx := context.Background()

	hash, err := password.Hash(password.Default, "s3creta!")
	require.NoError(t, err)
	account := &core.Account{
		UserName: "local", Email: "local@example.com",
		PasswordHash: &hash, IsActive: true,
	}
	require.NoError(t, env.repo.CreateAccount(ctx, account, core.DefaultRoleName))

	// Login
	resp := postJSON(t, env.srv.URL+"/v1/auth/login",
		map[string]string{"email": "local@example.com", "password": "s3creta!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session sessionBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	// Credenciales malas: mismo 401 genérico.
	resp = postJSON(t, env.srv.URL+"/v1/auth/login",
		map[string]string{"email": "local@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Refresh
	resp = postJSON(t, env.srv.URL+"/v1/auth/refresh",
		map[string]string{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed sessionBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refreshed))
	require.NotEmpty(t, refreshed.AccessToken)
	require.Equal(t, session.RefreshToken, refreshed.RefreshToken)

	// Logout
	resp = postJSON(t, env.srv.URL+"/v1/auth/logout", map[string]string{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// El refresh token revocado ya no sirve.
	resp = postJSON(t, env.srv.URL+"/v1/auth/refresh",
		map[string]string{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	limiter := rate.NewMemoryLimiter(2, time.Minute)
	env := newEnv(t, nil, limiter)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, env.srv.URL+"/v1/auth/login",
			map[string]string{"email": "a@b.com", "password": "x"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := postJSON(t, env.srv.URL+"/v1/auth/login",
		map[string]string{"email": "a@b.com", "password": "x"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newEnv(t, nil, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(env.srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}
