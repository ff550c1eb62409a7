package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/veloway-app/authsvc/internal/oauth"
)

// fakeGoogle levanta discovery + token + jwks en un httptest.Server y firma
// ID tokens RS256 con una clave propia.
type fakeGoogle struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	tokenStatus int            // respuesta del token endpoint (0 = 200)
	tokenBody   map[string]any // body alternativo de error
	claims      jwtv5.MapClaims
}

const testKid = "test-key-1"

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeGoogle{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":         f.srv.URL,
			"token_endpoint": f.srv.URL + "/token",
			"jwks_uri":       f.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_ = json.NewEncoder(w).Encode(f.tokenBody)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": f.signIDToken(t)})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		pub := &f.key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) signIDToken(t *testing.T) string {
	t.Helper()
	claims := f.claims
	if claims == nil {
		claims = jwtv5.MapClaims{}
	}
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = f.srv.URL
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = testKid
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *fakeGoogle) provider() *Provider {
	return New(Config{
		ClientID:     "client-1",
		ClientSecret: "secret",
		DiscoveryURL: f.srv.URL + "/.well-known/openid-configuration",
	})
}

func TestExchangeCode_HappyPath(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{
		"aud":            "client-1",
		"sub":            "g-123",
		"email":          "abc@example.com",
		"email_verified": true,
		"name":           "Ana Bel",
	}

	identity, err := f.provider().ExchangeCode(context.Background(), "code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "google", identity.Provider)
	require.Equal(t, "g-123", identity.SubjectID)
	require.Equal(t, "abc@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "Ana Bel", identity.Name)
}

func TestExchangeCode_EmailVerifiedAsString(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{
		"aud":            "client-1",
		"sub":            "g-123",
		"email":          "abc@example.com",
		"email_verified": "true",
	}

	identity, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.NoError(t, err)
	require.True(t, identity.EmailVerified)
}

func TestExchangeCode_MissingEmailVerifiedIsFalse(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{"aud": "client-1", "sub": "g-123", "email": "abc@example.com"}

	identity, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.NoError(t, err)
	require.False(t, identity.EmailVerified)
}

func TestExchangeCode_RejectedCodeIs4xx(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = map[string]any{"error": "invalid_grant"}

	_, err := f.provider().ExchangeCode(context.Background(), "bad", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindRejectedCode, oauth.KindOf(err))
	require.False(t, oauth.Retryable(err))
}

func TestExchangeCode_ServerErrorIsNetwork(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenStatus = http.StatusBadGateway

	_, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindNetwork, oauth.KindOf(err))
	require.True(t, oauth.Retryable(err))
}

func TestExchangeCode_BadAudience(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{"aud": "otro-cliente", "sub": "g-123"}

	_, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindInvalidAssertion, oauth.KindOf(err))
}

func TestExchangeCode_ExpiredIDToken(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{
		"aud": "client-1",
		"sub": "g-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}

	_, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindInvalidAssertion, oauth.KindOf(err))
}

func TestExchangeCode_AudienceAsList(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{
		"aud": []string{"otro", "client-1"},
		"sub": "g-123",
	}

	identity, err := f.provider().ExchangeCode(context.Background(), "code", "uri")
	require.NoError(t, err)
	require.Equal(t, "g-123", identity.SubjectID)
}

// Logins concurrentes comparten el cache de JWKS del adapter; un refresh
// por cache vencido no debe pisar lecturas en curso.
func TestExchangeCode_ConcurrentJWKSRefresh(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims = jwtv5.MapClaims{
		"iss":            f.srv.URL,
		"aud":            "client-1",
		"sub":            "g-123",
		"email":          "abc@example.com",
		"email_verified": true,
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	p := f.provider()

	_, err := p.ExchangeCode(context.Background(), "code", "uri")
	require.NoError(t, err)

	// Vence el cache para que todos los logins disputen el refresh.
	p.mu.Lock()
	p.jwksAt = time.Now().Add(-2 * time.Hour)
	p.mu.Unlock()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ExchangeCode(context.Background(), "code", "uri")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
