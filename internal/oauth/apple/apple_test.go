package apple

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/veloway-app/authsvc/internal/oauth"
)

func testPrivateKeyPEM(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), key
}

func TestClientSecret_SignedES256WithAppleClaims(t *testing.T) {
	pemStr, key := testPrivateKeyPEM(t)
	p, err := New(Config{
		ClientID:      "app.veloway.signin",
		TeamID:        "TEAM123456",
		KeyID:         "KEYID12345",
		PrivateKeyPEM: pemStr,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	secret, err := p.ClientSecret(now)
	require.NoError(t, err)

	tok, err := jwtv5.Parse(secret,
		func(tk *jwtv5.Token) (any, error) { return &key.PublicKey, nil },
		jwtv5.WithValidMethods([]string{"ES256"}),
	)
	require.NoError(t, err)
	require.True(t, tok.Valid)
	require.Equal(t, "KEYID12345", tok.Header["kid"])

	claims := tok.Claims.(jwtv5.MapClaims)
	require.Equal(t, "TEAM123456", claims["iss"])
	require.Equal(t, "https://appleid.apple.com", claims["aud"])
	require.Equal(t, "app.veloway.signin", claims["sub"])

	exp := int64(claims["exp"].(float64))
	require.Equal(t, now.Add(5*time.Minute).Unix(), exp)
}

func TestClientSecret_NoKeyConfigured(t *testing.T) {
	p, err := New(Config{ClientID: "x"})
	require.NoError(t, err)
	_, err = p.ClientSecret(time.Now())
	require.Error(t, err)
}

func TestNew_RejectsGarbageKey(t *testing.T) {
	_, err := New(Config{PrivateKeyPEM: "not pem at all"})
	require.Error(t, err)
}

func TestNew_ParsesSEC1Key(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	p, err := New(Config{PrivateKeyPEM: pemStr, TeamID: "T", KeyID: "K", ClientID: "C"})
	require.NoError(t, err)
	_, err = p.ClientSecret(time.Now())
	require.NoError(t, err)
}

func appleIdentityToken(claims jwtv5.MapClaims) string {
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = "https://appleid.apple.com"
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	// Sin clave de Apple real: el test usa InsecureSkipVerify, la firma es
	// irrelevante.
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	s, _ := tok.SignedString([]byte("irrelevant"))
	return s
}

func newAppleServer(t *testing.T, status int, idToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		require.NotEmpty(t, r.Form.Get("client_secret"))
		if status != 0 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": idToken})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	pemStr, _ := testPrivateKeyPEM(t)
	p, err := New(Config{
		ClientID:           "app.veloway.signin",
		TeamID:             "TEAM123456",
		KeyID:              "KEYID12345",
		PrivateKeyPEM:      pemStr,
		TokenEndpoint:      srv.URL,
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	return p
}

func TestExchangeCode_HappyPath(t *testing.T) {
	idToken := appleIdentityToken(jwtv5.MapClaims{
		"aud":            "app.veloway.signin",
		"sub":            "001234.abcdef",
		"email":          "relay@privaterelay.appleid.com",
		"email_verified": "true",
	})
	srv := newAppleServer(t, 0, idToken)
	p := newTestProvider(t, srv)

	identity, err := p.ExchangeCode(context.Background(), "code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "apple", identity.Provider)
	require.Equal(t, "001234.abcdef", identity.SubjectID)
	// Private relay se trata como un email común.
	require.Equal(t, "relay@privaterelay.appleid.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Empty(t, identity.Name)
}

func TestExchangeCode_RejectedCode(t *testing.T) {
	srv := newAppleServer(t, http.StatusBadRequest, "")
	p := newTestProvider(t, srv)

	_, err := p.ExchangeCode(context.Background(), "bad", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindRejectedCode, oauth.KindOf(err))
}

func TestExchangeCode_ServerErrorIsNetwork(t *testing.T) {
	srv := newAppleServer(t, http.StatusServiceUnavailable, "")
	p := newTestProvider(t, srv)

	_, err := p.ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindNetwork, oauth.KindOf(err))
}

func TestExchangeCode_WrongAudience(t *testing.T) {
	idToken := appleIdentityToken(jwtv5.MapClaims{"aud": "otra.app", "sub": "001"})
	srv := newAppleServer(t, 0, idToken)
	p := newTestProvider(t, srv)

	_, err := p.ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindInvalidAssertion, oauth.KindOf(err))
}

func TestExchangeCode_WrongIssuer(t *testing.T) {
	idToken := appleIdentityToken(jwtv5.MapClaims{
		"iss": "https://evil.example.com",
		"aud": "app.veloway.signin",
		"sub": "001",
	})
	srv := newAppleServer(t, 0, idToken)
	p := newTestProvider(t, srv)

	_, err := p.ExchangeCode(context.Background(), "code", "uri")
	require.Error(t, err)
	require.Equal(t, oauth.KindInvalidAssertion, oauth.KindOf(err))
}
