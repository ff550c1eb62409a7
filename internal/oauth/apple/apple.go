// Package apple implements the oauth.Provider contract for Sign in with
// Apple. Unlike Google, the client secret is not static: Apple requires a
// short-lived ES256 JWT signed with the developer's P-256 key, generated
// fresh for every token-exchange call. User info comes from the ID token;
// private-relay addresses are treated as ordinary emails.
package apple

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/veloway-app/authsvc/internal/oauth"
)

const (
	Name = "apple"

	defaultTokenEndpoint = "https://appleid.apple.com/auth/token"
	defaultJWKSURL       = "https://appleid.apple.com/auth/keys"
	appleIssuer          = "https://appleid.apple.com"

	clientSecretTTL = 5 * time.Minute
)

// Config configura el adapter de Apple.
type Config struct {
	ClientID      string // Services ID; "aud" del ID token
	TeamID        string
	KeyID         string
	PrivateKeyPEM string // P-256 key descargada del developer portal

	// TokenEndpoint/JWKSURL override the Apple endpoints. Tests only.
	TokenEndpoint string
	JWKSURL       string
	// InsecureSkipVerify salta la verificación de firma del ID token.
	// Solo para tests, jamás en producción.
	InsecureSkipVerify bool
}

// Provider is the Apple adapter.
type Provider struct {
	cfg  Config
	key  *ecdsa.PrivateKey
	http *http.Client

	mu     sync.RWMutex
	jwks   *jwks
	jwksAt time.Time
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

var _ oauth.Provider = (*Provider)(nil)

// New crea el adapter de Apple. Falla si la clave privada no parsea.
func New(cfg Config) (*Provider, error) {
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = defaultTokenEndpoint
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = defaultJWKSURL
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKeyPEM != "" {
		var err error
		key, err = parseECPrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("apple: private key: %w", err)
		}
	}

	return &Provider{
		cfg:  cfg,
		key:  key,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *Provider) Name() string { return Name }

// ClientSecret genera el client secret JWT (ES256) para una llamada.
func (a *Provider) ClientSecret(now time.Time) (string, error) {
	if a.key == nil {
		return "", errors.New("apple: no private key configured")
	}
	claims := jwtv5.MapClaims{
		"iss": a.cfg.TeamID,
		"iat": now.Unix(),
		"exp": now.Add(clientSecretTTL).Unix(),
		"aud": appleIssuer,
		"sub": a.cfg.ClientID,
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = a.cfg.KeyID
	return tk.SignedString(a.key)
}

// ExchangeCode canjea el authorization code y verifica el ID token.
func (a *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Identity, error) {
	secret, err := a.ClientSecret(time.Now().UTC())
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindInvalidAssertion, err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", secret)
	form.Set("redirect_uri", redirectURI)

	req, _ := http.NewRequestWithContext(ctx, "POST", a.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		err := fmt.Errorf("token http %d: %s", resp.StatusCode, body.Error)
		if resp.StatusCode >= 500 {
			return nil, oauth.NewError(Name, oauth.KindNetwork, err)
		}
		return nil, oauth.NewError(Name, oauth.KindRejectedCode, err)
	}

	var tr struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, oauth.NewError(Name, oauth.KindNetwork, err)
	}
	if tr.IDToken == "" {
		return nil, oauth.NewError(Name, oauth.KindInvalidAssertion, errors.New("missing id_token"))
	}

	identity, err := a.verifyIDToken(ctx, tr.IDToken)
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindInvalidAssertion, err)
	}
	return identity, nil
}

func (a *Provider) verifyIDToken(ctx context.Context, idToken string) (*oauth.Identity, error) {
	var claims jwtv5.MapClaims

	if a.cfg.InsecureSkipVerify {
		parser := jwtv5.NewParser()
		tok, _, err := parser.ParseUnverified(idToken, jwtv5.MapClaims{})
		if err != nil {
			return nil, err
		}
		claims = tok.Claims.(jwtv5.MapClaims)
	} else {
		var header struct {
			Alg string `json:"alg"`
			Kid string `json:"kid"`
		}
		parts := strings.Split(idToken, ".")
		if len(parts) != 3 {
			return nil, errors.New("bad jwt format")
		}
		hb, err := base64.RawURLEncoding.DecodeString(parts[0])
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(hb, &header); err != nil {
			return nil, err
		}
		if header.Alg != "RS256" {
			return nil, fmt.Errorf("unexpected alg: %s", header.Alg)
		}

		key, err := a.rsaKeyForKid(ctx, header.Kid)
		if err != nil {
			return nil, err
		}
		tok, err := jwtv5.Parse(idToken,
			func(t *jwtv5.Token) (any, error) { return key, nil },
			jwtv5.WithValidMethods([]string{"RS256"}),
		)
		if err != nil || !tok.Valid {
			return nil, errors.New("invalid id_token")
		}
		claims = tok.Claims.(jwtv5.MapClaims)
	}

	if iss, _ := claims["iss"].(string); iss != appleIssuer {
		return nil, fmt.Errorf("bad iss: %s", iss)
	}
	if aud, _ := claims["aud"].(string); aud != a.cfg.ClientID {
		return nil, errors.New("bad aud")
	}
	if expf, ok := claims["exp"].(float64); !ok || time.Unix(int64(expf), 0).Before(time.Now().Add(-30*time.Second)) {
		return nil, errors.New("token expired")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("missing sub")
	}

	// Apple no incluye el nombre en el ID token (solo lo envía una vez en el
	// form post del primer login), por eso queda vacío acá.
	return &oauth.Identity{
		Provider:      Name,
		SubjectID:     sub,
		Email:         strClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
	}, nil
}

func (a *Provider) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.RLock()
	j := a.jwks
	age := time.Since(a.jwksAt)
	a.mu.RUnlock()

	if j == nil || age > time.Hour {
		req, _ := http.NewRequestWithContext(ctx, "GET", a.cfg.JWKSURL, nil)
		resp, err := a.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
		}
		var jj jwks
		if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.jwks = &jj
		a.jwksAt = time.Now()
		a.mu.Unlock()
		j = &jj
	}

	for _, k := range j.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nb, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eb, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			e := 65537
			if len(eb) > 0 {
				e = 0
				for _, b := range eb {
					e = (e << 8) | int(b)
				}
			}
			return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
		}
	}
	return nil, errors.New("kid not found")
}

func parseECPrivateKey(pemStr string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if ec, ok := k.(*ecdsa.PrivateKey); ok {
			return ec, nil
		}
		return nil, errors.New("not an EC key")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

// boolClaim tolera email_verified como bool o string ("true"), que es como
// lo manda Apple. Ausente cuenta como false.
func boolClaim(m jwtv5.MapClaims, k string) bool {
	switch v := m[k].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
