// Package google implements the oauth.Provider contract for Google OIDC.
// The identity assertion is the RS256 ID token returned by the token
// endpoint, verified against Google's published JWKS.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
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
	Name = "google"

	defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
)

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Config configura el adapter de Google.
type Config struct {
	ClientID     string
	ClientSecret string

	// DiscoveryURL overrides the well-known endpoint. Tests only.
	DiscoveryURL string
	// InsecureSkipVerify salta la verificación de firma del ID token.
	// Solo para tests, jamás en producción.
	InsecureSkipVerify bool
}

// Provider is the Google adapter. Caches the discovery document (24h) and the
// JWKS (1h, ETag revalidation) across logins.
type Provider struct {
	cfg Config

	http *http.Client

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time

	jwks     *jwks
	jwksAt   time.Time
	jwksETag string
}

var _ oauth.Provider = (*Provider)(nil)

// New crea el adapter de Google.
func New(cfg Config) *Provider {
	if cfg.DiscoveryURL == "" {
		cfg.DiscoveryURL = defaultDiscoveryURL
	}
	return &Provider{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Provider) Name() string { return Name }

// ExchangeCode canjea el authorization code y verifica el ID token.
func (g *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Identity, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindNetwork, err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.cfg.ClientID)
	form.Set("client_secret", g.cfg.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	req, _ := http.NewRequestWithContext(ctx, "POST", disc.TokenEndpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		err := fmt.Errorf("token http %d: %s %s", resp.StatusCode, body.Error, body.ErrorDescription)
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

	identity, err := g.verifyIDToken(ctx, disc, tr.IDToken)
	if err != nil {
		return nil, oauth.NewError(Name, oauth.KindInvalidAssertion, err)
	}
	return identity, nil
}

// verifyIDToken valida firma, iss, aud y exp, y extrae la Identity.
func (g *Provider) verifyIDToken(ctx context.Context, disc *discoveryDoc, idToken string) (*oauth.Identity, error) {
	var claims jwtv5.MapClaims

	if g.cfg.InsecureSkipVerify {
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

		key, err := g.rsaKeyForKid(ctx, disc, header.Kid)
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

	iss, _ := claims["iss"].(string)
	if iss != disc.Issuer && iss != "accounts.google.com" && iss != "https://accounts.google.com" {
		return nil, fmt.Errorf("bad iss: %s", iss)
	}
	if !audMatches(claims["aud"], g.cfg.ClientID) {
		return nil, errors.New("bad aud")
	}
	if expf, ok := claims["exp"].(float64); !ok || time.Unix(int64(expf), 0).Before(time.Now().Add(-30*time.Second)) {
		return nil, errors.New("token expired")
	}

	sub := strClaim(claims, "sub")
	if sub == "" {
		return nil, errors.New("missing sub")
	}

	return &oauth.Identity{
		Provider:      Name,
		SubjectID:     sub,
		Email:         strClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          strClaim(claims, "name"),
		GivenName:     strClaim(claims, "given_name"),
		FamilyName:    strClaim(claims, "family_name"),
	}, nil
}

func (g *Provider) discovery(ctx context.Context) (*discoveryDoc, error) {
	g.mu.RLock()
	disc := g.disc
	stale := time.Since(g.discAt) > 24*time.Hour
	g.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", g.cfg.DiscoveryURL, nil)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("discovery http %d", resp.StatusCode)
	}
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.disc = &dd
	g.discAt = time.Now()
	g.mu.Unlock()
	return &dd, nil
}

func (g *Provider) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	g.mu.RLock()
	j := g.jwks
	etag := g.jwksETag
	age := time.Since(g.jwksAt)
	g.mu.RUnlock()
	if j != nil && age < time.Hour {
		return j, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		g.mu.Lock()
		out := g.jwks
		g.jwksAt = time.Now()
		g.mu.Unlock()
		return out, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.jwks = &jj
	g.jwksAt = time.Now()
	g.jwksETag = resp.Header.Get("ETag")
	g.mu.Unlock()
	return &jj, nil
}

func (g *Provider) rsaKeyForKid(ctx context.Context, disc *discoveryDoc, kid string) (*rsa.PublicKey, error) {
	jwks, err := g.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range jwks.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			return parseRSAKey(k)
		}
	}
	return nil, errors.New("kid not found")
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
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

func audMatches(aud any, clientID string) bool {
	switch a := aud.(type) {
	case string:
		return a == clientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == clientID {
				return true
			}
		}
	}
	return false
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

// boolClaim tolera "email_verified" como bool o como string ("true").
// Ausente cuenta como false: sin prueba de verificación no hay auto-link.
func boolClaim(m jwtv5.MapClaims, k string) bool {
	switch v := m[k].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
