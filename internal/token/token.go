// Package token emite y valida los session tokens del servicio: JWTs HS256
// autocontenidos (sub, iat, exp, jti, typ) firmados con el secret del
// proceso. No se persiste nada por token salvo la revocación (blacklist).
package token

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. Refresh tokens carry no authorities: their only job is to
// prove a recent successful authentication.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// ErrInvalidToken covers every decode failure: malformed, bad signature,
// wrong algorithm, wrong kind. Callers never see the parser internals.
var ErrInvalidToken = errors.New("token: invalid token")

// Claims son los claims embebidos en cada token emitido.
type Claims struct {
	Kind        string   `json:"typ"`
	Authorities []string `json:"authorities,omitempty"`
	jwtv5.RegisteredClaims
}

// Config del servicio de tokens.
type Config struct {
	Issuer     string
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service emite, valida y revoca tokens. Validación fail-closed: cualquier
// error de parseo o firma es "inválido", nunca un panic ni un error crudo.
type Service struct {
	cfg       Config
	blacklist Blacklist

	// now es inyectable para tests de expiración.
	now func() time.Time
}

// NewService crea el servicio de tokens.
func NewService(cfg Config, bl Blacklist) *Service {
	return &Service{cfg: cfg, blacklist: bl, now: time.Now}
}

// AccessTTL expone el TTL de los access tokens (para "expires_in").
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// IssueAccess emite un access token con las authorities del subject.
func (s *Service) IssueAccess(subject string, authorities []string) (string, error) {
	return s.issue(subject, KindAccess, authorities, s.cfg.AccessTTL)
}

// IssueRefresh emite un refresh token sin authorities.
func (s *Service) IssueRefresh(subject string) (string, error) {
	return s.issue(subject, KindRefresh, nil, s.cfg.RefreshTTL)
}

func (s *Service) issue(subject, kind string, authorities []string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Kind:        kind,
		Authorities: authorities,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return tk.SignedString(s.cfg.Secret)
}

// Validate verifica firma → expiración → subject → revocación. Las cuatro
// deben pasar. Cualquier token malformado retorna false, jamás propaga.
func (s *Service) Validate(ctx context.Context, tokenStr, expectedSubject string) bool {
	claims, err := s.parse(tokenStr, true)
	if err != nil {
		return false
	}
	if claims.Subject != expectedSubject {
		return false
	}
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil || revoked {
		return false
	}
	return true
}

// Decode valida firma y expiración y retorna los claims. ErrInvalidToken en
// cualquier falla; no consulta la blacklist.
func (s *Service) Decode(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr, true)
}

// DecodeExpired valida solo la firma; acepta tokens vencidos. Para helpers
// de introspección (extraer subject/expiración de un token viejo).
func (s *Service) DecodeExpired(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr, false)
}

// ExtractSubject decodifica el subject. ErrInvalidToken si está malformado.
func (s *Service) ExtractSubject(tokenStr string) (string, error) {
	claims, err := s.parse(tokenStr, false)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiration decodifica la expiración. ErrInvalidToken si está malformado.
func (s *Service) ExtractExpiration(tokenStr string) (time.Time, error) {
	claims, err := s.parse(tokenStr, false)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

// Revoke agrega el token a la blacklist por lo que le quede de vida y
// reporta si la entrada se escribió. Un token ya vencido no necesita
// entrada: revocar algo vencido es un no-op (false, nil), no un error.
func (s *Service) Revoke(ctx context.Context, tokenStr string) (bool, error) {
	claims, err := s.parse(tokenStr, false)
	if err != nil {
		return false, err
	}
	if claims.ExpiresAt == nil {
		return false, ErrInvalidToken
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return false, nil
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, remaining); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) parse(tokenStr string, validateClaims bool) (*Claims, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithTimeFunc(s.now),
	}
	if !validateClaims {
		opts = append(opts, jwtv5.WithoutClaimsValidation())
	}

	var claims Claims
	tok, err := jwtv5.ParseWithClaims(tokenStr, &claims,
		func(t *jwtv5.Token) (any, error) { return s.cfg.Secret, nil },
		opts...,
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
