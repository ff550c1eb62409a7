// Package auth contains the federated authentication core: the orchestrator
// that sequences provider exchange, account resolution, authority
// aggregation and token issuance for a login attempt.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloway-app/authsvc/internal/metrics"
	"github.com/veloway-app/authsvc/internal/oauth"
	"github.com/veloway-app/authsvc/internal/oauth/retry"
	"github.com/veloway-app/authsvc/internal/observability/logger"
	"github.com/veloway-app/authsvc/internal/security/password"
	"github.com/veloway-app/authsvc/internal/store/core"
	"github.com/veloway-app/authsvc/internal/token"
)

// Service errors. Provider-layer failures are translated into
// ErrAuthenticationFailed so callers see a uniform contract; the one error
// never translated is ErrEmailNotVerified (resolver.go), whose message the
// client UX needs verbatim.
var (
	ErrProviderUnknown     = errors.New("unknown provider")
	ErrProviderUnavailable = errors.New("provider unavailable")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrInvalidToken         = errors.New("invalid token")
)

// Session is the response of a successful authentication.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
}

// Deps contains dependencies for the auth service.
type Deps struct {
	Providers   *oauth.Registry
	Repo        core.Repository
	Tokens      *token.Service
	Metrics     metrics.Recorder
	RetryPolicy retry.Policy
}

// Service orquesta el login federado completo; la lógica de cada paso
// vive en los colaboradores.
type Service struct {
	providers   *oauth.Registry
	repo        core.Repository
	accounts    *AccountResolver
	authorities *AuthorityResolver
	tokens      *token.Service
	metrics     metrics.Recorder
	retryPolicy retry.Policy
}

// NewService crea el servicio de autenticación.
func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	if d.RetryPolicy.MaxAttempts == 0 {
		d.RetryPolicy = retry.DefaultPolicy()
	}
	return &Service{
		providers:   d.Providers,
		repo:        d.Repo,
		accounts:    NewAccountResolver(d.Repo),
		authorities: NewAuthorityResolver(d.Repo),
		tokens:      d.Tokens,
		metrics:     d.Metrics,
		retryPolicy: d.RetryPolicy,
	}
}

// AuthenticateWithProvider ejecuta el flujo de login federado:
// adapter (con retry) → resolución de cuenta → authorities → tokens.
func (s *Service) AuthenticateWithProvider(ctx context.Context, providerName, code, redirectURI string) (*Session, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Provider(providerName),
	)
	s.metrics.LoginAttempt(providerName)

	provider, ok := s.providers.Get(providerName)
	if !ok {
		s.metrics.LoginFailure(providerName, "unknown_provider")
		return nil, ErrProviderUnknown
	}

	identity, err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) (*oauth.Identity, error) {
		return provider.ExchangeCode(ctx, code, redirectURI)
	})
	if err != nil {
		kind := oauth.KindOf(err)
		cause := string(kind)
		if cause == "" {
			cause = "exchange"
		}
		s.metrics.LoginFailure(providerName, cause)
		log.Warn("provider exchange failed", logger.String("cause", cause), logger.Err(err))
		if kind == oauth.KindNetwork {
			// Retries agotados contra el proveedor: esto es una caída
			// upstream, no un rechazo de credenciales.
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, providerName)
		}
		return nil, fmt.Errorf("%w: failed to authenticate with %s", ErrAuthenticationFailed, providerName)
	}

	resolution, err := s.accounts.Resolve(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrEmailNotVerified) {
			s.metrics.LoginFailure(providerName, "email_not_verified")
			return nil, err
		}
		s.metrics.LoginFailure(providerName, "store")
		return nil, err
	}
	account := resolution.Account
	if !account.IsActive || account.IsDeleted {
		s.metrics.LoginFailure(providerName, "account_disabled")
		return nil, ErrAccountDisabled
	}

	session, err := s.issueSession(ctx, account)
	if err != nil {
		s.metrics.LoginFailure(providerName, "token")
		return nil, err
	}

	s.metrics.LoginSuccess(providerName)
	switch resolution.Outcome {
	case OutcomeLinked:
		s.metrics.AutoLink(providerName)
	case OutcomeCreated:
		s.metrics.Registration(providerName)
	}

	log.Info("login ok",
		logger.AccountID(account.ID),
		logger.Subject(account.UserName),
		logger.Outcome(string(resolution.Outcome)),
	)
	return session, nil
}

// LoginWithPassword autentica una cuenta local por email + password.
func (s *Service) LoginWithPassword(ctx context.Context, email, plain string) (*Session, error) {
	const providerLabel = "password"
	s.metrics.LoginAttempt(providerLabel)

	account, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.metrics.LoginFailure(providerLabel, "credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.PasswordHash == nil || !password.Verify(plain, *account.PasswordHash) {
		s.metrics.LoginFailure(providerLabel, "credentials")
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive || account.IsDeleted {
		s.metrics.LoginFailure(providerLabel, "account_disabled")
		return nil, ErrAccountDisabled
	}

	session, err := s.issueSession(ctx, account)
	if err != nil {
		s.metrics.LoginFailure(providerLabel, "token")
		return nil, err
	}
	s.metrics.LoginSuccess(providerLabel)
	return session, nil
}

// Refresh valida el refresh token y emite un access token nuevo con las
// authorities actuales de la cuenta (los roles pueden haber cambiado desde
// la emisión). El refresh token presentado no se rota: sigue válido hasta
// su expiración natural.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Decode(refreshToken)
	if err != nil || claims.Kind != token.KindRefresh {
		return nil, ErrInvalidRefreshToken
	}
	if !s.tokens.Validate(ctx, refreshToken, claims.Subject) {
		return nil, ErrInvalidRefreshToken
	}

	account, err := s.repo.GetAccountByUserName(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !account.IsActive || account.IsDeleted {
		return nil, ErrAccountDisabled
	}

	authorities, err := s.authorities.Resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(account.UserName, authorities)
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(token.KindAccess)

	return &Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// Logout revoca los tokens presentados. Best-effort sobre tokens ya
// vencidos; un token malformado sí es error.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, t := range []string{accessToken, refreshToken} {
		if t == "" {
			continue
		}
		revoked, err := s.tokens.Revoke(ctx, t)
		if err != nil {
			return ErrInvalidToken
		}
		if revoked {
			s.metrics.TokenRevoked()
		}
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, account *core.Account) (*Session, error) {
	authorities, err := s.authorities.Resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(account.UserName, authorities)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(account.UserName)
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(token.KindAccess)
	s.metrics.TokenIssued(token.KindRefresh)

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}
