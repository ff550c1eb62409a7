package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veloway-app/authsvc/internal/oauth"
	"github.com/veloway-app/authsvc/internal/observability/logger"
	"github.com/veloway-app/authsvc/internal/store/core"
)

// Outcome discrimina las ramas de la resolución de cuenta. El orquestador
// decide métricas por outcome, sin usar errores como control de flujo.
type Outcome string

const (
	// OutcomeExisting: returning federated user, exact provider match.
	OutcomeExisting Outcome = "existing"
	// OutcomeLinked: identidad externa adjuntada a una cuenta preexistente.
	OutcomeLinked Outcome = "linked"
	// OutcomeCreated: primera vez, cuenta nueva.
	OutcomeCreated Outcome = "created"
)

// Resolution es el resultado de resolver una Identity contra el store.
type Resolution struct {
	Account *core.Account
	Outcome Outcome
}

// ErrEmailNotVerified: el proveedor no verificó el email y existe una cuenta
// con ese email. Vincular aquí dejaría que cualquiera que *diga* poseer un
// email (sin probar recepción) tome la cuenta. Límite de seguridad
// deliberado: no debilitarlo aunque bloquee direcciones honestas sin
// verificar; esos usuarios deben verificar su email antes del OAuth.
var ErrEmailNotVerified = errors.New("email not verified for linking")

const maxUserNameAttempts = 50

// AccountResolver aplica la política de auto-linking: (1) match exacto por
// par proveedor, (2) auto-link por email verificado, (3) alta de cuenta
// nueva. Idéntica para todos los proveedores.
type AccountResolver struct {
	repo core.Repository
}

// NewAccountResolver crea el resolver sobre el repositorio dado.
func NewAccountResolver(repo core.Repository) *AccountResolver {
	return &AccountResolver{repo: repo}
}

// Resolve encuentra o crea la cuenta local para una identidad verificada.
func (r *AccountResolver) Resolve(ctx context.Context, identity *oauth.Identity) (*Resolution, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.resolver"))

	// 1) Returning federated user.
	account, err := r.repo.GetAccountByProvider(ctx, identity.Provider, identity.SubjectID)
	if err == nil {
		return &Resolution{Account: account, Outcome: OutcomeExisting}, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	// 2) Auto-link por email.
	account, err = r.repo.GetAccountByEmail(ctx, identity.Email)
	if err == nil {
		if !identity.EmailVerified {
			log.Warn("auto-link refused: email not verified",
				logger.Provider(identity.Provider),
				logger.AccountID(account.ID),
			)
			return nil, ErrEmailNotVerified
		}
		return r.link(ctx, account, identity)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	// 3) Cuenta nueva.
	return r.create(ctx, identity)
}

// link adjunta el par proveedor a la cuenta. Si otra request ganó la carrera
// por el mismo par, el conflicto se resuelve como lookup.
func (r *AccountResolver) link(ctx context.Context, account *core.Account, identity *oauth.Identity) (*Resolution, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.resolver"))

	err := r.repo.LinkProvider(ctx, account.ID, identity.Provider, identity.SubjectID)
	if errors.Is(err, core.ErrConflict) {
		winner, lookupErr := r.repo.GetAccountByProvider(ctx, identity.Provider, identity.SubjectID)
		if lookupErr != nil {
			return nil, err
		}
		return &Resolution{Account: winner, Outcome: OutcomeExisting}, nil
	}
	if err != nil {
		return nil, err
	}

	account.ProviderID = &identity.Provider
	account.ProviderUserID = &identity.SubjectID

	log.Info("external identity auto-linked",
		logger.Provider(identity.Provider),
		logger.AccountID(account.ID),
	)
	return &Resolution{Account: account, Outcome: OutcomeLinked}, nil
}

// create da de alta una cuenta con username derivado del email y el rol por
// defecto. Inserta y reintenta ante colisión de username (sufijo numérico
// determinístico); ante carrera por email o par proveedor, re-resuelve como
// lookup.
func (r *AccountResolver) create(ctx context.Context, identity *oauth.Identity) (*Resolution, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.resolver"))

	base := userNameBase(identity)
	for attempt := 0; attempt < maxUserNameAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s%d", base, attempt)
		}

		account := &core.Account{
			UserName:        candidate,
			Email:           identity.Email,
			ProviderID:      &identity.Provider,
			ProviderUserID:  &identity.SubjectID,
			IsEmailVerified: identity.EmailVerified,
			IsActive:        true,
		}
		err := r.repo.CreateAccount(ctx, account, core.DefaultRoleName)
		if err == nil {
			log.Info("account registered via oauth",
				logger.Provider(identity.Provider),
				logger.AccountID(account.ID),
			)
			return &Resolution{Account: account, Outcome: OutcomeCreated}, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return nil, err
		}

		// Perdimos una carrera: ¿otro login simultáneo creó la cuenta?
		if winner, lookupErr := r.repo.GetAccountByProvider(ctx, identity.Provider, identity.SubjectID); lookupErr == nil {
			return &Resolution{Account: winner, Outcome: OutcomeExisting}, nil
		}
		if existing, lookupErr := r.repo.GetAccountByEmail(ctx, identity.Email); lookupErr == nil {
			if !identity.EmailVerified {
				return nil, ErrEmailNotVerified
			}
			return r.link(ctx, existing, identity)
		}
		// Username collision: next suffix.
	}
	return nil, fmt.Errorf("resolver: could not allocate username for %q", base)
}

// userNameBase deriva el username del local part del email, o del nombre si
// no hay email utilizable. Las direcciones private-relay se tratan igual que
// cualquier otra.
func userNameBase(identity *oauth.Identity) string {
	candidate := identity.Email
	if at := strings.IndexByte(candidate, '@'); at > 0 {
		candidate = candidate[:at]
	}
	if s := slugify(candidate); s != "" {
		return s
	}
	if s := slugify(identity.Name); s != "" {
		return s
	}
	return "user"
}

func slugify(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '-' || c == '_':
			// separators dropped
		}
	}
	return b.String()
}
