package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veloway-app/authsvc/internal/store/core"
)

// FallbackAuthority is the single claim every account without roles and
// memberships receives. Never emitted next to real roles.
const FallbackAuthority = "ROLE_USER"

// AuthorityResolver agrega roles globales y membresías de compañía en un set
// plano de claims de autorización.
type AuthorityResolver struct {
	repo core.Repository
}

// NewAuthorityResolver crea el resolver sobre el repositorio dado.
func NewAuthorityResolver(repo core.Repository) *AuthorityResolver {
	return &AuthorityResolver{repo: repo}
}

// Resolve retorna el set de authorities de la cuenta, ordenado. Cada rol
// global emite ROLE_<NAME>; cada membresía emite COMPANY_<ROLE>_<companyID>,
// distinguible de las globales y portando la compañía para autorización
// company-specific. Upper-case siempre; la comparación de nombres es
// case-insensitive en el lookup.
func (r *AuthorityResolver) Resolve(ctx context.Context, account *core.Account) ([]string, error) {
	roles, err := r.repo.GetGlobalRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	memberships, err := r.repo.GetCompanyMemberships(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(roles)+len(memberships))
	for _, role := range roles {
		set["ROLE_"+strings.ToUpper(role.Name)] = struct{}{}
	}
	for _, m := range memberships {
		set[fmt.Sprintf("COMPANY_%s_%d", strings.ToUpper(m.Role), m.CompanyID)] = struct{}{}
	}
	if len(set) == 0 {
		return []string{FallbackAuthority}, nil
	}

	out := make([]string, 0, len(set))
	for claim := range set {
		out = append(out, claim)
	}
	sort.Strings(out)
	return out, nil
}
