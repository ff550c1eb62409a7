// Package memory implements core.Repository in-process.
// Útil para desarrollo y testing; enforcea las mismas restricciones de
// unicidad que el esquema de Postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veloway-app/authsvc/internal/store/core"
)

type Repository struct {
	mu sync.RWMutex

	nextID      int64
	accounts    map[int64]*core.Account
	roles       map[string]core.GlobalRole // upper(name) -> role
	nextRoleID  int64
	accountRole map[int64][]int64 // accountID -> roleIDs
	memberships map[int64][]core.CompanyMembership
}

var _ core.Repository = (*Repository)(nil)

// New crea el repositorio con los roles por defecto ya sembrados.
func New() *Repository {
	r := &Repository{
		accounts:    make(map[int64]*core.Account),
		roles:       make(map[string]core.GlobalRole),
		accountRole: make(map[int64][]int64),
		memberships: make(map[int64][]core.CompanyMembership),
	}
	r.SeedRole(core.DefaultRoleName)
	return r
}

func (r *Repository) Ping(ctx context.Context) error { return nil }

// SeedRole registra un rol global si no existe y lo retorna.
func (r *Repository) SeedRole(name string) core.GlobalRole {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToUpper(name)
	if role, ok := r.roles[key]; ok {
		return role
	}
	r.nextRoleID++
	role := core.GlobalRole{ID: r.nextRoleID, Name: name}
	r.roles[key] = role
	return role
}

func (r *Repository) GetAccountByProvider(ctx context.Context, providerID, providerUserID string) (*core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.IsDeleted || !a.Linked() {
			continue
		}
		if *a.ProviderID == providerID && *a.ProviderUserID == providerUserID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if !a.IsDeleted && strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *Repository) GetAccountByUserName(ctx context.Context, userName string) (*core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if !a.IsDeleted && a.UserName == userName {
			cp := *a
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *Repository) CreateAccount(ctx context.Context, a *core.Account, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.IsDeleted {
			continue
		}
		if strings.EqualFold(existing.Email, a.Email) || existing.UserName == a.UserName {
			return core.ErrConflict
		}
		if existing.Linked() && a.ProviderID != nil && a.ProviderUserID != nil &&
			*existing.ProviderID == *a.ProviderID && *existing.ProviderUserID == *a.ProviderUserID {
			return core.ErrConflict
		}
	}

	var roleID int64
	if roleName != "" {
		role, ok := r.roles[strings.ToUpper(roleName)]
		if !ok {
			return core.ErrNotFound
		}
		roleID = role.ID
	}

	r.nextID++
	a.ID = r.nextID
	a.ExternalID = uuid.NewString()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	cp := *a
	r.accounts[a.ID] = &cp
	if roleID != 0 {
		r.accountRole[a.ID] = append(r.accountRole[a.ID], roleID)
	}
	return nil
}

func (r *Repository) LinkProvider(ctx context.Context, accountID int64, providerID, providerUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.accounts {
		if id == accountID || existing.IsDeleted || !existing.Linked() {
			continue
		}
		if *existing.ProviderID == providerID && *existing.ProviderUserID == providerUserID {
			return core.ErrConflict
		}
	}

	a, ok := r.accounts[accountID]
	if !ok || a.IsDeleted {
		return core.ErrNotFound
	}
	a.ProviderID = &providerID
	a.ProviderUserID = &providerUserID
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// AssignRole agrega un rol global a una cuenta. Helper de seed/tests.
func (r *Repository) AssignRole(accountID int64, roleName string) {
	role := r.SeedRole(roleName)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountRole[accountID] = append(r.accountRole[accountID], role.ID)
}

// ClearRoles elimina los roles globales de una cuenta. Helper de tests.
func (r *Repository) ClearRoles(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accountRole, accountID)
}

// AddMembership agrega una membresía de compañía. Helper de seed/tests.
func (r *Repository) AddMembership(m core.CompanyMembership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[m.AccountID] = append(r.memberships[m.AccountID], m)
}

func (r *Repository) GetGlobalRoles(ctx context.Context, accountID int64) ([]core.GlobalRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.GlobalRole
	for _, roleID := range r.accountRole[accountID] {
		for _, role := range r.roles {
			if role.ID == roleID {
				out = append(out, role)
			}
		}
	}
	return out, nil
}

func (r *Repository) GetCompanyMemberships(ctx context.Context, accountID int64) ([]core.CompanyMembership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.CompanyMembership(nil), r.memberships[accountID]...), nil
}
