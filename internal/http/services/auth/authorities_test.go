package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veloway-app/authsvc/internal/store/core"
	"github.com/veloway-app/authsvc/internal/store/memory"
)

func TestAuthorities_FallbackWhenEmpty(t *testing.T) {
	repo := memory.New()
	r := NewAuthorityResolver(repo)
	ctx := context.Background()

	account := &core.Account{UserName: "solo", Email: "solo@example.com", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, account, ""))

	got, err := r.Resolve(ctx, account)
	require.NoError(t, err)
	require.Equal(t, []string{"ROLE_USER"}, got)
}

func TestAuthorities_RolesAndMemberships(t *testing.T) {
	repo := memory.New()
	r := NewAuthorityResolver(repo)
	ctx := context.Background()

	account := &core.Account{UserName: "dueno", Email: "dueno@example.com", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, account, ""))
	repo.AssignRole(account.ID, "Admin")
	repo.AssignRole(account.ID, "B2B")
	repo.AddMembership(core.CompanyMembership{AccountID: account.ID, CompanyID: 1, Role: "Owner"})

	got, err := r.Resolve(ctx, account)
	require.NoError(t, err)
	// Ordenado, upper-case, sin ROLE_USER.
	require.Equal(t, []string{"COMPANY_OWNER_1", "ROLE_ADMIN", "ROLE_B2B"}, got)
}

func TestAuthorities_NoFallbackNextToRealRoles(t *testing.T) {
	repo := memory.New()
	r := NewAuthorityResolver(repo)
	ctx := context.Background()

	account := &core.Account{UserName: "staff", Email: "staff@example.com", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, account, ""))
	repo.AddMembership(core.CompanyMembership{AccountID: account.ID, CompanyID: 7, Role: "Staff"})

	got, err := r.Resolve(ctx, account)
	require.NoError(t, err)
	require.Equal(t, []string{"COMPANY_STAFF_7"}, got)
	require.NotContains(t, got, "ROLE_USER")
}

func TestAuthorities_DuplicatesCollapse(t *testing.T) {
	repo := memory.New()
	r := NewAuthorityResolver(repo)
	ctx := context.Background()

	account := &core.Account{UserName: "dup", Email: "dup@example.com", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, account, ""))
	repo.AssignRole(account.ID, "ADMIN")
	repo.AssignRole(account.ID, "ADMIN")

	got, err := r.Resolve(ctx, account)
	require.NoError(t, err)
	require.Equal(t, []string{"ROLE_ADMIN"}, got)
}
