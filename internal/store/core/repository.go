package core

import "context"

// Repository is the persistence boundary of the auth core. Uniqueness races
// between concurrent first logins are resolved here: Create/Link return
// ErrConflict on a unique violation and the caller retries as a lookup.
type Repository interface {
	Ping(ctx context.Context) error

	// Accounts
	GetAccountByProvider(ctx context.Context, providerID, providerUserID string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByUserName(ctx context.Context, userName string) (*Account, error)
	// CreateAccount persists a new account and assigns the given global role
	// atomically. Fills ID/ExternalID/CreatedAt on success.
	CreateAccount(ctx context.Context, a *Account, roleName string) error
	// LinkProvider sets the provider pair on an existing unlinked account.
	LinkProvider(ctx context.Context, accountID int64, providerID, providerUserID string) error

	// Authorities
	GetGlobalRoles(ctx context.Context, accountID int64) ([]GlobalRole, error)
	GetCompanyMemberships(ctx context.Context, accountID int64) ([]CompanyMembership, error)
}
