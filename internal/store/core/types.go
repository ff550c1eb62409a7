package core

import "time"

// Account is the local user record. ExternalID is the public-facing opaque
// identifier; ID never leaves the service.
//
// ProviderID/ProviderUserID are both nil for password-only accounts and both
// set for federated ones; the pair is unique. At most one non-deleted account
// exists per email. Accounts are soft-deleted, never removed.
type Account struct {
	ID              int64
	ExternalID      string // uuid
	UserName        string
	Email           string
	ProviderID      *string // "google" | "apple"
	ProviderUserID  *string // provider subject id, stable per user per provider
	PasswordHash    *string
	IsEmailVerified bool
	IsActive        bool
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Linked reporta si la cuenta tiene una identidad federada asociada.
func (a *Account) Linked() bool {
	return a.ProviderID != nil && a.ProviderUserID != nil
}

// GlobalRole is a platform-wide role (CUSTOMER, ADMIN, B2B, ...).
// Names are case-insensitive unique.
type GlobalRole struct {
	ID   int64
	Name string
}

// DefaultRoleName is assigned to every account created by a first OAuth login.
const DefaultRoleName = "CUSTOMER"

// Company is a fleet operator on the platform.
type Company struct {
	ID   int64
	Name string
}

// Company-scoped roles.
const (
	CompanyRoleOwner = "OWNER"
	CompanyRoleStaff = "STAFF"
)

// CompanyMembership links an account to a company with a company-scoped role.
type CompanyMembership struct {
	AccountID int64
	CompanyID int64
	Role      string // CompanyRoleOwner | CompanyRoleStaff
}
