package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veloway-app/authsvc/internal/store/core"
)

const accountColumns = `
	id, external_id, user_name, email, provider_id, provider_user_id,
	password_hash, is_email_verified, is_active, is_deleted, created_at, updated_at`

func scanAccount(row pgx.Row) (*core.Account, error) {
	var a core.Account
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.UserName, &a.Email, &a.ProviderID, &a.ProviderUserID,
		&a.PasswordHash, &a.IsEmailVerified, &a.IsActive, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAccountByProvider(ctx context.Context, providerID, providerUserID string) (*core.Account, error) {
	const query = `SELECT` + accountColumns + `
		FROM account
		WHERE provider_id = $1 AND provider_user_id = $2 AND NOT is_deleted`
	return scanAccount(r.pool.QueryRow(ctx, query, providerID, providerUserID))
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	const query = `SELECT` + accountColumns + `
		FROM account
		WHERE lower(email) = lower($1) AND NOT is_deleted`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *Repository) GetAccountByUserName(ctx context.Context, userName string) (*core.Account, error) {
	const query = `SELECT` + accountColumns + `
		FROM account
		WHERE user_name = $1 AND NOT is_deleted`
	return scanAccount(r.pool.QueryRow(ctx, query, userName))
}

// CreateAccount inserta cuenta + rol por defecto en una transacción.
// Unique violations (email, username, provider pair) surface as ErrConflict
// so the resolver can retry the race loser as a lookup.
func (r *Repository) CreateAccount(ctx context.Context, a *core.Account, roleName string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	a.ExternalID = uuid.NewString()

	const qInsert = `
		INSERT INTO account (external_id, user_name, email, provider_id, provider_user_id,
		                     password_hash, is_email_verified, is_active, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, qInsert,
		a.ExternalID, a.UserName, a.Email, a.ProviderID, a.ProviderUserID,
		a.PasswordHash, a.IsEmailVerified, a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapConflict(err)
	}

	if roleName != "" {
		const qRole = `
			INSERT INTO account_role (account_id, role_id)
			SELECT $1, id FROM global_role WHERE upper(name) = upper($2)`
		tag, err := tx.Exec(ctx, qRole, a.ID, roleName)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) LinkProvider(ctx context.Context, accountID int64, providerID, providerUserID string) error {
	const query = `
		UPDATE account
		SET provider_id = $2, provider_user_id = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, query, accountID, providerID, providerUserID)
	if err != nil {
		return mapConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// mapConflict traduce 23505 (unique_violation) a core.ErrConflict.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return core.ErrConflict
	}
	return err
}
