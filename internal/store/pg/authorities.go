package pg

import (
	"context"

	"github.com/veloway-app/authsvc/internal/store/core"
)

func (r *Repository) GetGlobalRoles(ctx context.Context, accountID int64) ([]core.GlobalRole, error) {
	const query = `
		SELECT gr.id, gr.name
		FROM global_role gr
		JOIN account_role ar ON ar.role_id = gr.id
		WHERE ar.account_id = $1
		ORDER BY gr.name`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []core.GlobalRole
	for rows.Next() {
		var gr core.GlobalRole
		if err := rows.Scan(&gr.ID, &gr.Name); err != nil {
			return nil, err
		}
		roles = append(roles, gr)
	}
	return roles, rows.Err()
}

// SeedCompany crea una compañía con su primer miembro. Herramienta de
// seed/dev, no forma parte del flujo de login.
func (r *Repository) SeedCompany(ctx context.Context, name string, accountID int64, role string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var companyID int64
	const qCompany = `INSERT INTO company (name) VALUES ($1) RETURNING id`
	if err := tx.QueryRow(ctx, qCompany, name).Scan(&companyID); err != nil {
		return 0, err
	}
	const qMember = `INSERT INTO company_membership (account_id, company_id, role) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, qMember, accountID, companyID, role); err != nil {
		return 0, err
	}
	return companyID, tx.Commit(ctx)
}

func (r *Repository) GetCompanyMemberships(ctx context.Context, accountID int64) ([]core.CompanyMembership, error) {
	const query = `
		SELECT account_id, company_id, role
		FROM company_membership
		WHERE account_id = $1
		ORDER BY company_id`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ms []core.CompanyMembership
	for rows.Next() {
		var m core.CompanyMembership
		if err := rows.Scan(&m.AccountID, &m.CompanyID, &m.Role); err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, rows.Err()
}
