package pg

import (
	"context"
	"database/sql"
	"errors"

	"kassenwerk.org/internal/ids"
	"kassenwerk.org/internal/org"
)

var _ org.Store = (*Store)(nil)

func (s *Store) Bootstrap(ctx context.Context, o *org.Organization, creator *org.User, reservesName string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into organizations (id, name, domain, created_by_user)
		values ($1, $2, $3, $4)
	`, o.ID, o.Name, nullStr(o.Domain), o.CreatedByUser); err != nil {
		if isUniqueViolation(err) {
			return "", org.ErrConflict
		}
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, organization_id, email, password_hash, role)
		values ($1, $2, $3, $4, $5)
	`, creator.ID, o.ID, creator.Email, creator.PasswordHash, creator.Role); err != nil {
		if isUniqueViolation(err) {
			return "", org.ErrConflict
		}
		return "", err
	}
	reservesID := ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into projects (id, organization_id, name, is_reserves)
		values ($1, $2, $3, true)
	`, reservesID, o.ID, reservesName); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return reservesID, nil
}

func (s *Store) FindOrganization(ctx context.Context, id string) (*org.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, domain, created_by_user, created_at, updated_at
		from organizations where id = $1
	`, id)
	return scanOrganization(row)
}

func (s *Store) FindOrganizationByDomain(ctx context.Context, domain string) (*org.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, domain, created_by_user, created_at, updated_at
		from organizations where domain = $1
	`, domain)
	return scanOrganization(row)
}

func scanOrganization(row *sql.Row) (*org.Organization, error) {
	var (
		o      org.Organization
		domain sql.NullString
	)
	if err := row.Scan(&o.ID, &o.Name, &domain, &o.CreatedByUser, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, org.ErrNotFound
		}
		return nil, err
	}
	o.Domain = fromNull(domain)
	return &o, nil
}

func (s *Store) CreateUser(ctx context.Context, u *org.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, organization_id, email, password_hash, role, iban, bic, account_holder)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Role,
		nullStr(u.Bank.IBAN), nullStr(u.Bank.BIC), nullStr(u.Bank.AccountHolder))
	if isUniqueViolation(err) {
		return org.ErrConflict
	}
	return err
}

const userColumns = `id, organization_id, email, password_hash, role, iban, bic, account_holder, created_at, updated_at`

func (s *Store) FindUser(ctx context.Context, id string) (*org.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*org.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*org.User, error) {
	var (
		u                  org.User
		iban, bic, holder  sql.NullString
	)
	if err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Role,
		&iban, &bic, &holder, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, org.ErrNotFound
		}
		return nil, err
	}
	u.Bank = org.BankDetails{IBAN: fromNull(iban), BIC: fromNull(bic), AccountHolder: fromNull(holder)}
	return &u, nil
}

func (s *Store) ListUsersByOrg(ctx context.Context, orgID string) ([]*org.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users where organization_id = $1 order by email
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*org.User
	for rows.Next() {
		var (
			u                 org.User
			iban, bic, holder sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Role,
			&iban, &bic, &holder, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Bank = org.BankDetails{IBAN: fromNull(iban), BIC: fromNull(bic), AccountHolder: fromNull(holder)}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, userID string, role org.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update users set role = $2, updated_at = now() where id = $1
	`, userID, role)
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, org.ErrNotFound)
}

func (s *Store) UpdateUserBank(ctx context.Context, userID string, bank org.BankDetails) error {
	res, err := s.db.ExecContext(ctx, `
		update users set iban = $2, bic = $3, account_holder = $4, updated_at = now() where id = $1
	`, userID, nullStr(bank.IBAN), nullStr(bank.BIC), nullStr(bank.AccountHolder))
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, org.ErrNotFound)
}

func noRowsAsNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
