package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"kassenwerk.org/internal/finance"
)

var _ finance.Store = (*Store)(nil)

func (s *Store) CreateCategory(ctx context.Context, c *finance.Category) error {
	_, err := s.db.ExecContext(ctx, `
		insert into categories (id, organization_id, name, tax_sphere)
		values ($1, $2, $3, $4)
	`, c.ID, c.OrganizationID, c.Name, c.TaxSphere)
	if isUniqueViolation(err) {
		return finance.ErrConflict
	}
	return err
}

func (s *Store) FindCategory(ctx context.Context, id string) (*finance.Category, error) {
	var c finance.Category
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, tax_sphere, created_at, updated_at
		from categories where id = $1
	`, id).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.TaxSphere, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, finance.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, orgID string) ([]*finance.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, name, tax_sphere, created_at, updated_at
		from categories where organization_id = $1 order by name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*finance.Category
	for rows.Next() {
		var c finance.Category
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.TaxSphere, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) CreateDonor(ctx context.Context, d *finance.Donor) error {
	spheres, err := json.Marshal(d.AllowedTaxSpheres)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into donors (id, organization_id, name, donor_type, allowed_tax_spheres)
		values ($1, $2, $3, $4, $5)
	`, d.ID, d.OrganizationID, d.Name, d.Type, spheres)
	if isUniqueViolation(err) {
		return finance.ErrConflict
	}
	return err
}

func (s *Store) FindDonor(ctx context.Context, id string) (*finance.Donor, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, donor_type, allowed_tax_spheres, created_at, updated_at
		from donors where id = $1
	`, id)
	return scanDonor(row.Scan)
}

func scanDonor(scan func(...any) error) (*finance.Donor, error) {
	var (
		d       finance.Donor
		spheres []byte
	)
	if err := scan(&d.ID, &d.OrganizationID, &d.Name, &d.Type, &spheres, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, finance.ErrNotFound
		}
		return nil, err
	}
	if len(spheres) > 0 {
		if err := json.Unmarshal(spheres, &d.AllowedTaxSpheres); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *Store) ListDonors(ctx context.Context, orgID string) ([]*finance.Donor, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, name, donor_type, allowed_tax_spheres, created_at, updated_at
		from donors where organization_id = $1 order by name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*finance.Donor
	for rows.Next() {
		d, err := scanDonor(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const transactionColumns = `id, organization_id, project_id, category_id, donor_id, amount,
	description, status, matched_transaction_id, import_source, imported_transaction_id,
	split_from_transaction_id, archived, booked_at, created_at, updated_at`

func (s *Store) CreateTransaction(ctx context.Context, t *finance.Transaction) error {
	return insertTransaction(ctx, s.db, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, t *finance.Transaction) error {
	_, err := db.ExecContext(ctx, `
		insert into transactions (id, organization_id, project_id, category_id, donor_id,
			amount, description, status, matched_transaction_id, import_source,
			imported_transaction_id, split_from_transaction_id, archived, booked_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.OrganizationID, nullStr(t.ProjectID), nullStr(t.CategoryID), nullStr(t.DonorID),
		t.Amount, t.Description, t.Status, nullStr(t.MatchedID), nullStr(t.ImportSource),
		nullStr(t.ImportedTxID), nullStr(t.SplitFromID), t.Archived, t.BookedAt)
	if isUniqueViolation(err) {
		return finance.ErrConflict
	}
	return err
}

func scanTransaction(scan func(...any) error) (*finance.Transaction, error) {
	var t finance.Transaction
	var projectID, categoryID, donorID sql.NullString
	var matchedID, importSource, importedTxID, splitFromID sql.NullString
	if err := scan(&t.ID, &t.OrganizationID, &projectID, &categoryID, &donorID, &t.Amount,
		&t.Description, &t.Status, &matchedID, &importSource, &importedTxID,
		&splitFromID, &t.Archived, &t.BookedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, finance.ErrNotFound
		}
		return nil, err
	}
	t.ProjectID = fromNull(projectID)
	t.CategoryID = fromNull(categoryID)
	t.DonorID = fromNull(donorID)
	t.MatchedID = fromNull(matchedID)
	t.ImportSource = fromNull(importSource)
	t.ImportedTxID = fromNull(importedTxID)
	t.SplitFromID = fromNull(splitFromID)
	return &t, nil
}

func (s *Store) FindTransaction(ctx context.Context, id string) (*finance.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `select `+transactionColumns+` from transactions where id = $1`, id)
	return scanTransaction(row.Scan)
}

func (s *Store) FindTransactionByImportID(ctx context.Context, orgID, importedTxID string) (*finance.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+transactionColumns+` from transactions
		where organization_id = $1 and imported_transaction_id = $2
	`, orgID, importedTxID)
	return scanTransaction(row.Scan)
}

func (s *Store) ListTransactions(ctx context.Context, orgID string, includeArchived bool) ([]*finance.Transaction, error) {
	query := `select ` + transactionColumns + ` from transactions where organization_id = $1`
	if !includeArchived {
		query += ` and not archived`
	}
	query += ` order by booked_at desc, id`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*finance.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, id, matchedID string) error {
	res, err := s.db.ExecContext(ctx, `
		update transactions
		set status = 'processed', matched_transaction_id = $2, updated_at = now()
		where id = $1
	`, id, nullStr(matchedID))
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, finance.ErrNotFound)
}

// ApplySplit inserts the children and archives the parent in one transaction,
// so readers never see a split half applied.
func (s *Store) ApplySplit(ctx context.Context, parentID string, children []*finance.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range children {
		if err := insertTransaction(ctx, tx, c); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `
		update transactions set archived = true, updated_at = now() where id = $1
	`, parentID)
	if err != nil {
		return err
	}
	if err := noRowsAsNotFound(res, finance.ErrNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceBudgets(ctx context.Context, sourceTransactionID string, budgets []*finance.Budget) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		delete from budgets where source_transaction_id = $1
	`, sourceTransactionID); err != nil {
		return err
	}
	for _, b := range budgets {
		if _, err := tx.ExecContext(ctx, `
			insert into budgets (id, organization_id, source_transaction_id, project_id, amount)
			values ($1, $2, $3, $4, $5)
		`, b.ID, b.OrganizationID, b.SourceTransactionID, b.ProjectID, b.Amount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListBudgetsBySource(ctx context.Context, sourceTransactionID string) ([]*finance.Budget, error) {
	return s.listBudgets(ctx, `
		select id, organization_id, source_transaction_id, project_id, amount, created_at
		from budgets where source_transaction_id = $1 order by created_at, id
	`, sourceTransactionID)
}

func (s *Store) ListBudgetsByOrg(ctx context.Context, orgID string) ([]*finance.Budget, error) {
	return s.listBudgets(ctx, `
		select id, organization_id, source_transaction_id, project_id, amount, created_at
		from budgets where organization_id = $1 order by created_at, id
	`, orgID)
}

func (s *Store) listBudgets(ctx context.Context, query string, arg any) ([]*finance.Budget, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*finance.Budget
	for rows.Next() {
		var b finance.Budget
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.SourceTransactionID, &b.ProjectID,
			&b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// CreateDonationLink re-derives availability inside a serializable transaction
// so concurrent links cannot jointly overdraw the donation.
func (s *Store) CreateDonationLink(ctx context.Context, l *finance.DonationExpenseLink, donationAmount int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var linked int64
	if err := tx.QueryRowContext(ctx, `
		select coalesce(sum(amount), 0) from donation_expense_links
		where donation_transaction_id = $1
	`, l.DonationTransactionID).Scan(&linked); err != nil {
		return err
	}
	if linked+l.Amount > donationAmount {
		return finance.ErrDonationExceeded
	}
	if _, err := tx.ExecContext(ctx, `
		insert into donation_expense_links (id, donation_transaction_id, expense_transaction_id, amount)
		values ($1, $2, $3, $4)
	`, l.ID, l.DonationTransactionID, l.ExpenseTransactionID, l.Amount); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SumDonationLinks(ctx context.Context, donationTransactionID string) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(amount), 0) from donation_expense_links
		where donation_transaction_id = $1
	`, donationTransactionID).Scan(&sum)
	return sum, err
}

func (s *Store) ReservesProjectID(ctx context.Context, orgID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		select id from projects where organization_id = $1 and is_reserves
	`, orgID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", finance.ErrNotFound
	}
	return id, err
}
