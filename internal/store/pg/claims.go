package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/org"
)

var _ claims.Store = (*Store)(nil)

const reimbursementColumns = `id, organization_id, project_id, user_id, kind, title, amount,
	bank_iban, bank_bic, bank_account_holder, status, rejection_note, travel, receipts,
	shared_token, signature_file_id, created_at, updated_at`

func (s *Store) CreateReimbursement(ctx context.Context, r *claims.Reimbursement) error {
	travel, err := marshalNullable(r.Travel)
	if err != nil {
		return err
	}
	receipts, err := json.Marshal(r.Receipts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into reimbursements (id, organization_id, project_id, user_id, kind, title,
			amount, bank_iban, bank_bic, bank_account_holder, status, rejection_note,
			travel, receipts, shared_token, signature_file_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, r.ID, r.OrganizationID, nullStr(r.ProjectID), nullStr(r.UserID), r.Kind, r.Title,
		r.Amount, r.Bank.IBAN, r.Bank.BIC, r.Bank.AccountHolder, r.Status, nullStr(r.RejectionNote),
		travel, receipts, nullStr(r.SharedToken), nullStr(r.SignatureFileID))
	if isUniqueViolation(err) {
		return claims.ErrInvalidInput
	}
	return err
}

func marshalNullable(t *claims.TravelDetails) (any, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func scanReimbursement(scan func(...any) error) (*claims.Reimbursement, error) {
	var (
		r claims.Reimbursement

		projectID, userID, rejectionNote, token, signature sql.NullString
		travel, receipts                                   []byte
	)
	if err := scan(&r.ID, &r.OrganizationID, &projectID, &userID, &r.Kind, &r.Title, &r.Amount,
		&r.Bank.IBAN, &r.Bank.BIC, &r.Bank.AccountHolder, &r.Status, &rejectionNote,
		&travel, &receipts, &token, &signature, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claims.ErrNotFound
		}
		return nil, err
	}
	r.ProjectID = fromNull(projectID)
	r.UserID = fromNull(userID)
	r.RejectionNote = fromNull(rejectionNote)
	r.SharedToken = fromNull(token)
	r.SignatureFileID = fromNull(signature)
	if len(travel) > 0 {
		r.Travel = &claims.TravelDetails{}
		if err := json.Unmarshal(travel, r.Travel); err != nil {
			return nil, err
		}
	}
	if len(receipts) > 0 {
		if err := json.Unmarshal(receipts, &r.Receipts); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func (s *Store) FindReimbursement(ctx context.Context, id string) (*claims.Reimbursement, error) {
	row := s.db.QueryRowContext(ctx, `select `+reimbursementColumns+` from reimbursements where id = $1`, id)
	return scanReimbursement(row.Scan)
}

func (s *Store) FindReimbursementByToken(ctx context.Context, token string) (*claims.Reimbursement, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+reimbursementColumns+` from reimbursements where shared_token = $1
	`, token)
	return scanReimbursement(row.Scan)
}

func (s *Store) ListReimbursementsByOrg(ctx context.Context, orgID string) ([]*claims.Reimbursement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+reimbursementColumns+` from reimbursements
		where organization_id = $1 order by created_at desc, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*claims.Reimbursement
	for rows.Next() {
		r, err := scanReimbursement(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SetReimbursementApproval(ctx context.Context, id string, status claims.Status, rejectionNote *string) error {
	var err error
	var res sql.Result
	if rejectionNote != nil {
		res, err = s.db.ExecContext(ctx, `
			update reimbursements set status = $2, rejection_note = $3, updated_at = now() where id = $1
		`, id, status, *rejectionNote)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update reimbursements set status = $2, updated_at = now() where id = $1
		`, id, status)
	}
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, claims.ErrNotFound)
}

// SubmitShared fills in an externally submitted claim. The amount = 0 guard in
// the update makes submission first-write-wins: a second submission matches no
// row and surfaces ErrAlreadySubmitted.
func (s *Store) SubmitShared(ctx context.Context, id string, amount int64, bank org.BankDetails, receipts []claims.Receipt, signatureFileID string) error {
	data, err := json.Marshal(receipts)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update reimbursements
		set amount = $2, bank_iban = $3, bank_bic = $4, bank_account_holder = $5,
			receipts = $6, signature_file_id = $7, updated_at = now()
		where id = $1 and amount = 0
	`, id, amount, bank.IBAN, bank.BIC, bank.AccountHolder, data, nullStr(signatureFileID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.FindReimbursement(ctx, id); err != nil {
			return err
		}
		return claims.ErrAlreadySubmitted
	}
	return nil
}

const allowanceColumns = `id, organization_id, project_id, user_id, year, amount,
	bank_iban, bank_bic, bank_account_holder, status, rejection_note,
	shared_token, signature_file_id, created_at, updated_at`

func (s *Store) CreateAllowance(ctx context.Context, a *claims.VolunteerAllowance) error {
	_, err := s.db.ExecContext(ctx, `
		insert into allowances (id, organization_id, project_id, user_id, year, amount,
			bank_iban, bank_bic, bank_account_holder, status, rejection_note,
			shared_token, signature_file_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.OrganizationID, nullStr(a.ProjectID), nullStr(a.UserID), a.Year, a.Amount,
		a.Bank.IBAN, a.Bank.BIC, a.Bank.AccountHolder, a.Status, nullStr(a.RejectionNote),
		nullStr(a.SharedToken), nullStr(a.SignatureFileID))
	if isUniqueViolation(err) {
		return claims.ErrInvalidInput
	}
	return err
}

func scanAllowance(scan func(...any) error) (*claims.VolunteerAllowance, error) {
	var (
		a claims.VolunteerAllowance

		projectID, userID, rejectionNote, token, signature sql.NullString
	)
	if err := scan(&a.ID, &a.OrganizationID, &projectID, &userID, &a.Year, &a.Amount,
		&a.Bank.IBAN, &a.Bank.BIC, &a.Bank.AccountHolder, &a.Status, &rejectionNote,
		&token, &signature, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claims.ErrNotFound
		}
		return nil, err
	}
	a.ProjectID = fromNull(projectID)
	a.UserID = fromNull(userID)
	a.RejectionNote = fromNull(rejectionNote)
	a.SharedToken = fromNull(token)
	a.SignatureFileID = fromNull(signature)
	return &a, nil
}

func (s *Store) FindAllowance(ctx context.Context, id string) (*claims.VolunteerAllowance, error) {
	row := s.db.QueryRowContext(ctx, `select `+allowanceColumns+` from allowances where id = $1`, id)
	return scanAllowance(row.Scan)
}

func (s *Store) FindAllowanceByToken(ctx context.Context, token string) (*claims.VolunteerAllowance, error) {
	row := s.db.QueryRowContext(ctx, `select `+allowanceColumns+` from allowances where shared_token = $1`, token)
	return scanAllowance(row.Scan)
}

func (s *Store) ListAllowancesByOrg(ctx context.Context, orgID string) ([]*claims.VolunteerAllowance, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+allowanceColumns+` from allowances
		where organization_id = $1 order by created_at desc, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*claims.VolunteerAllowance
	for rows.Next() {
		a, err := scanAllowance(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetAllowanceApproval(ctx context.Context, id string, status claims.Status, rejectionNote *string) error {
	var err error
	var res sql.Result
	if rejectionNote != nil {
		res, err = s.db.ExecContext(ctx, `
			update allowances set status = $2, rejection_note = $3, updated_at = now() where id = $1
		`, id, status, *rejectionNote)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update allowances set status = $2, updated_at = now() where id = $1
		`, id, status)
	}
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, claims.ErrNotFound)
}

func (s *Store) SubmitSharedAllowance(ctx context.Context, id string, amount int64, bank org.BankDetails, signatureFileID string) error {
	res, err := s.db.ExecContext(ctx, `
		update allowances
		set amount = $2, bank_iban = $3, bank_bic = $4, bank_account_holder = $5,
			signature_file_id = $6, updated_at = now()
		where id = $1 and amount = 0
	`, id, amount, bank.IBAN, bank.BIC, bank.AccountHolder, nullStr(signatureFileID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.FindAllowance(ctx, id); err != nil {
			return err
		}
		return claims.ErrAlreadySubmitted
	}
	return nil
}
