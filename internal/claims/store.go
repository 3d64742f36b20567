package claims

import (
	"context"

	"kassenwerk.org/internal/org"
)

// Store describes persistence required by the claims subsystem. SubmitShared
// implementations must apply amount, bank details, receipts and signature in
// one transaction and must fail with ErrAlreadySubmitted when the claim
// already carries a non-zero amount.
type Store interface {
	CreateReimbursement(ctx context.Context, r *Reimbursement) error
	FindReimbursement(ctx context.Context, id string) (*Reimbursement, error)
	FindReimbursementByToken(ctx context.Context, token string) (*Reimbursement, error)
	ListReimbursementsByOrg(ctx context.Context, orgID string) ([]*Reimbursement, error)
	SetReimbursementApproval(ctx context.Context, id string, status Status, rejectionNote *string) error
	SubmitShared(ctx context.Context, id string, amount int64, bank org.BankDetails, receipts []Receipt, signatureFileID string) error

	CreateAllowance(ctx context.Context, a *VolunteerAllowance) error
	FindAllowance(ctx context.Context, id string) (*VolunteerAllowance, error)
	FindAllowanceByToken(ctx context.Context, token string) (*VolunteerAllowance, error)
	ListAllowancesByOrg(ctx context.Context, orgID string) ([]*VolunteerAllowance, error)
	SetAllowanceApproval(ctx context.Context, id string, status Status, rejectionNote *string) error
	SubmitSharedAllowance(ctx context.Context, id string, amount int64, bank org.BankDetails, signatureFileID string) error
}
