package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kassenwerk.org/internal/finance"
	"kassenwerk.org/internal/ids"
	"kassenwerk.org/internal/org"
)

// MaxVolunteerAllowanceCents is the Ehrenamtspauschale cap per §3 Nr. 26a
// EStG: 840 EUR per person and year.
const MaxVolunteerAllowanceCents int64 = 84000

// Service implements reimbursement and allowance workflows.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ReimbursementInput is what a member files for themselves.
type ReimbursementInput struct {
	ProjectID string
	Kind      Kind
	Title     string
	Bank      org.BankDetails
	Receipts  []Receipt
	Travel    *TravelDetails
}

// CreateReimbursement files a claim. Car travel lines are computed from
// kilometers; the claim amount is the sum of receipts and cost lines.
func (s *Service) CreateReimbursement(ctx context.Context, orgID, userID string, in ReimbursementInput) (*Reimbursement, error) {
	r, err := s.buildReimbursement(orgID, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateReimbursement(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateSharedReimbursement prepares an empty claim an external submitter
// completes through a token-gated link. Amount stays zero until submission.
func (s *Service) CreateSharedReimbursement(ctx context.Context, orgID, projectID, title string, kind Kind) (*Reimbursement, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if kind != KindStandard && kind != KindTravel {
		return nil, fmt.Errorf("%w: unknown claim kind %q", ErrInvalidInput, kind)
	}
	r := &Reimbursement{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProjectID:      projectID,
		Kind:           kind,
		Title:          title,
		Status:         StatusPending,
		SharedToken:    uuid.NewString(),
	}
	if err := s.store.CreateReimbursement(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) buildReimbursement(orgID, userID string, in ReimbursementInput) (*Reimbursement, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Kind != KindStandard && in.Kind != KindTravel {
		return nil, fmt.Errorf("%w: unknown claim kind %q", ErrInvalidInput, in.Kind)
	}
	if in.Kind == KindTravel && in.Travel == nil {
		return nil, fmt.Errorf("%w: travel details are required for travel claims", ErrInvalidInput)
	}
	if in.Kind == KindStandard && in.Travel != nil {
		return nil, fmt.Errorf("%w: travel details only apply to travel claims", ErrInvalidInput)
	}

	var total int64
	receipts := make([]Receipt, 0, len(in.Receipts))
	for _, rc := range in.Receipts {
		if rc.Amount <= 0 {
			return nil, fmt.Errorf("%w: receipt amount must be positive", ErrInvalidInput)
		}
		if !finance.ValidTaxRate(rc.TaxRate) {
			return nil, finance.ErrInvalidTaxRate
		}
		if rc.ID == "" {
			rc.ID = ids.New()
		}
		total += rc.Amount
		receipts = append(receipts, rc)
	}

	var travel *TravelDetails
	if in.Travel != nil {
		t := *in.Travel
		lines := make([]CostLine, 0, len(t.CostLines))
		for _, line := range t.CostLines {
			if _, ok := ParseCostType(string(line.Type)); !ok {
				return nil, fmt.Errorf("%w: unknown cost type %q", ErrInvalidInput, line.Type)
			}
			if line.Type == CostCar {
				if line.Kilometers <= 0 {
					return nil, fmt.Errorf("%w: car lines need kilometers", ErrInvalidInput)
				}
				// Mileage allowance carries no VAT.
				line.Amount = finance.MileageAmount(line.Kilometers)
				line.TaxRate = 0
			} else {
				if line.Amount <= 0 {
					return nil, fmt.Errorf("%w: cost amount must be positive", ErrInvalidInput)
				}
				if !finance.ValidTaxRate(line.TaxRate) {
					return nil, finance.ErrInvalidTaxRate
				}
			}
			total += line.Amount
			lines = append(lines, line)
		}
		t.CostLines = lines
		travel = &t
	}

	if total <= 0 {
		return nil, fmt.Errorf("%w: a claim needs at least one receipt or cost line", ErrInvalidInput)
	}
	return &Reimbursement{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProjectID:      in.ProjectID,
		UserID:         userID,
		Kind:           in.Kind,
		Title:          in.Title,
		Amount:         total,
		Bank:           in.Bank,
		Status:         StatusPending,
		Travel:         travel,
		Receipts:       receipts,
	}, nil
}

// Approve marks a claim approved. A previously rejected claim may be
// approved again; the rejection note is retained as history.
func (s *Service) Approve(ctx context.Context, orgID, id string) error {
	r, err := s.store.FindReimbursement(ctx, id)
	if err != nil {
		return err
	}
	if r.OrganizationID != orgID {
		return ErrAccessDenied
	}
	return s.store.SetReimbursementApproval(ctx, id, StatusApproved, nil)
}

// Reject marks a claim rejected with a note.
func (s *Service) Reject(ctx context.Context, orgID, id, note string) error {
	r, err := s.store.FindReimbursement(ctx, id)
	if err != nil {
		return err
	}
	if r.OrganizationID != orgID {
		return ErrAccessDenied
	}
	note = strings.TrimSpace(note)
	return s.store.SetReimbursementApproval(ctx, id, StatusRejected, &note)
}

// List returns the organization's reimbursements.
func (s *Service) List(ctx context.Context, orgID string) ([]*Reimbursement, error) {
	return s.store.ListReimbursementsByOrg(ctx, orgID)
}

// ListAllowances returns the organization's volunteer allowances.
func (s *Service) ListAllowances(ctx context.Context, orgID string) ([]*VolunteerAllowance, error) {
	return s.store.ListAllowancesByOrg(ctx, orgID)
}

// AllowanceInput files a volunteer allowance.
type AllowanceInput struct {
	ProjectID string
	Year      int
	Amount    int64
	Bank      org.BankDetails
}

// CreateAllowance files a volunteer allowance, capped at the statutory
// maximum.
func (s *Service) CreateAllowance(ctx context.Context, orgID, userID string, in AllowanceInput) (*VolunteerAllowance, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.Amount > MaxVolunteerAllowanceCents {
		return nil, ErrStatutoryCapExceeded
	}
	a := &VolunteerAllowance{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProjectID:      in.ProjectID,
		UserID:         userID,
		Year:           in.Year,
		Amount:         in.Amount,
		Bank:           in.Bank,
		Status:         StatusPending,
	}
	if err := s.store.CreateAllowance(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateSharedAllowance prepares a token-gated allowance for an external
// submitter.
func (s *Service) CreateSharedAllowance(ctx context.Context, orgID, projectID string, year int) (*VolunteerAllowance, error) {
	a := &VolunteerAllowance{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProjectID:      projectID,
		Year:           year,
		Status:         StatusPending,
		SharedToken:    uuid.NewString(),
	}
	if err := s.store.CreateAllowance(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ApproveAllowance marks an allowance approved.
func (s *Service) ApproveAllowance(ctx context.Context, orgID, id string) error {
	a, err := s.store.FindAllowance(ctx, id)
	if err != nil {
		return err
	}
	if a.OrganizationID != orgID {
		return ErrAccessDenied
	}
	return s.store.SetAllowanceApproval(ctx, id, StatusApproved, nil)
}

// RejectAllowance marks an allowance rejected with a note.
func (s *Service) RejectAllowance(ctx context.Context, orgID, id, note string) error {
	a, err := s.store.FindAllowance(ctx, id)
	if err != nil {
		return err
	}
	if a.OrganizationID != orgID {
		return ErrAccessDenied
	}
	note = strings.TrimSpace(note)
	return s.store.SetAllowanceApproval(ctx, id, StatusRejected, &note)
}

// --- shared-link flows -----------------------------------------------------
// Every entry point below serves unauthenticated callers and therefore
// answers with SharedLinkResult instead of errors: internal failures and
// unknown tokens collapse into the same generic shapes.

const sharedLinkInvalid = "invalid or expired link"

// SharedSubmission is what the external submitter provides.
type SharedSubmission struct {
	Bank            org.BankDetails
	Receipts        []Receipt
	Travel          *TravelDetails
	SignatureFileID string
}

// GetSharedReimbursement resolves a shared token for display.
func (s *Service) GetSharedReimbursement(ctx context.Context, token string) SharedLinkResult {
	r, err := s.store.FindReimbursementByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return SharedLinkResult{Valid: false, Error: sharedLinkInvalid}
	}
	return SharedLinkResult{Valid: true, Reimbursement: r}
}

// SubmitSharedReimbursement applies the one allowed external submission.
// Amount zero means "not yet submitted"; anything else is final.
func (s *Service) SubmitSharedReimbursement(ctx context.Context, token string, sub SharedSubmission) SharedLinkResult {
	r, err := s.store.FindReimbursementByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return SharedLinkResult{Valid: false, Error: sharedLinkInvalid}
	}
	if r.Amount != 0 {
		return SharedLinkResult{Valid: false, Error: "already submitted"}
	}
	if sub.SignatureFileID == "" {
		return SharedLinkResult{Valid: false, Error: "signature is required"}
	}
	built, err := s.buildReimbursement(r.OrganizationID, r.UserID, ReimbursementInput{
		ProjectID: r.ProjectID,
		Kind:      r.Kind,
		Title:     r.Title,
		Bank:      sub.Bank,
		Receipts:  sub.Receipts,
		Travel:    sub.Travel,
	})
	if err != nil {
		return SharedLinkResult{Valid: false, Error: userFacing(err)}
	}
	if err := s.store.SubmitShared(ctx, r.ID, built.Amount, sub.Bank, built.Receipts, sub.SignatureFileID); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return SharedLinkResult{Valid: false, Error: "already submitted"}
		}
		return SharedLinkResult{Valid: false, Error: "submission failed"}
	}
	updated, err := s.store.FindReimbursement(ctx, r.ID)
	if err != nil {
		return SharedLinkResult{Valid: false, Error: "submission failed"}
	}
	return SharedLinkResult{Valid: true, Reimbursement: updated}
}

// GetSharedAllowance resolves a shared allowance token for display.
func (s *Service) GetSharedAllowance(ctx context.Context, token string) SharedLinkResult {
	a, err := s.store.FindAllowanceByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return SharedLinkResult{Valid: false, Error: sharedLinkInvalid}
	}
	return SharedLinkResult{Valid: true, Allowance: a}
}

// SubmitSharedAllowance applies the one allowed external allowance
// submission, enforcing the statutory cap.
func (s *Service) SubmitSharedAllowance(ctx context.Context, token string, amount int64, bank org.BankDetails, signatureFileID string) SharedLinkResult {
	a, err := s.store.FindAllowanceByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return SharedLinkResult{Valid: false, Error: sharedLinkInvalid}
	}
	if a.Amount != 0 {
		return SharedLinkResult{Valid: false, Error: "already submitted"}
	}
	if amount <= 0 {
		return SharedLinkResult{Valid: false, Error: "amount must be positive"}
	}
	if amount > MaxVolunteerAllowanceCents {
		return SharedLinkResult{Valid: false, Error: "amount exceeds the statutory allowance cap"}
	}
	if signatureFileID == "" {
		return SharedLinkResult{Valid: false, Error: "signature is required"}
	}
	if err := s.store.SubmitSharedAllowance(ctx, a.ID, amount, bank, signatureFileID); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return SharedLinkResult{Valid: false, Error: "already submitted"}
		}
		return SharedLinkResult{Valid: false, Error: "submission failed"}
	}
	updated, err := s.store.FindAllowance(ctx, a.ID)
	if err != nil {
		return SharedLinkResult{Valid: false, Error: "submission failed"}
	}
	return SharedLinkResult{Valid: true, Allowance: updated}
}

// userFacing strips internal prefixes from invariant errors shown to
// external submitters.
func userFacing(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "claims: ") || strings.HasPrefix(msg, "finance: ") {
		if i := strings.Index(msg, ": "); i >= 0 {
			return msg[i+2:]
		}
	}
	return msg
}
