package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kassenwerk.org/internal/ids"
	"kassenwerk.org/internal/obs"
)

// Service implements the transaction, category, donor and budget rules.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// CreateCategory adds a tax-relevant classification.
func (s *Service) CreateCategory(ctx context.Context, orgID, name string, sphere TaxSphere) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, ok := ParseTaxSphere(string(sphere)); !ok {
		return nil, fmt.Errorf("%w: unknown tax sphere %q", ErrInvalidInput, sphere)
	}
	c := &Category{ID: ids.New(), OrganizationID: orgID, Name: name, TaxSphere: sphere}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateDonor adds a funding source. An empty sphere list leaves the donor
// unrestricted.
func (s *Service) CreateDonor(ctx context.Context, orgID, name string, typ DonorType, spheres []TaxSphere) (*Donor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if typ != DonorDonation && typ != DonorSponsoring {
		return nil, fmt.Errorf("%w: unknown donor type %q", ErrInvalidInput, typ)
	}
	for _, sp := range spheres {
		if _, ok := ParseTaxSphere(string(sp)); !ok {
			return nil, fmt.Errorf("%w: unknown tax sphere %q", ErrInvalidInput, sp)
		}
	}
	d := &Donor{ID: ids.New(), OrganizationID: orgID, Name: name, Type: typ, AllowedTaxSpheres: spheres}
	if err := s.store.CreateDonor(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ValidateDonorForCategory enforces the tax-sphere rule. With either id
// empty the check is a no-op; with both set, a donor that restricts its
// spheres may only fund categories whose sphere it allows. Ids belonging to
// another organization read as not-found.
func (s *Service) ValidateDonorForCategory(ctx context.Context, orgID, donorID, categoryID string) error {
	if donorID == "" || categoryID == "" {
		return nil
	}
	d, err := s.store.FindDonor(ctx, donorID)
	if err != nil {
		return err
	}
	if d.OrganizationID != orgID {
		return ErrNotFound
	}
	c, err := s.store.FindCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if c.OrganizationID != orgID {
		return ErrNotFound
	}
	if len(d.AllowedTaxSpheres) == 0 {
		return nil
	}
	for _, sp := range d.AllowedTaxSpheres {
		if sp == c.TaxSphere {
			return nil
		}
	}
	return ErrTaxSphereMismatch
}

// TransactionInput is what callers provide to record a transaction.
type TransactionInput struct {
	ProjectID   string
	CategoryID  string
	DonorID     string
	Amount      int64
	Description string
	Status      TransactionStatus
	BookedAt    time.Time
}

// CreateTransaction records a transaction after validating the
// donor/category combination.
func (s *Service) CreateTransaction(ctx context.Context, orgID string, in TransactionInput) (*Transaction, error) {
	if in.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", ErrInvalidInput)
	}
	status := in.Status
	if status == "" {
		status = StatusProcessed
	}
	if status != StatusExpected && status != StatusProcessed {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.ValidateDonorForCategory(ctx, orgID, in.DonorID, in.CategoryID); err != nil {
		return nil, err
	}
	bookedAt := in.BookedAt
	if bookedAt.IsZero() {
		bookedAt = s.now().UTC()
	}
	t := &Transaction{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProjectID:      in.ProjectID,
		CategoryID:     in.CategoryID,
		DonorID:        in.DonorID,
		Amount:         in.Amount,
		Description:    strings.TrimSpace(in.Description),
		Status:         status,
		BookedAt:       bookedAt,
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ImportInput describes one row of a bank import.
type ImportInput struct {
	Source       string
	ImportedTxID string
	Amount       int64
	Description  string
	BookedAt     time.Time
}

// CreateImportedTransaction inserts an imported transaction exactly once per
// (organization, external id). A second call with the same external id is a
// no-op reporting Skipped. The unique index in the store is the correctness
// mechanism: a concurrent duplicate insert surfaces as ErrConflict here and
// is reported as Skipped as well.
func (s *Service) CreateImportedTransaction(ctx context.Context, orgID string, in ImportInput) (ImportResult, error) {
	in.ImportedTxID = strings.TrimSpace(in.ImportedTxID)
	if in.ImportedTxID == "" {
		return ImportResult{}, fmt.Errorf("%w: imported transaction id is required", ErrInvalidInput)
	}
	if in.Amount == 0 {
		return ImportResult{}, fmt.Errorf("%w: amount must be non-zero", ErrInvalidInput)
	}
	existing, err := s.store.FindTransactionByImportID(ctx, orgID, in.ImportedTxID)
	if err == nil {
		obs.CountImport("skipped")
		return ImportResult{Skipped: true, Transaction: existing}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ImportResult{}, err
	}
	bookedAt := in.BookedAt
	if bookedAt.IsZero() {
		bookedAt = s.now().UTC()
	}
	t := &Transaction{
		ID:             ids.New(),
		OrganizationID: orgID,
		Amount:         in.Amount,
		Description:    strings.TrimSpace(in.Description),
		Status:         StatusProcessed,
		ImportSource:   in.Source,
		ImportedTxID:   in.ImportedTxID,
		BookedAt:       bookedAt,
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		if errors.Is(err, ErrConflict) {
			// Another import of the same row won the race; their insert is
			// as good as ours.
			if winner, ferr := s.store.FindTransactionByImportID(ctx, orgID, in.ImportedTxID); ferr == nil {
				obs.CountImport("skipped")
				return ImportResult{Skipped: true, Transaction: winner}, nil
			}
			obs.CountImport("skipped")
			return ImportResult{Skipped: true}, nil
		}
		return ImportResult{}, err
	}
	obs.CountImport("inserted")
	return ImportResult{Inserted: true, Transaction: t}, nil
}

// MarkProcessed transitions an expected transaction to processed, optionally
// recording the matched real-world counterpart. No reverse transition exists.
func (s *Service) MarkProcessed(ctx context.Context, orgID, id, matchedID string) error {
	t, err := s.store.FindTransaction(ctx, id)
	if err != nil {
		return err
	}
	if t.OrganizationID != orgID {
		return ErrAccessDenied
	}
	if t.Status != StatusExpected {
		return ErrStatusTransition
	}
	return s.store.MarkProcessed(ctx, id, matchedID)
}

// Split divides a transaction across projects. Explicit allocations become
// child transactions; a shortfall against the original amount goes to the
// reserves project as one more child; the original is archived. All of it is
// one atomic write.
func (s *Service) Split(ctx context.Context, actorOrgID, transactionID string, allocations []SplitAllocation) ([]*Transaction, error) {
	parent, err := s.store.FindTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if parent.OrganizationID != actorOrgID {
		return nil, ErrAccessDenied
	}
	if parent.Archived {
		return nil, ErrAlreadySplit
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: at least one split is required", ErrInvalidInput)
	}

	sign := int64(1)
	if parent.Amount < 0 {
		sign = -1
	}
	var allocated int64
	for _, a := range allocations {
		if a.ProjectID == "" {
			return nil, fmt.Errorf("%w: split project is required", ErrInvalidInput)
		}
		if a.Amount == 0 || a.Amount*sign < 0 {
			return nil, ErrSplitSignMismatch
		}
		allocated += a.Amount
	}
	if allocated*sign > parent.Amount*sign {
		return nil, ErrSplitExceedsAmount
	}

	children := make([]*Transaction, 0, len(allocations)+1)
	for _, a := range allocations {
		children = append(children, s.splitChild(parent, a.ProjectID, a.Amount))
	}
	if remainder := parent.Amount - allocated; remainder != 0 {
		reservesID, err := s.store.ReservesProjectID(ctx, parent.OrganizationID)
		if err != nil {
			return nil, err
		}
		children = append(children, s.splitChild(parent, reservesID, remainder))
	}
	if err := s.store.ApplySplit(ctx, parent.ID, children); err != nil {
		return nil, err
	}
	return children, nil
}

func (s *Service) splitChild(parent *Transaction, projectID string, amount int64) *Transaction {
	return &Transaction{
		ID:             ids.New(),
		OrganizationID: parent.OrganizationID,
		ProjectID:      projectID,
		CategoryID:     parent.CategoryID,
		DonorID:        parent.DonorID,
		Amount:         amount,
		Description:    parent.Description,
		Status:         parent.Status,
		SplitFromID:    parent.ID,
		BookedAt:       parent.BookedAt,
	}
}

// SetBudgets replaces all budgets drawn from one income transaction. The
// allocations must not sum past the source amount; the store applies the
// delete-and-insert atomically, so a failed call leaves earlier budgets
// untouched.
func (s *Service) SetBudgets(ctx context.Context, orgID, sourceTransactionID string, allocations []BudgetAllocation) ([]*Budget, error) {
	src, err := s.store.FindTransaction(ctx, sourceTransactionID)
	if err != nil {
		return nil, err
	}
	if src.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	if src.Amount <= 0 {
		return nil, ErrBudgetSourceIsExpense
	}
	var total int64
	budgets := make([]*Budget, 0, len(allocations))
	for _, a := range allocations {
		if a.ProjectID == "" {
			return nil, fmt.Errorf("%w: budget project is required", ErrInvalidInput)
		}
		if a.Amount <= 0 {
			return nil, fmt.Errorf("%w: budget amount must be positive", ErrInvalidInput)
		}
		total += a.Amount
		budgets = append(budgets, &Budget{
			ID:                  ids.New(),
			OrganizationID:      orgID,
			SourceTransactionID: sourceTransactionID,
			ProjectID:           a.ProjectID,
			Amount:              a.Amount,
		})
	}
	if total > src.Amount {
		return nil, ErrBudgetExceedsSource
	}
	if err := s.store.ReplaceBudgets(ctx, sourceTransactionID, budgets); err != nil {
		return nil, err
	}
	return budgets, nil
}

// LinkDonationExpense earmarks part of a donation for an expense. The
// available amount is derived by summing existing links at call time.
func (s *Service) LinkDonationExpense(ctx context.Context, orgID, donationTxID, expenseTxID string, amount int64) (*DonationExpenseLink, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: link amount must be positive", ErrInvalidInput)
	}
	donation, err := s.store.FindTransaction(ctx, donationTxID)
	if err != nil {
		return nil, err
	}
	if donation.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	if donation.Amount <= 0 {
		return nil, fmt.Errorf("%w: donation must be an income transaction", ErrInvalidInput)
	}
	expense, err := s.store.FindTransaction(ctx, expenseTxID)
	if err != nil {
		return nil, err
	}
	if expense.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	linked, err := s.store.SumDonationLinks(ctx, donationTxID)
	if err != nil {
		return nil, err
	}
	if linked+amount > donation.Amount {
		return nil, ErrDonationExceeded
	}
	l := &DonationExpenseLink{
		ID:                    ids.New(),
		DonationTransactionID: donationTxID,
		ExpenseTransactionID:  expenseTxID,
		Amount:                amount,
	}
	if err := s.store.CreateDonationLink(ctx, l, donation.Amount); err != nil {
		return nil, err
	}
	return l, nil
}

// DonationAvailable derives the unlinked remainder of a donation.
func (s *Service) DonationAvailable(ctx context.Context, orgID, donationTxID string) (int64, error) {
	donation, err := s.store.FindTransaction(ctx, donationTxID)
	if err != nil {
		return 0, err
	}
	if donation.OrganizationID != orgID {
		return 0, ErrAccessDenied
	}
	linked, err := s.store.SumDonationLinks(ctx, donationTxID)
	if err != nil {
		return 0, err
	}
	return donation.Amount - linked, nil
}

func (s *Service) ListCategories(ctx context.Context, orgID string) ([]*Category, error) {
	return s.store.ListCategories(ctx, orgID)
}

func (s *Service) ListDonors(ctx context.Context, orgID string) ([]*Donor, error) {
	return s.store.ListDonors(ctx, orgID)
}

// ListTransactions returns the organization's transactions.
func (s *Service) ListTransactions(ctx context.Context, orgID string, includeArchived bool) ([]*Transaction, error) {
	return s.store.ListTransactions(ctx, orgID, includeArchived)
}

// ListBudgets returns the budgets drawn from one source transaction.
func (s *Service) ListBudgets(ctx context.Context, orgID, sourceTransactionID string) ([]*Budget, error) {
	src, err := s.store.FindTransaction(ctx, sourceTransactionID)
	if err != nil {
		return nil, err
	}
	if src.OrganizationID != orgID {
		return nil, ErrAccessDenied
	}
	return s.store.ListBudgetsBySource(ctx, sourceTransactionID)
}
