package finance

import "context"

// Store describes persistence required by the finance subsystem. Multi-step
// writes (split, budget replace, donation link) must execute atomically in
// the implementation; callers rely on never observing partial state.
type Store interface {
	CreateCategory(ctx context.Context, c *Category) error
	FindCategory(ctx context.Context, id string) (*Category, error)
	ListCategories(ctx context.Context, orgID string) ([]*Category, error)

	CreateDonor(ctx context.Context, d *Donor) error
	FindDonor(ctx context.Context, id string) (*Donor, error)
	ListDonors(ctx context.Context, orgID string) ([]*Donor, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	FindTransaction(ctx context.Context, id string) (*Transaction, error)
	FindTransactionByImportID(ctx context.Context, orgID, importedTxID string) (*Transaction, error)
	ListTransactions(ctx context.Context, orgID string, includeArchived bool) ([]*Transaction, error)
	MarkProcessed(ctx context.Context, id, matchedID string) error

	// ApplySplit inserts the split children and archives the parent in one
	// transaction.
	ApplySplit(ctx context.Context, parentID string, children []*Transaction) error

	// ReplaceBudgets deletes all budgets of the source transaction and
	// inserts the replacements in one transaction.
	ReplaceBudgets(ctx context.Context, sourceTransactionID string, budgets []*Budget) error
	ListBudgetsBySource(ctx context.Context, sourceTransactionID string) ([]*Budget, error)
	ListBudgetsByOrg(ctx context.Context, orgID string) ([]*Budget, error)

	// CreateDonationLink inserts the link only if the derived availability
	// still covers the amount, inside one transaction.
	CreateDonationLink(ctx context.Context, l *DonationExpenseLink, donationAmount int64) error
	SumDonationLinks(ctx context.Context, donationTransactionID string) (int64, error)

	// ReservesProjectID resolves the organization's protected reserves
	// project, the target for unallocated split remainders.
	ReservesProjectID(ctx context.Context, orgID string) (string, error)
}
