package finance

import "time"

// TaxSphere is the German non-profit tax classification of a category. It
// governs which donor money may fund expenses in that category.
type TaxSphere string

const (
	SphereNonProfit            TaxSphere = "non_profit"
	SphereAssetManagement      TaxSphere = "asset_management"
	SpherePurposeOperations    TaxSphere = "purpose_operations"
	SphereCommercialOperations TaxSphere = "commercial_operations"
)

// ParseTaxSphere validates a sphere value coming from the outside.
func ParseTaxSphere(s string) (TaxSphere, bool) {
	switch TaxSphere(s) {
	case SphereNonProfit, SphereAssetManagement, SpherePurposeOperations, SphereCommercialOperations:
		return TaxSphere(s), true
	}
	return "", false
}

// DonorType distinguishes plain donations from sponsoring arrangements.
type DonorType string

const (
	DonorDonation   DonorType = "donation"
	DonorSponsoring DonorType = "sponsoring"
)

// TransactionStatus is the reconciliation state. The only transition defined
// is expected -> processed.
type TransactionStatus string

const (
	StatusExpected  TransactionStatus = "expected"
	StatusProcessed TransactionStatus = "processed"
)

// Category classifies transactions for tax purposes.
type Category struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	TaxSphere      TaxSphere `json:"tax_sphere"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Donor is a funding source. An empty AllowedTaxSpheres list means the donor
// may fund any category; a non-empty list restricts to the named spheres.
type Donor struct {
	ID                string      `json:"id"`
	OrganizationID    string      `json:"organization_id"`
	Name              string      `json:"name"`
	Type              DonorType   `json:"type"`
	AllowedTaxSpheres []TaxSphere `json:"allowed_tax_spheres,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Transaction is a signed money movement in cents: positive amounts are
// income, negative amounts are expenses.
type Transaction struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	ProjectID      string            `json:"project_id,omitempty"`
	CategoryID     string            `json:"category_id,omitempty"`
	DonorID        string            `json:"donor_id,omitempty"`
	Amount         int64             `json:"amount"`
	Description    string            `json:"description,omitempty"`
	Status         TransactionStatus `json:"status"`
	MatchedID      string            `json:"matched_transaction_id,omitempty"`
	ImportSource   string            `json:"import_source,omitempty"`
	ImportedTxID   string            `json:"imported_transaction_id,omitempty"`
	SplitFromID    string            `json:"split_from_transaction_id,omitempty"`
	Archived       bool              `json:"archived"`
	BookedAt       time.Time         `json:"booked_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ProjectRef satisfies access.ProjectScoped.
func (t *Transaction) ProjectRef() string { return t.ProjectID }

// Budget allocates a slice of one income transaction's amount to a project.
type Budget struct {
	ID                  string    `json:"id"`
	OrganizationID      string    `json:"organization_id"`
	SourceTransactionID string    `json:"source_transaction_id"`
	ProjectID           string    `json:"project_id"`
	Amount              int64     `json:"amount"`
	CreatedAt           time.Time `json:"created_at"`
}

// ProjectRef satisfies access.ProjectScoped.
func (b *Budget) ProjectRef() string { return b.ProjectID }

// DonationExpenseLink earmarks part of a donation for one expense. Donation
// availability is always derived by summing these links, never cached.
type DonationExpenseLink struct {
	ID                    string    `json:"id"`
	DonationTransactionID string    `json:"donation_transaction_id"`
	ExpenseTransactionID  string    `json:"expense_transaction_id"`
	Amount                int64     `json:"amount"`
	CreatedAt             time.Time `json:"created_at"`
}

// SplitAllocation names one target of a transaction split.
type SplitAllocation struct {
	ProjectID string `json:"project_id"`
	Amount    int64  `json:"amount"`
}

// BudgetAllocation names one target of a budget replace.
type BudgetAllocation struct {
	ProjectID string `json:"project_id"`
	Amount    int64  `json:"amount"`
}

// ImportResult reports the outcome of an idempotent import.
type ImportResult struct {
	Inserted    bool         `json:"inserted"`
	Skipped     bool         `json:"skipped"`
	Transaction *Transaction `json:"transaction,omitempty"`
}
