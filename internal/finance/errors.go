package finance

import "errors"

var (
	ErrNotFound     = errors.New("finance: not found")
	ErrConflict     = errors.New("finance: already exists")
	ErrInvalidInput = errors.New("finance: invalid input")

	// ErrAccessDenied covers cross-organization operations. It is distinct
	// from ErrNotFound on purpose: an actor touching another tenant's
	// transaction gets a denial, never a hint about existence.
	ErrAccessDenied = errors.New("finance: access denied")

	// Invariant violations. These are expected, user-correctable outcomes.
	ErrTaxSphereMismatch     = errors.New("finance: donor may not fund this category's tax sphere")
	ErrBudgetExceedsSource   = errors.New("finance: budget allocations exceed the source transaction amount")
	ErrBudgetSourceIsExpense = errors.New("finance: budgets can only be set against income transactions")
	ErrSplitExceedsAmount    = errors.New("finance: splits exceed the original transaction amount")
	ErrSplitSignMismatch     = errors.New("finance: split amounts must carry the sign of the original transaction")
	ErrAlreadySplit          = errors.New("finance: transaction was already split")
	ErrDonationExceeded      = errors.New("finance: link exceeds the donation's available amount")
	ErrInvalidTaxRate        = errors.New("finance: unsupported tax rate")
	ErrStatusTransition      = errors.New("finance: only expected transactions can be marked processed")
)
