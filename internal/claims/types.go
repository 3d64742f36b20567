package claims

import (
	"time"

	"kassenwerk.org/internal/org"
)

// Status is the approval state of a claim. A rejected claim can be approved
// later; the rejection note is kept as history either way.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Kind distinguishes a plain expense claim from a travel claim.
type Kind string

const (
	KindStandard Kind = "standard"
	KindTravel   Kind = "travel"
)

// CostType enumerates travel cost lines.
type CostType string

const (
	CostCar           CostType = "car"
	CostTrain         CostType = "train"
	CostFlight        CostType = "flight"
	CostTaxi          CostType = "taxi"
	CostBus           CostType = "bus"
	CostAccommodation CostType = "accommodation"
)

// ParseCostType validates a cost type from the outside.
func ParseCostType(s string) (CostType, bool) {
	switch CostType(s) {
	case CostCar, CostTrain, CostFlight, CostTaxi, CostBus, CostAccommodation:
		return CostType(s), true
	}
	return "", false
}

// Receipt is one attached receipt record. Amounts are gross cents.
type Receipt struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	TaxRate int    `json:"tax_rate"`
	FileID  string `json:"file_id"`
}

// CostLine is one travel cost item. Car lines are computed from kilometers
// at the statutory mileage rate; all other types carry an explicit amount.
type CostLine struct {
	Type       CostType `json:"type"`
	Amount     int64    `json:"amount"`
	Kilometers float64  `json:"kilometers,omitempty"`
	TaxRate    int      `json:"tax_rate"`
}

// TravelDetails holds trip metadata for travel claims.
type TravelDetails struct {
	Purpose     string     `json:"purpose"`
	Destination string     `json:"destination"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	CostLines   []CostLine `json:"cost_lines"`
}

// Reimbursement is an expense claim. For shared-link claims, Amount == 0
// means "not yet submitted"; the first external submission sets the amount,
// receipts and signature atomically.
type Reimbursement struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	ProjectID       string          `json:"project_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Kind            Kind            `json:"kind"`
	Title           string          `json:"title"`
	Amount          int64           `json:"amount"`
	Bank            org.BankDetails `json:"bank"`
	Status          Status          `json:"status"`
	RejectionNote   string          `json:"rejection_note,omitempty"`
	Travel          *TravelDetails  `json:"travel,omitempty"`
	Receipts        []Receipt       `json:"receipts"`
	SharedToken     string          `json:"-"`
	SignatureFileID string          `json:"signature_file_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ProjectRef satisfies access.ProjectScoped.
func (r *Reimbursement) ProjectRef() string { return r.ProjectID }

// VolunteerAllowance is the statutory-capped flat allowance claim
// (Ehrenamtspauschale).
type VolunteerAllowance struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	ProjectID       string          `json:"project_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Year            int             `json:"year"`
	Amount          int64           `json:"amount"`
	Bank            org.BankDetails `json:"bank"`
	Status          Status          `json:"status"`
	RejectionNote   string          `json:"rejection_note,omitempty"`
	SharedToken     string          `json:"-"`
	SignatureFileID string          `json:"signature_file_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ProjectRef satisfies access.ProjectScoped.
func (a *VolunteerAllowance) ProjectRef() string { return a.ProjectID }

// SharedLinkResult is the uniform response shape for every unauthenticated
// shared-link operation. It never throws and never reveals whether a token
// exists beyond the generic error text.
type SharedLinkResult struct {
	Valid         bool                `json:"valid"`
	Error         string              `json:"error,omitempty"`
	Reimbursement *Reimbursement      `json:"reimbursement,omitempty"`
	Allowance     *VolunteerAllowance `json:"allowance,omitempty"`
}
