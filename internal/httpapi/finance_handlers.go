package httpapi

import (
	"net/http"
	"strings"
	"time"

	"kassenwerk.org/internal/access"
	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/finance"
	"kassenwerk.org/internal/org"
)

type createCategoryRequest struct {
	Name      string `json:"name" validate:"required"`
	TaxSphere string `json:"tax_sphere" validate:"required"`
}

type createDonorRequest struct {
	Name              string   `json:"name" validate:"required"`
	Type              string   `json:"type" validate:"required,oneof=donation sponsoring"`
	AllowedTaxSpheres []string `json:"allowed_tax_spheres"`
}

type createTransactionRequest struct {
	ProjectID   string    `json:"project_id"`
	CategoryID  string    `json:"category_id"`
	DonorID     string    `json:"donor_id"`
	Amount      int64     `json:"amount" validate:"required"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	BookedAt    time.Time `json:"booked_at"`
}

type importTransactionRequest struct {
	Source       string    `json:"source" validate:"required"`
	ImportedTxID string    `json:"imported_transaction_id" validate:"required"`
	Amount       int64     `json:"amount" validate:"required"`
	Description  string    `json:"description"`
	BookedAt     time.Time `json:"booked_at"`
}

type splitRequest struct {
	Allocations []finance.SplitAllocation `json:"allocations" validate:"required,min=1,dive"`
}

type budgetsRequest struct {
	Allocations []finance.BudgetAllocation `json:"allocations" validate:"required,dive"`
}

type markProcessedRequest struct {
	MatchedTransactionID string `json:"matched_transaction_id"`
}

type donationLinkRequest struct {
	DonationTransactionID string `json:"donation_transaction_id" validate:"required"`
	ExpenseTransactionID  string `json:"expense_transaction_id" validate:"required"`
	Amount                int64  `json:"amount" validate:"required,gt=0"`
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := principal(w, r)
		if !ok {
			return
		}
		cats, err := a.svc.Finance.ListCategories(r.Context(), p.OrganizationID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
	case http.MethodPost:
		p, ok := requireRole(w, r, org.RoleEditor)
		if !ok {
			return
		}
		var req createCategoryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		sphere, valid := finance.ParseTaxSphere(req.TaxSphere)
		if !valid {
			writeError(w, r, http.StatusBadRequest, "unknown tax sphere")
			return
		}
		c, err := a.svc.Finance.CreateCategory(r.Context(), p.OrganizationID, req.Name, sphere)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDonors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := principal(w, r)
		if !ok {
			return
		}
		donors, err := a.svc.Finance.ListDonors(r.Context(), p.OrganizationID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"donors": donors})
	case http.MethodPost:
		p, ok := requireRole(w, r, org.RoleEditor)
		if !ok {
			return
		}
		var req createDonorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		spheres := make([]finance.TaxSphere, 0, len(req.AllowedTaxSpheres))
		for _, s := range req.AllowedTaxSpheres {
			sphere, valid := finance.ParseTaxSphere(s)
			if !valid {
				writeError(w, r, http.StatusBadRequest, "unknown tax sphere")
				return
			}
			spheres = append(spheres, sphere)
		}
		d, err := a.svc.Finance.CreateDonor(r.Context(), p.OrganizationID, req.Name, finance.DonorType(req.Type), spheres)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTransactions(w, r)
	case http.MethodPost:
		a.createTransaction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	txs, err := a.svc.Finance.ListTransactions(r.Context(), p.OrganizationID, includeArchived)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !p.IsAdmin() {
		accessible, err := a.svc.Access.AccessibleProjectIDs(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		txs = access.FilterByProjectAccess(p, accessible, txs)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) createTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID != "" {
		if err := a.svc.Access.CanAccessProject(r.Context(), p, req.ProjectID, org.RoleEditor); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	status := finance.TransactionStatus(req.Status)
	if req.Status == "" {
		status = finance.StatusProcessed
	}
	tx, err := a.svc.Finance.CreateTransaction(r.Context(), p.OrganizationID, finance.TransactionInput{
		ProjectID:   req.ProjectID,
		CategoryID:  req.CategoryID,
		DonorID:     req.DonorID,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      status,
		BookedAt:    req.BookedAt,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/transactions/"+tx.ID)
	writeJSON(w, http.StatusCreated, tx)
}

// handleTransactionImport inserts a bank-import row exactly once per external
// id; replays report skipped instead of failing.
func (a *API) handleTransactionImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req importTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Finance.CreateImportedTransaction(r.Context(), p.OrganizationID, finance.ImportInput{
		Source:       req.Source,
		ImportedTxID: req.ImportedTxID,
		Amount:       req.Amount,
		Description:  req.Description,
		BookedAt:     req.BookedAt,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Skipped {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (a *API) handleTransactionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/transactions/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]
	switch parts[1] {
	case "split":
		a.splitTransaction(w, r, id)
	case "budgets":
		a.handleBudgets(w, r, id)
	case "mark-processed":
		a.markTransactionProcessed(w, r, id)
	case "donation-available":
		a.donationAvailable(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) splitTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req splitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	children, err := a.svc.Finance.Split(r.Context(), p.OrganizationID, id, req.Allocations)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "transaction.split", map[string]any{
		"transaction_id": id,
		"children":       len(children),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"transactions": children})
}

func (a *API) handleBudgets(w http.ResponseWriter, r *http.Request, sourceID string) {
	switch r.Method {
	case http.MethodGet:
		p, ok := principal(w, r)
		if !ok {
			return
		}
		budgets, err := a.svc.Finance.ListBudgets(r.Context(), p.OrganizationID, sourceID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if !p.IsAdmin() {
			accessible, err := a.svc.Access.AccessibleProjectIDs(r.Context(), p)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			budgets = access.FilterByProjectAccess(p, accessible, budgets)
		}
		writeJSON(w, http.StatusOK, map[string]any{"budgets": budgets})
	case http.MethodPut:
		p, ok := requireRole(w, r, org.RoleEditor)
		if !ok {
			return
		}
		var req budgetsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		budgets, err := a.svc.Finance.SetBudgets(r.Context(), p.OrganizationID, sourceID, req.Allocations)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"budgets": budgets})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) markTransactionProcessed(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req markProcessedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Finance.MarkProcessed(r.Context(), p.OrganizationID, id, req.MatchedTransactionID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) donationAvailable(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	available, err := a.svc.Finance.DonationAvailable(r.Context(), p.OrganizationID, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

func (a *API) handleDonationLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleEditor)
	if !ok {
		return
	}
	var req donationLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	link, err := a.svc.Finance.LinkDonationExpense(r.Context(), p.OrganizationID,
		req.DonationTransactionID, req.ExpenseTransactionID, req.Amount)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}
