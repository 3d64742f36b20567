package httpapi

import (
	"net/http"
	"strings"

	"kassenwerk.org/internal/access"
	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/obs"
	"kassenwerk.org/internal/org"
)

const mailFrom = "noreply@kassenwerk.org"

type createReimbursementRequest struct {
	ProjectID string                `json:"project_id"`
	Kind      string                `json:"kind" validate:"required,oneof=standard travel"`
	Title     string                `json:"title" validate:"required"`
	Bank      bankDetailsRequest    `json:"bank"`
	Receipts  []claims.Receipt      `json:"receipts"`
	Travel    *claims.TravelDetails `json:"travel"`
	Shared    bool                  `json:"shared"`
}

type createAllowanceRequest struct {
	ProjectID string             `json:"project_id"`
	Year      int                `json:"year" validate:"required,gte=2000"`
	Amount    int64              `json:"amount"`
	Bank      bankDetailsRequest `json:"bank"`
	Shared    bool               `json:"shared"`
}

type rejectRequest struct {
	Note string `json:"note" validate:"required"`
}

func (a *API) handleReimbursements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listReimbursements(w, r)
	case http.MethodPost:
		a.createReimbursement(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listReimbursements(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := a.svc.Claims.List(r.Context(), p.OrganizationID)
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
		list = access.FilterByProjectAccess(p, accessible, list)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reimbursements": list})
}

func (a *API) createReimbursement(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createReimbursementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID != "" {
		if err := a.svc.Access.CanAccessProject(r.Context(), p, req.ProjectID, org.RoleViewer); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if req.Shared {
		// Shared claims carry no amount yet; an external submitter fills
		// them in through the token link. Creating one takes editor rights.
		if err := access.RequireRole(p, org.RoleEditor); err != nil {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		created, err := a.svc.Claims.CreateSharedReimbursement(r.Context(), p.OrganizationID,
			req.ProjectID, req.Title, claims.Kind(req.Kind))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"reimbursement": created,
			"shared_url":    "/v1/shared/reimbursements/" + created.SharedToken,
		})
		return
	}
	created, err := a.svc.Claims.CreateReimbursement(r.Context(), p.OrganizationID, p.UserID, claims.ReimbursementInput{
		ProjectID: req.ProjectID,
		Kind:      claims.Kind(req.Kind),
		Title:     req.Title,
		Bank:      org.BankDetails{IBAN: req.Bank.IBAN, BIC: req.Bank.BIC, AccountHolder: req.Bank.AccountHolder},
		Receipts:  req.Receipts,
		Travel:    req.Travel,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reimbursements/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleReimbursementResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reimbursements/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]
	switch parts[1] {
	case "approve":
		a.approveReimbursement(w, r, id)
	case "reject":
		a.rejectReimbursement(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) approveReimbursement(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	if err := a.svc.Claims.Approve(r.Context(), p.OrganizationID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "reimbursement.approve", map[string]any{
		"reimbursement_id": id,
	})
	a.notifyClaimant(r, id, "Deine Auslagenerstattung wurde genehmigt",
		"<p>Deine eingereichte Auslagenerstattung wurde genehmigt.</p>")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) rejectReimbursement(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Claims.Reject(r.Context(), p.OrganizationID, id, req.Note); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "reimbursement.reject", map[string]any{
		"reimbursement_id": id,
	})
	a.notifyClaimant(r, id, "Deine Auslagenerstattung wurde abgelehnt",
		"<p>Deine eingereichte Auslagenerstattung wurde abgelehnt.</p><p>"+req.Note+"</p>")
	w.WriteHeader(http.StatusNoContent)
}

// notifyClaimant emails the filing user about the decision. Delivery failure
// never fails the request.
func (a *API) notifyClaimant(r *http.Request, reimbursementID, subject, html string) {
	if a.svc.Mailer == nil {
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return
	}
	to := a.findClaimUser(r, p.OrganizationID, reimbursementID)
	if to == "" {
		return
	}
	if err := a.svc.Mailer.SendEmail(r.Context(), mailFrom, to, subject, html); err != nil {
		obs.Logger().WithError(err).Warn("claim notification failed")
	}
}

func (a *API) findClaimUser(r *http.Request, orgID, reimbursementID string) string {
	list, err := a.svc.Claims.List(r.Context(), orgID)
	if err != nil {
		return ""
	}
	for _, c := range list {
		if c.ID == reimbursementID && c.UserID != "" {
			if u, err := a.findOrgUser(r, orgID, c.UserID); err == nil {
				return u.Email
			}
		}
	}
	return ""
}

func (a *API) handleAllowances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := principal(w, r)
		if !ok {
			return
		}
		list, err := a.svc.Claims.ListAllowances(r.Context(), p.OrganizationID)
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
			list = access.FilterByProjectAccess(p, accessible, list)
		}
		writeJSON(w, http.StatusOK, map[string]any{"allowances": list})
	case http.MethodPost:
		a.createAllowance(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createAllowance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createAllowanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID != "" {
		if err := a.svc.Access.CanAccessProject(r.Context(), p, req.ProjectID, org.RoleViewer); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if req.Shared {
		if err := access.RequireRole(p, org.RoleEditor); err != nil {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		created, err := a.svc.Claims.CreateSharedAllowance(r.Context(), p.OrganizationID, req.ProjectID, req.Year)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"allowance":  created,
			"shared_url": "/v1/shared/allowances/" + created.SharedToken,
		})
		return
	}
	created, err := a.svc.Claims.CreateAllowance(r.Context(), p.OrganizationID, p.UserID, claims.AllowanceInput{
		ProjectID: req.ProjectID,
		Year:      req.Year,
		Amount:    req.Amount,
		Bank:      org.BankDetails{IBAN: req.Bank.IBAN, BIC: req.Bank.BIC, AccountHolder: req.Bank.AccountHolder},
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/allowances/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleAllowanceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/allowances/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "approve":
		p, ok := requireRole(w, r, org.RoleAdmin)
		if !ok {
			return
		}
		if err := a.svc.Claims.ApproveAllowance(r.Context(), p.OrganizationID, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "allowance.approve", map[string]any{"allowance_id": id})
		w.WriteHeader(http.StatusNoContent)
	case "reject":
		p, ok := requireRole(w, r, org.RoleAdmin)
		if !ok {
			return
		}
		var req rejectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.Claims.RejectAllowance(r.Context(), p.OrganizationID, id, req.Note); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "allowance.reject", map[string]any{"allowance_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
