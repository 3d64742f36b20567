package httpapi

import (
	"net/http"
	"strings"

	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/org"
)

type sharedSubmissionRequest struct {
	Bank            bankDetailsRequest    `json:"bank"`
	Receipts        []claims.Receipt      `json:"receipts"`
	Travel          *claims.TravelDetails `json:"travel"`
	SignatureFileID string                `json:"signature_file_id"`
}

type sharedAllowanceRequest struct {
	Amount          int64              `json:"amount"`
	Bank            bankDetailsRequest `json:"bank"`
	SignatureFileID string             `json:"signature_file_id"`
}

// handleSharedReimbursement serves the token-gated external flow. Responses
// are always 200 with a SharedLinkResult body; the token's existence is never
// exposed through status codes.
func (a *API) handleSharedReimbursement(w http.ResponseWriter, r *http.Request) {
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/shared/reimbursements/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.svc.Claims.GetSharedReimbursement(r.Context(), token))
	case http.MethodPost:
		var req sharedSubmissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusOK, claims.SharedLinkResult{Valid: false, Error: err.Error()})
			return
		}
		res := a.svc.Claims.SubmitSharedReimbursement(r.Context(), token, claims.SharedSubmission{
			Bank:            org.BankDetails{IBAN: req.Bank.IBAN, BIC: req.Bank.BIC, AccountHolder: req.Bank.AccountHolder},
			Receipts:        req.Receipts,
			Travel:          req.Travel,
			SignatureFileID: req.SignatureFileID,
		})
		writeJSON(w, http.StatusOK, res)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSharedAllowance(w http.ResponseWriter, r *http.Request) {
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/shared/allowances/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.svc.Claims.GetSharedAllowance(r.Context(), token))
	case http.MethodPost:
		var req sharedAllowanceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusOK, claims.SharedLinkResult{Valid: false, Error: err.Error()})
			return
		}
		bank := org.BankDetails{IBAN: req.Bank.IBAN, BIC: req.Bank.BIC, AccountHolder: req.Bank.AccountHolder}
		res := a.svc.Claims.SubmitSharedAllowance(r.Context(), token, req.Amount, bank, req.SignatureFileID)
		writeJSON(w, http.StatusOK, res)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
