package httpapi

import (
	"net/http"

	"kassenwerk.org/internal/audit"
	"kassenwerk.org/internal/billing"
	"kassenwerk.org/internal/org"
)

type webhookRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	SessionID      string `json:"session_id"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id" validate:"required"`
}

func (a *API) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sub, err := a.svc.Billing.Status(r.Context(), p.OrganizationID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleBillingCheckout hands out a provider checkout link so a trialing or
// lapsed organization can subscribe.
func (a *API) handleBillingCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requireRole(w, r, org.RoleAdmin)
	if !ok {
		return
	}
	if a.svc.Checkout == nil {
		writeError(w, r, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}
	url, err := a.svc.Checkout.CheckoutURL(r.Context(), p.OrganizationID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkout_url": url})
}

// handleBillingWebhook is called by the payment provider on checkout
// completion; it activates the subscription. The endpoint carries no bearer
// token, so the configured shared secret is the only caller check.
func (a *API) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.svc.WebhookSecret == "" || r.Header.Get("X-Webhook-Secret") != a.svc.WebhookSecret {
		writeError(w, r, http.StatusUnauthorized, "invalid webhook secret")
		return
	}
	var req webhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev := billing.WebhookEvent{
		SessionID:      req.SessionID,
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
	}
	if err := a.svc.Billing.HandleWebhook(r.Context(), req.OrganizationID, ev); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "billing.activate", map[string]any{
		"organization_id": req.OrganizationID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireRole(w, r, org.RoleViewer); !ok {
		return
	}
	if a.svc.Blobs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads unavailable")
		return
	}
	url, fileID, err := a.svc.Blobs.GenerateUploadURL(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"upload_url": url,
		"file_id":    fileID,
	})
}
