// Package httpapi is the HTTP surface: JSON handlers over the domain
// services, bearer authentication, the subscription gate and the shared-link
// endpoints external submitters reach without an account.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"kassenwerk.org/internal/access"
	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/billing"
	"kassenwerk.org/internal/blob"
	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/finance"
	"kassenwerk.org/internal/notify"
	"kassenwerk.org/internal/obs"
	"kassenwerk.org/internal/org"
	"kassenwerk.org/internal/project"
	"kassenwerk.org/internal/team"
)

var validate = validator.New()

// ReadyProbe checks the database before reporting ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the domain services the API dispatches to.
type Services struct {
	Tokens   *auth.Tokens
	Orgs     *org.Service
	Projects *project.Service
	Teams    *team.Service
	Finance  *finance.Service
	Claims   *claims.Service
	Billing  *billing.Service
	Access   *access.Resolver
	Checkout billing.CheckoutProvider
	Blobs    blob.Storage
	Mailer   notify.Mailer

	// WebhookSecret authenticates the payment provider's webhook calls.
	// With no secret configured the webhook rejects everything.
	WebhookSecret string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        Services
	readyProbe ReadyProbe
	version    string
}

func New(svc Services, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/join", a.handleJoin)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/me/bank", a.handleMyBank)

	a.mux.HandleFunc("/v1/projects", a.handleProjects)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectResource)

	a.mux.HandleFunc("/v1/teams", a.handleTeams)
	a.mux.HandleFunc("/v1/teams/", a.handleTeamResource)

	a.mux.HandleFunc("/v1/categories", a.handleCategories)
	a.mux.HandleFunc("/v1/donors", a.handleDonors)

	a.mux.HandleFunc("/v1/transactions", a.handleTransactions)
	a.mux.HandleFunc("/v1/transactions/import", a.handleTransactionImport)
	a.mux.HandleFunc("/v1/transactions/", a.handleTransactionResource)
	a.mux.HandleFunc("/v1/donation-links", a.handleDonationLinks)

	a.mux.HandleFunc("/v1/reimbursements", a.handleReimbursements)
	a.mux.HandleFunc("/v1/reimbursements/", a.handleReimbursementResource)
	a.mux.HandleFunc("/v1/allowances", a.handleAllowances)
	a.mux.HandleFunc("/v1/allowances/", a.handleAllowanceResource)

	a.mux.HandleFunc("/v1/shared/reimbursements/", a.handleSharedReimbursement)
	a.mux.HandleFunc("/v1/shared/allowances/", a.handleSharedAllowance)

	a.mux.HandleFunc("/v1/billing/status", a.handleBillingStatus)
	a.mux.HandleFunc("/v1/billing/checkout", a.handleBillingCheckout)
	a.mux.HandleFunc("/v1/billing/webhook", a.handleBillingWebhook)

	a.mux.HandleFunc("/v1/uploads", a.handleUploads)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with authentication and metrics. Outer middleware
// (logging, rate limiting, body caps) is layered in cmd/api.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errors.New(strings.ToLower(f.Field()) + " failed validation (" + f.Tag() + ")")
		}
		return err
	}
	return nil
}

// handleDomainError translates sentinel errors from every domain package into
// the uniform HTTP shape. Access failures map to 403 without distinguishing
// "missing" from "forbidden".
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrAccessDenied),
		errors.Is(err, finance.ErrAccessDenied),
		errors.Is(err, claims.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, "access denied")
	case errors.Is(err, billing.ErrSubscriptionRequired):
		writeError(w, r, http.StatusPaymentRequired, "subscription required")
	case errors.Is(err, org.ErrLastAdmin):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, org.ErrConflict),
		errors.Is(err, team.ErrConflict),
		errors.Is(err, finance.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, org.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, team.ErrNotFound),
		errors.Is(err, finance.ErrNotFound),
		errors.Is(err, claims.ErrNotFound),
		errors.Is(err, billing.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, project.ErrNestingTooDeep),
		errors.Is(err, project.ErrReservesLocked),
		errors.Is(err, project.ErrHasChildren),
		errors.Is(err, project.ErrSelfParent),
		errors.Is(err, finance.ErrTaxSphereMismatch),
		errors.Is(err, finance.ErrBudgetExceedsSource),
		errors.Is(err, finance.ErrBudgetSourceIsExpense),
		errors.Is(err, finance.ErrSplitExceedsAmount),
		errors.Is(err, finance.ErrSplitSignMismatch),
		errors.Is(err, finance.ErrAlreadySplit),
		errors.Is(err, finance.ErrDonationExceeded),
		errors.Is(err, finance.ErrStatusTransition),
		errors.Is(err, claims.ErrStatutoryCapExceeded),
		errors.Is(err, claims.ErrAlreadySubmitted):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, org.ErrInvalidInput),
		errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, team.ErrInvalidInput),
		errors.Is(err, finance.ErrInvalidInput),
		errors.Is(err, finance.ErrInvalidTaxRate),
		errors.Is(err, claims.ErrInvalidInput),
		errors.Is(err, billing.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.Logger().WithError(err).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
