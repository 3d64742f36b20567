package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/billing"
	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/org"
	"kassenwerk.org/internal/project"
)

const testWebhookSecret = "whsec-test"

type memProjectStore struct {
	projects map[string]*project.Project
}

func newMemProjectStore() *memProjectStore {
	return &memProjectStore{projects: make(map[string]*project.Project)}
}

func (s *memProjectStore) CreateProject(ctx context.Context, p *project.Project) error {
	s.projects[p.ID] = p
	return nil
}

func (s *memProjectStore) FindProject(ctx context.Context, id string) (*project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	return p, nil
}

func (s *memProjectStore) ListProjectsByOrg(ctx context.Context, orgID string, includeArchived bool) ([]*project.Project, error) {
	var out []*project.Project
	for _, p := range s.projects {
		if p.OrganizationID == orgID && (includeArchived || !p.Archived) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memProjectStore) SetProjectParent(ctx context.Context, id, parentID string) error {
	p, ok := s.projects[id]
	if !ok {
		return project.ErrNotFound
	}
	p.ParentID = parentID
	return nil
}

func (s *memProjectStore) SetProjectArchived(ctx context.Context, id string, archived bool) error {
	p, ok := s.projects[id]
	if !ok {
		return project.ErrNotFound
	}
	p.Archived = archived
	return nil
}

func (s *memProjectStore) RenameProject(ctx context.Context, id, name string) error {
	p, ok := s.projects[id]
	if !ok {
		return project.ErrNotFound
	}
	p.Name = name
	return nil
}

func (s *memProjectStore) ProjectHasChildren(ctx context.Context, id string) (bool, error) {
	for _, p := range s.projects {
		if p.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memProjectStore) ReservesProject(ctx context.Context, orgID string) (*project.Project, error) {
	for _, p := range s.projects {
		if p.OrganizationID == orgID && p.IsReserves {
			return p, nil
		}
	}
	return nil, project.ErrNotFound
}

type memBillingStore struct {
	subs map[string]*billing.Subscription
}

func (s *memBillingStore) CreateSubscription(ctx context.Context, sub *billing.Subscription) error {
	s.subs[sub.OrganizationID] = sub
	return nil
}

func (s *memBillingStore) FindByOrg(ctx context.Context, orgID string) (*billing.Subscription, error) {
	sub, ok := s.subs[orgID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return sub, nil
}

func (s *memBillingStore) UpdateStatus(ctx context.Context, id string, status billing.SubscriptionStatus, customerID, subscriptionID string) error {
	for _, sub := range s.subs {
		if sub.ID == id {
			sub.Status = status
			return nil
		}
	}
	return billing.ErrNotFound
}

type memClaimsStore struct {
	reimbursements map[string]*claims.Reimbursement
	allowances     map[string]*claims.VolunteerAllowance
}

func newMemClaimsStore() *memClaimsStore {
	return &memClaimsStore{
		reimbursements: make(map[string]*claims.Reimbursement),
		allowances:     make(map[string]*claims.VolunteerAllowance),
	}
}

func (s *memClaimsStore) CreateReimbursement(ctx context.Context, r *claims.Reimbursement) error {
	s.reimbursements[r.ID] = r
	return nil
}

func (s *memClaimsStore) FindReimbursement(ctx context.Context, id string) (*claims.Reimbursement, error) {
	r, ok := s.reimbursements[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	return r, nil
}

func (s *memClaimsStore) FindReimbursementByToken(ctx context.Context, token string) (*claims.Reimbursement, error) {
	for _, r := range s.reimbursements {
		if r.SharedToken != "" && r.SharedToken == token {
			return r, nil
		}
	}
	return nil, claims.ErrNotFound
}

func (s *memClaimsStore) ListReimbursementsByOrg(ctx context.Context, orgID string) ([]*claims.Reimbursement, error) {
	var out []*claims.Reimbursement
	for _, r := range s.reimbursements {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memClaimsStore) SetReimbursementApproval(ctx context.Context, id string, status claims.Status, rejectionNote *string) error {
	r, ok := s.reimbursements[id]
	if !ok {
		return claims.ErrNotFound
	}
	r.Status = status
	if rejectionNote != nil {
		r.RejectionNote = *rejectionNote
	}
	return nil
}

func (s *memClaimsStore) SubmitShared(ctx context.Context, id string, amount int64, bank org.BankDetails, receipts []claims.Receipt, signatureFileID string) error {
	r, ok := s.reimbursements[id]
	if !ok {
		return claims.ErrNotFound
	}
	if r.Amount != 0 {
		return claims.ErrAlreadySubmitted
	}
	r.Amount = amount
	r.Bank = bank
	r.Receipts = receipts
	r.SignatureFileID = signatureFileID
	return nil
}

func (s *memClaimsStore) CreateAllowance(ctx context.Context, a *claims.VolunteerAllowance) error {
	s.allowances[a.ID] = a
	return nil
}

func (s *memClaimsStore) FindAllowance(ctx context.Context, id string) (*claims.VolunteerAllowance, error) {
	a, ok := s.allowances[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	return a, nil
}

func (s *memClaimsStore) FindAllowanceByToken(ctx context.Context, token string) (*claims.VolunteerAllowance, error) {
	for _, a := range s.allowances {
		if a.SharedToken != "" && a.SharedToken == token {
			return a, nil
		}
	}
	return nil, claims.ErrNotFound
}

func (s *memClaimsStore) ListAllowancesByOrg(ctx context.Context, orgID string) ([]*claims.VolunteerAllowance, error) {
	var out []*claims.VolunteerAllowance
	for _, a := range s.allowances {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memClaimsStore) SetAllowanceApproval(ctx context.Context, id string, status claims.Status, rejectionNote *string) error {
	a, ok := s.allowances[id]
	if !ok {
		return claims.ErrNotFound
	}
	a.Status = status
	if rejectionNote != nil {
		a.RejectionNote = *rejectionNote
	}
	return nil
}

func (s *memClaimsStore) SubmitSharedAllowance(ctx context.Context, id string, amount int64, bank org.BankDetails, signatureFileID string) error {
	a, ok := s.allowances[id]
	if !ok {
		return claims.ErrNotFound
	}
	if a.Amount != 0 {
		return claims.ErrAlreadySubmitted
	}
	a.Amount = amount
	a.Bank = bank
	a.SignatureFileID = signatureFileID
	return nil
}

type testAPI struct {
	api     *API
	handler http.Handler
	tokens  *auth.Tokens
	billing *memBillingStore
	claims  *claims.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret-please-rotate", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	bs := &memBillingStore{subs: make(map[string]*billing.Subscription)}
	claimsSvc := claims.NewService(newMemClaimsStore())
	api := New(Services{
		Tokens:   tokens,
		Projects: project.NewService(newMemProjectStore()),
		Claims:   claimsSvc,
		Billing:  billing.NewService(bs, 30),
		Checkout: billing.StaticCheckout{BaseURL: "https://pay.example/checkout"},

		WebhookSecret: testWebhookSecret,
	}, ReadyProbe{}, "test")
	return &testAPI{
		api:     api,
		handler: api.Handler(),
		tokens:  tokens,
		billing: bs,
		claims:  claimsSvc,
	}
}

func (ta *testAPI) activeOrgToken(t *testing.T, orgID string, role org.Role) string {
	t.Helper()
	ta.billing.subs[orgID] = &billing.Subscription{ID: "sub-" + orgID, OrganizationID: orgID, Status: billing.StatusActive}
	token, _, err := ta.tokens.Generate(&org.User{ID: "u-1", OrganizationID: orgID, Email: "a@v.de", Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func doRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicEndpoints(t *testing.T) {
	ta := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		if rec := doRequest(ta.handler, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestAuthenticationRequired(t *testing.T) {
	ta := newTestAPI(t)

	rec := doRequest(ta.handler, http.MethodGet, "/v1/projects", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	rec = doRequest(ta.handler, http.MethodGet, "/v1/projects", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("basic auth = %d, want 401", rec.Code)
	}
}

func TestSubscriptionGate(t *testing.T) {
	ta := newTestAPI(t)

	ta.billing.subs["org-1"] = &billing.Subscription{ID: "sub-1", OrganizationID: "org-1", Status: billing.StatusCanceled}
	token, _, err := ta.tokens.Generate(&org.User{ID: "u-1", OrganizationID: "org-1", Email: "a@v.de", Role: org.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(ta.handler, http.MethodGet, "/v1/teams", token, "")
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("canceled subscription = %d, want 402", rec.Code)
	}

	// Billing endpoints stay reachable so the organization can recover.
	rec = doRequest(ta.handler, http.MethodGet, "/v1/billing/status", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("billing status with canceled subscription = %d, want 200", rec.Code)
	}
	var sub billing.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Status != billing.StatusCanceled {
		t.Fatalf("status = %q, want canceled", sub.Status)
	}
}

func TestProjectCreateRoles(t *testing.T) {
	ta := newTestAPI(t)

	// Editors create projects; viewers do not.
	editor := ta.activeOrgToken(t, "org-1", org.RoleEditor)
	rec := doRequest(ta.handler, http.MethodPost, "/v1/projects", editor, `{"name":"Jugendfreizeit"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("editor create = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	var created project.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "Jugendfreizeit" || created.OrganizationID != "org-1" {
		t.Fatalf("created = %+v", created)
	}

	viewer := ta.activeOrgToken(t, "org-1", org.RoleViewer)
	if rec := doRequest(ta.handler, http.MethodPost, "/v1/projects", viewer, `{"name":"Nope"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create = %d, want 403", rec.Code)
	}
}

func TestSharedReimbursementOverHTTP(t *testing.T) {
	ta := newTestAPI(t)
	ctx := context.Background()

	shared, err := ta.claims.CreateSharedReimbursement(ctx, "org-1", "prj-1", "Referentenkosten", claims.KindStandard)
	if err != nil {
		t.Fatal(err)
	}
	base := "/v1/shared/reimbursements/" + shared.SharedToken

	// No token header anywhere: the flow is public.
	rec := doRequest(ta.handler, http.MethodGet, base, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET shared = %d, want 200", rec.Code)
	}
	var res claims.SharedLinkResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Reimbursement == nil {
		t.Fatalf("GET shared = %+v, want valid", res)
	}

	rec = doRequest(ta.handler, http.MethodGet, "/v1/shared/reimbursements/unknown-token", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown token = %d, want 200", rec.Code)
	}
	res = claims.SharedLinkResult{}
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Valid || res.Error == "" {
		t.Fatalf("unknown token = %+v, want invalid with error", res)
	}

	// Malformed JSON never produces an error status either.
	rec = doRequest(ta.handler, http.MethodPost, base, "", "{broken")
	if rec.Code != http.StatusOK {
		t.Fatalf("broken body = %d, want 200", rec.Code)
	}
	res = claims.SharedLinkResult{}
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Valid {
		t.Fatal("broken body accepted")
	}

	body := `{"bank":{"iban":"DE02120300000000202051","account_holder":"Gast"},"receipts":[{"amount":4500,"tax_rate":7,"file_id":"f-9"}],"signature_file_id":"sig-1"}`
	rec = doRequest(ta.handler, http.MethodPost, base, "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d, want 200", rec.Code)
	}
	res = claims.SharedLinkResult{}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Reimbursement.Amount != 4500 {
		t.Fatalf("submit = %+v", res)
	}

	rec = doRequest(ta.handler, http.MethodPost, base, "", body)
	res = claims.SharedLinkResult{}
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res.Valid || res.Error != "already submitted" {
		t.Fatalf("second submit: code = %d, res = %+v", rec.Code, res)
	}

	rec = doRequest(ta.handler, http.MethodDelete, base, "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE shared = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Errorf("Allow = %q", allow)
	}
}

func TestSharedAllowanceOverHTTP(t *testing.T) {
	ta := newTestAPI(t)

	shared, err := ta.claims.CreateSharedAllowance(context.Background(), "org-1", "", 2026)
	if err != nil {
		t.Fatal(err)
	}
	base := "/v1/shared/allowances/" + shared.SharedToken

	body := `{"amount":90000,"bank":{"iban":"DE02120300000000202051"},"signature_file_id":"sig"}`
	rec := doRequest(ta.handler, http.MethodPost, base, "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("over-cap submit = %d, want 200", rec.Code)
	}
	var res claims.SharedLinkResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Valid || !strings.Contains(res.Error, "statutory") {
		t.Fatalf("over-cap submit = %+v", res)
	}

	body = `{"amount":20000,"bank":{"iban":"DE02120300000000202051"},"signature_file_id":"sig"}`
	rec = doRequest(ta.handler, http.MethodPost, base, "", body)
	res = claims.SharedLinkResult{}
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Valid || res.Allowance == nil || res.Allowance.Amount != 20000 {
		t.Fatalf("submit = %+v", res)
	}
}

func (ta *testAPI) doWebhook(body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func TestBillingWebhookRequiresSecret(t *testing.T) {
	ta := newTestAPI(t)
	ta.billing.subs["org-1"] = &billing.Subscription{ID: "sub-1", OrganizationID: "org-1", Status: billing.StatusTrialing, TrialStartedAt: time.Now()}

	body := `{"organization_id":"org-1","subscription_id":"sub_ext_1","customer_id":"cus_1"}`

	// No bearer token, but the shared secret is mandatory.
	if rec := ta.doWebhook(body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret = %d, want 401", rec.Code)
	}
	if rec := ta.doWebhook(body, "wrong-secret"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret = %d, want 401", rec.Code)
	}
	if ta.billing.subs["org-1"].Status != billing.StatusTrialing {
		t.Fatal("subscription changed without secret")
	}

	rec := ta.doWebhook(body, testWebhookSecret)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("webhook = %d, want 204, body %s", rec.Code, rec.Body.String())
	}
	if ta.billing.subs["org-1"].Status != billing.StatusActive {
		t.Fatal("subscription not activated")
	}

	if rec := ta.doWebhook(`{"organization_id":"org-1"}`, testWebhookSecret); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing subscription id = %d, want 400", rec.Code)
	}
}

func TestBillingCheckout(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.activeOrgToken(t, "org-1", org.RoleAdmin)

	rec := doRequest(ta.handler, http.MethodPost, "/v1/billing/checkout", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout = %d, want 200", rec.Code)
	}
	var res struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.CheckoutURL, "organization=org-1") {
		t.Fatalf("checkout url = %q", res.CheckoutURL)
	}

	viewer := ta.activeOrgToken(t, "org-1", org.RoleViewer)
	if rec := doRequest(ta.handler, http.MethodPost, "/v1/billing/checkout", viewer, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer checkout = %d, want 403", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Error("empty header accepted")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Error("basic scheme accepted")
	}
	if _, err := extractBearerToken("Bearer "); err == nil {
		t.Error("empty token accepted")
	}
	tok, err := extractBearerToken("bearer abc.def.ghi")
	if err != nil || tok != "abc.def.ghi" {
		t.Errorf("case-insensitive scheme: %q, %v", tok, err)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.activeOrgToken(t, "org-1", org.RoleAdmin)
	rec := doRequest(ta.handler, http.MethodGet, "/v1/nonsense", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", rec.Code)
	}
}
