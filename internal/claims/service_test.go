package claims

import (
	"context"
	"errors"
	"testing"

	"kassenwerk.org/internal/finance"
	"kassenwerk.org/internal/org"
)

type stubStore struct {
	reimbursements map[string]*Reimbursement
	allowances     map[string]*VolunteerAllowance
}

func newStubStore() *stubStore {
	return &stubStore{
		reimbursements: make(map[string]*Reimbursement),
		allowances:     make(map[string]*VolunteerAllowance),
	}
}

func (s *stubStore) CreateReimbursement(ctx context.Context, r *Reimbursement) error {
	cp := *r
	s.reimbursements[r.ID] = &cp
	return nil
}

func (s *stubStore) FindReimbursement(ctx context.Context, id string) (*Reimbursement, error) {
	r, ok := s.reimbursements[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *stubStore) FindReimbursementByToken(ctx context.Context, token string) (*Reimbursement, error) {
	for _, r := range s.reimbursements {
		if r.SharedToken != "" && r.SharedToken == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) ListReimbursementsByOrg(ctx context.Context, orgID string) ([]*Reimbursement, error) {
	var out []*Reimbursement
	for _, r := range s.reimbursements {
		if r.OrganizationID == orgID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) SetReimbursementApproval(ctx context.Context, id string, status Status, rejectionNote *string) error {
	r, ok := s.reimbursements[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	if rejectionNote != nil {
		r.RejectionNote = *rejectionNote
	}
	return nil
}

func (s *stubStore) SubmitShared(ctx context.Context, id string, amount int64, bank org.BankDetails, receipts []Receipt, signatureFileID string) error {
	r, ok := s.reimbursements[id]
	if !ok {
		return ErrNotFound
	}
	if r.Amount != 0 {
		return ErrAlreadySubmitted
	}
	r.Amount = amount
	r.Bank = bank
	r.Receipts = receipts
	r.SignatureFileID = signatureFileID
	return nil
}

func (s *stubStore) CreateAllowance(ctx context.Context, a *VolunteerAllowance) error {
	cp := *a
	s.allowances[a.ID] = &cp
	return nil
}

func (s *stubStore) FindAllowance(ctx context.Context, id string) (*VolunteerAllowance, error) {
	a, ok := s.allowances[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubStore) FindAllowanceByToken(ctx context.Context, token string) (*VolunteerAllowance, error) {
	for _, a := range s.allowances {
		if a.SharedToken != "" && a.SharedToken == token {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) ListAllowancesByOrg(ctx context.Context, orgID string) ([]*VolunteerAllowance, error) {
	var out []*VolunteerAllowance
	for _, a := range s.allowances {
		if a.OrganizationID == orgID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) SetAllowanceApproval(ctx context.Context, id string, status Status, rejectionNote *string) error {
	a, ok := s.allowances[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	if rejectionNote != nil {
		a.RejectionNote = *rejectionNote
	}
	return nil
}

func (s *stubStore) SubmitSharedAllowance(ctx context.Context, id string, amount int64, bank org.BankDetails, signatureFileID string) error {
	a, ok := s.allowances[id]
	if !ok {
		return ErrNotFound
	}
	if a.Amount != 0 {
		return ErrAlreadySubmitted
	}
	a.Amount = amount
	a.Bank = bank
	a.SignatureFileID = signatureFileID
	return nil
}

func TestCreateReimbursementTotals(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	r, err := svc.CreateReimbursement(ctx, "org-1", "u-1", ReimbursementInput{
		Kind:  KindStandard,
		Title: "Bastelmaterial",
		Receipts: []Receipt{
			{Amount: 1190, TaxRate: 19, FileID: "f-1"},
			{Amount: 500, TaxRate: 0, FileID: "f-2"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Amount != 1690 {
		t.Errorf("amount = %d, want sum of receipts 1690", r.Amount)
	}
	if r.Status != StatusPending {
		t.Errorf("status = %q, want pending", r.Status)
	}
	for _, rc := range r.Receipts {
		if rc.ID == "" {
			t.Error("receipt id not assigned")
		}
	}
}

func TestCreateTravelReimbursementMileage(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	r, err := svc.CreateReimbursement(ctx, "org-1", "u-1", ReimbursementInput{
		Kind:  KindTravel,
		Title: "Fahrt zum Landestreffen",
		Travel: &TravelDetails{
			Purpose:     "Landestreffen",
			Destination: "Kassel",
			CostLines: []CostLine{
				{Type: CostCar, Kilometers: 250, Amount: 999999, TaxRate: 19},
				{Type: CostTrain, Amount: 2380, TaxRate: 19},
			},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// The car line is derived from kilometers; supplied amount and rate are
	// overwritten.
	car := r.Travel.CostLines[0]
	if car.Amount != 7500 || car.TaxRate != 0 {
		t.Errorf("car line = %d cents at %d%%, want 7500 at 0%%", car.Amount, car.TaxRate)
	}
	if r.Amount != 7500+2380 {
		t.Errorf("amount = %d, want 9880", r.Amount)
	}
}

func TestCreateReimbursementValidation(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	cases := []struct {
		name string
		in   ReimbursementInput
	}{
		{"blank title", ReimbursementInput{Kind: KindStandard, Title: " ", Receipts: []Receipt{{Amount: 100}}}},
		{"unknown kind", ReimbursementInput{Kind: "misc", Title: "x", Receipts: []Receipt{{Amount: 100}}}},
		{"travel without details", ReimbursementInput{Kind: KindTravel, Title: "x"}},
		{"standard with travel", ReimbursementInput{Kind: KindStandard, Title: "x", Travel: &TravelDetails{}, Receipts: []Receipt{{Amount: 100}}}},
		{"empty claim", ReimbursementInput{Kind: KindStandard, Title: "x"}},
		{"negative receipt", ReimbursementInput{Kind: KindStandard, Title: "x", Receipts: []Receipt{{Amount: -100}}}},
		{"car without kilometers", ReimbursementInput{Kind: KindTravel, Title: "x", Travel: &TravelDetails{CostLines: []CostLine{{Type: CostCar}}}}},
		{"unknown cost type", ReimbursementInput{Kind: KindTravel, Title: "x", Travel: &TravelDetails{CostLines: []CostLine{{Type: "boat", Amount: 100}}}}},
	}
	for _, c := range cases {
		if _, err := svc.CreateReimbursement(ctx, "org-1", "u-1", c.in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", c.name, err)
		}
	}

	bad := ReimbursementInput{Kind: KindStandard, Title: "x", Receipts: []Receipt{{Amount: 100, TaxRate: 5}}}
	if _, err := svc.CreateReimbursement(ctx, "org-1", "u-1", bad); !errors.Is(err, finance.ErrInvalidTaxRate) {
		t.Errorf("bad tax rate: err = %v, want finance.ErrInvalidTaxRate", err)
	}
}

func TestApproveRejectCycle(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	r, err := svc.CreateReimbursement(ctx, "org-1", "u-1", ReimbursementInput{
		Kind: KindStandard, Title: "Porto", Receipts: []Receipt{{Amount: 155}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Reject(ctx, "org-1", r.ID, "Beleg fehlt"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := store.FindReimbursement(ctx, r.ID)
	if got.Status != StatusRejected || got.RejectionNote != "Beleg fehlt" {
		t.Fatalf("after reject: %+v", got)
	}

	// Approval after rejection is allowed; the note stays as history.
	if err := svc.Approve(ctx, "org-1", r.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ = store.FindReimbursement(ctx, r.ID)
	if got.Status != StatusApproved || got.RejectionNote != "Beleg fehlt" {
		t.Fatalf("after approve: %+v", got)
	}

	if err := svc.Approve(ctx, "org-2", r.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("cross-org approve: err = %v, want ErrAccessDenied", err)
	}
}

func TestAllowanceCap(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	a, err := svc.CreateAllowance(ctx, "org-1", "u-1", AllowanceInput{Year: 2026, Amount: MaxVolunteerAllowanceCents})
	if err != nil {
		t.Fatalf("create at cap: %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("status = %q, want pending", a.Status)
	}

	if _, err := svc.CreateAllowance(ctx, "org-1", "u-1", AllowanceInput{Year: 2026, Amount: MaxVolunteerAllowanceCents + 1}); !errors.Is(err, ErrStatutoryCapExceeded) {
		t.Errorf("above cap: err = %v, want ErrStatutoryCapExceeded", err)
	}
	if _, err := svc.CreateAllowance(ctx, "org-1", "u-1", AllowanceInput{Year: 2026, Amount: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero amount: err = %v, want ErrInvalidInput", err)
	}
}

func TestSharedReimbursementFlow(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	r, err := svc.CreateSharedReimbursement(ctx, "org-1", "prj-1", "Referentenkosten", KindStandard)
	if err != nil {
		t.Fatalf("create shared: %v", err)
	}
	if r.SharedToken == "" {
		t.Fatal("no shared token assigned")
	}
	if r.Amount != 0 {
		t.Fatalf("shared claim amount = %d, want 0 before submission", r.Amount)
	}

	if res := svc.GetSharedReimbursement(ctx, r.SharedToken); !res.Valid || res.Reimbursement == nil {
		t.Fatalf("get shared = %+v, want valid", res)
	}
	if res := svc.GetSharedReimbursement(ctx, "no-such-token"); res.Valid || res.Error == "" {
		t.Fatalf("unknown token = %+v, want invalid with generic error", res)
	}

	sub := SharedSubmission{
		Bank:            org.BankDetails{IBAN: "DE02120300000000202051", AccountHolder: "Gast"},
		Receipts:        []Receipt{{Amount: 4500, TaxRate: 7, FileID: "f-9"}},
		SignatureFileID: "sig-1",
	}
	res := svc.SubmitSharedReimbursement(ctx, r.SharedToken, sub)
	if !res.Valid {
		t.Fatalf("submit = %+v, want valid", res)
	}
	if res.Reimbursement.Amount != 4500 {
		t.Errorf("submitted amount = %d, want 4500", res.Reimbursement.Amount)
	}

	// The link is single-use.
	if res := svc.SubmitSharedReimbursement(ctx, r.SharedToken, sub); res.Valid || res.Error != "already submitted" {
		t.Fatalf("second submit = %+v, want already submitted", res)
	}
}

func TestSharedSubmissionRequiresSignature(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	r, err := svc.CreateSharedReimbursement(ctx, "org-1", "", "Fahrtkosten", KindStandard)
	if err != nil {
		t.Fatalf("create shared: %v", err)
	}
	res := svc.SubmitSharedReimbursement(ctx, r.SharedToken, SharedSubmission{
		Receipts: []Receipt{{Amount: 100}},
	})
	if res.Valid || res.Error != "signature is required" {
		t.Fatalf("submit without signature = %+v", res)
	}
}

func TestSharedAllowanceFlow(t *testing.T) {
	svc := NewService(newStubStore())
	ctx := context.Background()

	a, err := svc.CreateSharedAllowance(ctx, "org-1", "prj-1", 2026)
	if err != nil {
		t.Fatalf("create shared allowance: %v", err)
	}

	if res := svc.SubmitSharedAllowance(ctx, a.SharedToken, MaxVolunteerAllowanceCents+1, org.BankDetails{}, "sig"); res.Valid || res.Error != "amount exceeds the statutory allowance cap" {
		t.Fatalf("above cap = %+v", res)
	}
	res := svc.SubmitSharedAllowance(ctx, a.SharedToken, 20000, org.BankDetails{IBAN: "DE02120300000000202051"}, "sig")
	if !res.Valid || res.Allowance == nil || res.Allowance.Amount != 20000 {
		t.Fatalf("submit = %+v, want valid with amount", res)
	}
	if res := svc.SubmitSharedAllowance(ctx, a.SharedToken, 10000, org.BankDetails{}, "sig"); res.Valid || res.Error != "already submitted" {
		t.Fatalf("second submit = %+v", res)
	}
}

func TestUserFacing(t *testing.T) {
	err := errors.New("claims: invalid input: a claim needs at least one receipt or cost line")
	if got := userFacing(err); got != "invalid input: a claim needs at least one receipt or cost line" {
		t.Errorf("userFacing = %q", got)
	}
	plain := errors.New("boom")
	if got := userFacing(plain); got != "boom" {
		t.Errorf("userFacing passthrough = %q", got)
	}
}
